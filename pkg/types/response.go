// Package types holds the wire envelopes shared by every HTTP handler.
package types

// SuccessEnvelope wraps every 2xx payload under a single data key.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public error shape; Details is omitted unless the code
// deliberately exposes field-level context.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope wraps every non-2xx payload.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
