package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code   Code
		status int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodeUnauthorized, http.StatusUnauthorized},
		{CodeForbidden, http.StatusForbidden},
		{CodeNotFound, http.StatusNotFound},
		{CodeConflict, http.StatusConflict},
		{CodeInsufficientBalance, http.StatusUnprocessableEntity},
		{CodeRateLimit, http.StatusTooManyRequests},
		{CodeInternal, http.StatusInternalServerError},
		{CodeDependency, http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		if got := MetadataFor(tc.code).HTTPStatus; got != tc.status {
			t.Fatalf("%s: expected status %d, got %d", tc.code, tc.status, got)
		}
	}
}

func TestMetadataForUnknownCodeFallsBackToInternal(t *testing.T) {
	meta := MetadataFor(Code("NOPE"))
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal fallback, got %d", meta.HTTPStatus)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("row missing")
	err := Wrap(CodeNotFound, cause, "transaction lookup")

	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause to survive errors.Is")
	}
	if got := As(err); got == nil || got.Code() != CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", got)
	}
}

func TestHasCode(t *testing.T) {
	err := New(CodeInsufficientBalance, "balance would go negative")
	if !HasCode(err, CodeInsufficientBalance) {
		t.Fatal("expected HasCode to match")
	}
	if HasCode(err, CodeNotFound) {
		t.Fatal("expected HasCode mismatch")
	}
	if HasCode(errors.New("plain"), CodeInternal) {
		t.Fatal("plain errors carry no code")
	}
}
