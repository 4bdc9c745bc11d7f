package env

import "os"

// Get returns the value of the environment variable when set and non-empty,
// otherwise the fallback.
func Get(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}
