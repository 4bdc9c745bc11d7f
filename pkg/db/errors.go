package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// IsUniqueViolation reports whether the provided error references a unique
// constraint violation. When constraintName is provided, the helper looks for
// the constraint text in the error message. Covers Postgres wire errors,
// GORM's translated duplicate-key error, and sqlite's phrasing (used in tests).
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	if constraintName != "" && strings.Contains(msg, constraintName) {
		return true
	}
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
