package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.

var (
	// Validation
	ErrValidation = errors.New("validation failed")

	// Catalog
	ErrUnknownAchievement = errors.New("achievement not in catalog")
	ErrUnknownChallenge   = errors.New("daily challenge not in catalog")
	ErrInvalidLevelTable  = errors.New("level table does not partition [0, inf)")

	// Store
	ErrProfileNotFound  = errors.New("user profile not found")
	ErrStoreUnavailable = errors.New("remote store unavailable")
	ErrRetriesExhausted = errors.New("xp grant failed after all retries")
	ErrLocalStore       = errors.New("local store failure")

	// Session
	ErrSessionClosed = errors.New("session is closed")
)

// ValidationError names the offending input. It matches ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsRetryable reports whether a store failure may succeed on retry.
// Validation and missing-record failures never do.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrProfileNotFound),
		errors.Is(err, ErrUnknownAchievement),
		errors.Is(err, ErrUnknownChallenge):
		return false
	}
	return true
}
