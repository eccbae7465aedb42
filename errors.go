package streampass

import (
	"errors"
	"fmt"

	"github.com/xraph/streampass/flow"
	"github.com/xraph/streampass/ttv"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrValidation    = errors.New("streampass: validation failed")
	ErrUnauthorized  = errors.New("streampass: unauthorized")
	ErrPrecondition  = errors.New("streampass: precondition failed")
	ErrNotConfigured = errors.New("streampass: not configured")

	// Stream errors
	ErrNoStream        = fmt.Errorf("%w: No stream active", ErrPrecondition)
	ErrNoActivePass    = fmt.Errorf("%w: no active pass", ErrPrecondition)
	ErrDuplicateStream = flow.ErrFlowExists
	ErrOverflow        = ttv.ErrOverflow

	// Pass errors
	ErrPassNotFound    = errors.New("streampass: invalid token ID")
	ErrIndexOutOfRange = errors.New("streampass: owner index out of bounds")
	ErrNotPassOwner    = fmt.Errorf("%w: Not Owner of Pass", ErrUnauthorized)
	ErrNotOwner        = fmt.Errorf("%w: caller is not the owner", ErrUnauthorized)

	// Store errors
	ErrStoreClosed       = errors.New("streampass: store is closed")
	ErrTransactionFailed = errors.New("streampass: transaction failed")
	ErrMigrationFailed   = errors.New("streampass: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("streampass: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsAuthorization reports whether err is an ownership or access failure.
func IsAuthorization(err error) bool { return errors.Is(err, ErrUnauthorized) }

// IsPrecondition reports whether err was caused by missing stream state.
func IsPrecondition(err error) bool { return errors.Is(err, ErrPrecondition) }

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPassNotFound) ||
		errors.Is(err, ErrIndexOutOfRange) ||
		errors.Is(err, ErrNotConfigured)
}
