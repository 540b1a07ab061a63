package carbon

import (
	"errors"
	"fmt"
)

// Validation error kinds. Use errors.Is to match them.
var (
	ErrMalformedInterval     = errors.New("malformed time interval")
	ErrUnparsableTimestamp   = errors.New("unparsable timestamp")
	ErrInvertedInterval      = errors.New("inverted time interval")
	ErrEmptyLocations        = errors.New("at least one location is required")
	ErrNoResources           = errors.New("at least one compute resource is required")
	ErrInvalidFunctionalUnit = errors.New("invalid functional unit")
	ErrInvalidWindowSize     = errors.New("invalid window size")
)

// ValidationError reports caller input rejected before any data source is
// consulted. Kind is one of the sentinel errors above (or a sentinel owned by
// another package, such as a hardware catalog error).
type ValidationError struct {
	Kind   error
	Detail string
}

// NewValidationError returns a *ValidationError with a formatted detail.
func NewValidationError(kind error, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Detail
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

// IsValidation reports whether err (or anything it wraps) is a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
