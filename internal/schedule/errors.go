package schedule

import (
	"errors"
	"fmt"
)

// ErrNotFound reports an operation referencing a non-existent schedule id.
var ErrNotFound = errors.New("schedule not found")

// ValidationError reports a malformed or state-machine-violating mutation.
// Always recoverable; never crashes the engine.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid schedule: " + e.Reason
	}
	return fmt.Sprintf("invalid schedule: %s: %s", e.Field, e.Reason)
}

func invalidf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
