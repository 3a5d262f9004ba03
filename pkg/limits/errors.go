package limits

import (
	"errors"
	"fmt"
)

// ErrInvalid matches every *ValidationError via errors.Is.
var ErrInvalid = errors.New("validation failed")

// ValidationError reports an input rejected by a ceiling check. No side effect
// has been performed when it is returned.
type ValidationError struct {
	Field  string
	Reason string
	Limit  int64
}

func (e *ValidationError) Error() string {
	if e.Limit > 0 {
		return fmt.Sprintf("invalid %s: %s (limit %d)", e.Field, e.Reason, e.Limit)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}
