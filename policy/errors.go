package policy

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig matches every NormalizeError under errors.Is.
var ErrInvalidConfig = errors.New("restream: invalid retry config")

// NormalizeError reports a configuration value that cannot be repaired.
type NormalizeError struct {
	Field string
	Value string
}

func (e *NormalizeError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%v: %s=%q", ErrInvalidConfig, e.Field, e.Value)
}

func (e *NormalizeError) Is(target error) bool { return target == ErrInvalidConfig }

func invalid(field string, value any) error {
	return &NormalizeError{Field: field, Value: fmt.Sprint(value)}
}
