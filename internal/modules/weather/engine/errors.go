package engine

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidWindDirection = errors.New("invalid wind direction")
	ErrInvalidNumericInput  = errors.New("invalid numeric input")
)

// InputError describes a reading field the engine refused. It wraps one of
// the sentinel errors above so callers can match with errors.Is.
type InputError struct {
	Field string
	Value any
	Err   error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%v: %s=%v", e.Err, e.Field, e.Value)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether retrying the same input could succeed. It never can.
func (e *InputError) IsTransient() bool {
	return false
}

// IsInputError reports whether err was caused by a rejected reading.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}
