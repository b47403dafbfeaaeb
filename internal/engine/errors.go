package engine

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrNegativeTotal         = errors.New("bill total would be negative")
	ErrClockOutBeforeClockIn = errors.New("clock-out is before clock-in")
	ErrInvalidSetting        = errors.New("invalid setting")
)

// InputError names the offending field of a rejected calculation input.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input: %s %s", e.Field, e.Reason)
}

func (e *InputError) Unwrap() error {
	return ErrInvalidInput
}

func invalidInput(field string, reason string) error {
	return &InputError{Field: field, Reason: reason}
}
