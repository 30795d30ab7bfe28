package errors

import (
	"errors"
	"fmt"
)

// ValidationError reports one option or configuration value outside its
// allowed range. It always matches ErrConfiguration under errors.Is, so
// callers only need to test for the category.
type ValidationError struct {
	Field string
	Value any
	Err   error
}

func NewValidationError(field string, value any, err error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Err: err}
}

func (e *ValidationError) Error() string {
	reason := "invalid value"
	if e.Err != nil {
		reason = e.Err.Error()
	}
	return fmt.Sprintf("%s (%v): %s", e.Field, e.Value, reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool {
	return target == ErrConfiguration
}

func IsValidationError(err error) bool {
	return AsValidationError(err) != nil
}

// AsValidationError returns the first ValidationError in err's chain, or nil.
func AsValidationError(err error) *ValidationError {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return nil
	}
	return ve
}
