package engine

import (
	"errors"
	"fmt"
)

// InputError reports an input description the Builder cannot turn into a
// Context. It is an invocation fault: no template code has run.
type InputError struct {
	// Field is the input key at fault, empty when the whole input is bad.
	Field string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *InputError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("invalid input: %s: %v", msg, e.Err)
	}
	return "invalid input: " + msg
}

// Unwrap returns the underlying cause.
func (e *InputError) Unwrap() error {
	return e.Err
}

// IsInputError returns true if err is or wraps an InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}
