package dap

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation error")
	ErrParse      = errors.New("dap parse error")
)

// ValidationError reports malformed or missing required input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ParseError reports a document that could not be reduced to a valid header.
// Preview is a bounded, printable excerpt of whatever text was extracted.
type ParseError struct {
	Message string
	Preview string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error { return e.Cause }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

func newParseError(message, text string, cause error) *ParseError {
	return &ParseError{Message: message, Preview: Preview(text), Cause: cause}
}
