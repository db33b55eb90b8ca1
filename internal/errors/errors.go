// internal/errors/errors.go
package errors

import "fmt"

// ErrorType represents the type of error
type ErrorType string

const (
	RuntimeError ErrorType = "RuntimeError"
	TypeError    ErrorType = "TypeError"
)

// MiraError is a script-level error. Every path that can raise one, the
// interpreter and any compiled region alike, must construct it the same
// way, so script error handling cannot observe whether a region was
// compiled.
type MiraError struct {
	Type    ErrorType
	Message string
	Line    int
}

// Error implements the error interface
func (e *MiraError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: %s (line %d)", e.Type, e.Message, e.Line)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewRuntimeError creates a runtime error at the given line.
func NewRuntimeError(line int, format string, args ...interface{}) *MiraError {
	return &MiraError{
		Type:    RuntimeError,
		Message: fmt.Sprintf(format, args...),
		Line:    line,
	}
}

// NewTypeError creates a type error at the given line.
func NewTypeError(line int, format string, args ...interface{}) *MiraError {
	return &MiraError{
		Type:    TypeError,
		Message: fmt.Sprintf(format, args...),
		Line:    line,
	}
}

// DivisionByZero is the canonical division-by-zero error. Both execution
// paths raise exactly this.
func DivisionByZero(line int) *MiraError {
	return NewRuntimeError(line, "division by zero")
}
