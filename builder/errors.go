package builder

import "fmt"

// BuildError reports a type error or builder-misuse condition caught
// while assembling a function (spec.md §7): mismatched descriptors at
// move_value/call/fn_return, unbalanced if/loop scopes, or operating on
// a frozen builder.
type BuildError struct {
	Function string
	Message  string
	Wrapped  error
}

func (e *BuildError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("builder: %s: %s: %v", e.Function, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("builder: %s: %s", e.Function, e.Message)
}

func (e *BuildError) Unwrap() error { return e.Wrapped }

// NewBuildError builds a BuildError with no wrapped cause.
func NewBuildError(function, message string) *BuildError {
	return &BuildError{Function: function, Message: message}
}

// WrapBuildError wraps err with function context, leaving an existing
// BuildError untouched.
func WrapBuildError(function string, err error) error {
	if err == nil {
		return nil
	}
	if be, ok := err.(*BuildError); ok {
		return be
	}
	return &BuildError{Function: function, Message: "failed to build function", Wrapped: err}
}
