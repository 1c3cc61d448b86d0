package tools

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownFunction  = errors.New("unknown function")
	ErrInvalidArguments = errors.New("invalid arguments")
)

// ExecutionError is returned by Registry.Call for every failure: unknown
// names, bad arguments, tool errors and recovered panics. Its text is what
// the model sees in the tool result.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return e.Err.Error()
}

func (e *ExecutionError) Unwrap() error { return e.Err }

type panicError struct{ p any }

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.p)
}
