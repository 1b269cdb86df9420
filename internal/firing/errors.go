package firing

import (
	"errors"
	"fmt"
)

// StepCode enumerates the Firing Engine's step-failure kinds.
type StepCode string

const (
	CodeTokenIntegrity        StepCode = "TokenIntegrity"
	CodeGuardFail             StepCode = "GuardFail"
	CodeInputSpecFail         StepCode = "InputSpecFail"
	CodeRuntimeExecutionError StepCode = "RuntimeExecutionError"
	CodeOutputSpecFail        StepCode = "OutputSpecFail"
)

// StepError wraps the cause of a failed firing step with the task/trace
// context and a classification code.
type StepError struct {
	Code    StepCode
	TaskID  string
	TraceID string
	Message string
	Cause   error
}

func (e *StepError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (task=%s, trace=%s): %v", e.Code, e.Message, e.TaskID, e.TraceID, e.Cause)
	}
	return fmt.Sprintf("%s: %s (task=%s, trace=%s)", e.Code, e.Message, e.TaskID, e.TraceID)
}

func (e *StepError) Unwrap() error {
	return e.Cause
}

// IsCode reports whether err is a *StepError with the given code.
func IsCode(err error, code StepCode) bool {
	var se *StepError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}
