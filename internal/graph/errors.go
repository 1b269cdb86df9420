package graph

import "fmt"

// UnknownTaskError is raised synchronously by AddLink when either endpoint
// has not been registered via AddTask.
type UnknownTaskError struct {
	TaskID string
}

func (e *UnknownTaskError) Error() string {
	return fmt.Sprintf("graph: unknown task %q", e.TaskID)
}

// NotCompiledError is returned by InjectToken under CompilePolicy
// RequireCompiled when the process has not been successfully compiled.
type NotCompiledError struct {
	ProcessID string
}

func (e *NotCompiledError) Error() string {
	return fmt.Sprintf("graph: process %q is not compiled", e.ProcessID)
}

// LinkError records a single chain-validation rejection found during
// Compile.
type LinkError struct {
	From, To string
}

func (e LinkError) Error() string {
	return fmt.Sprintf("chain validation failed for arc %s -> %s", e.From, e.To)
}

// CycleError records a single back-edge found during Compile's cycle
// detection pass.
type CycleError struct {
	Path []string
}

func (e CycleError) Error() string {
	return fmt.Sprintf("cycle detected: %v", e.Path)
}

// CompileError aggregates every chain-validation and cycle-detection
// failure found by a single Compile call.
type CompileError struct {
	LinkErrors  []LinkError
	CycleErrors []CycleError
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile failed: %d link error(s), %d cycle error(s)", len(e.LinkErrors), len(e.CycleErrors))
}

// Count returns the total number of errors aggregated.
func (e *CompileError) Count() int {
	return len(e.LinkErrors) + len(e.CycleErrors)
}
