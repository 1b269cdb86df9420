// Package firing implements the firing engine: the guard, input-validation,
// execute, output-validation, evolve, route pipeline that advances exactly
// one dequeued token per RunStep call.
//
// RunStep is a single-writer step function: it writes structured slog
// events at each stage and converts every internal failure into a result
// value instead of propagating it to the caller.
package firing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tokenflow/engine/internal/graph"
	"github.com/tokenflow/engine/internal/ir"
	"github.com/tokenflow/engine/internal/merge"
)

// TokenValidator is the subset of validate.TokenValidator the Firing Engine
// needs, declared locally to keep the dependency direction explicit.
type TokenValidator interface {
	Validate(content map[string]any, specID string) error
}

// Clock supplies the current time; tests substitute a fixed clock to drive
// TTL expiry deterministically.
type Clock func() time.Time

// OnDrop is invoked whenever a step fails and its token is dropped, letting
// a host wire its own dead-letter queue.
type OnDrop func(taskID string, token ir.Token, reason string)

// Engine advances tokens through a graph.Process one RunStep at a time.
type Engine struct {
	validator TokenValidator
	resolver  Resolver
	merger    graph.MergeEngine
	ttl       time.Duration
	clock     Clock
	logger    *slog.Logger
	onDrop    OnDrop
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithClock overrides the default time.Now clock (for deterministic tests).
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithOnDrop registers a dead-letter callback.
func WithOnDrop(cb OnDrop) Option {
	return func(e *Engine) { e.onDrop = cb }
}

// WithMergeEngine overrides the default merge.Engine (for tests that want
// to force a conflict).
func WithMergeEngine(m graph.MergeEngine) Option {
	return func(e *Engine) { e.merger = m }
}

// New builds a Firing Engine. ttl bounds token age at the envelope-
// validation step.
func New(validator TokenValidator, resolver Resolver, ttl time.Duration, opts ...Option) *Engine {
	e := &Engine{
		validator: validator,
		resolver:  resolver,
		merger:    merge.New(),
		ttl:       ttl,
		clock:     time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunStep processes exactly one dequeued (task, token) pair from process.
// Returns nil if the queue is empty, otherwise a FiringResult describing
// success or the first failure encountered.
func (e *Engine) RunStep(ctx context.Context, process *graph.Process) *ir.FiringResult {
	entry, ok := process.Dequeue()
	if !ok {
		return nil
	}

	start := e.clock()
	taskID, token := entry.TaskID, entry.Token

	task, ok := process.Task(taskID)
	if !ok {
		return e.fail(taskID, token, start, "task %q is not registered in the process", taskID)
	}

	if err := e.validateEnvelope(taskID, token); err != nil {
		e.logger.Error("firing: envelope validation failed", "task_id", taskID, "trace_id", token.TraceID, "error", err)
		e.drop(taskID, token, err.Error())
		return result(taskID, false, err.Error(), nil, e.clock().Sub(start), 0)
	}

	if ok, guardErr := e.checkGuards(task, token); !ok {
		e.logger.Info("firing: guard condition failed", "task_id", taskID, "trace_id", token.TraceID, "guard_error", guardErr)
		e.drop(taskID, token, "Guard Condition Failed")
		return result(taskID, false, "Guard Condition Failed", nil, e.clock().Sub(start), 0)
	}

	if err := e.validator.Validate(token.Content, task.InputSpecID); err != nil {
		stepErr := &StepError{Code: CodeInputSpecFail, TaskID: taskID, TraceID: token.TraceID, Message: "input spec validation failed", Cause: err}
		e.logger.Error("firing: input spec check failed", "task_id", taskID, "trace_id", token.TraceID, "error", err)
		e.drop(taskID, token, stepErr.Error())
		return result(taskID, false, stepErr.Error(), nil, e.clock().Sub(start), 0)
	}

	fn, ok := e.resolver.Resolve(task.Target)
	if !ok {
		stepErr := &StepError{Code: CodeRuntimeExecutionError, TaskID: taskID, TraceID: token.TraceID, Message: "target not resolvable: " + task.Target}
		e.logger.Error("firing: target resolution failed", "task_id", taskID, "target", task.Target)
		e.drop(taskID, token, stepErr.Error())
		return result(taskID, false, stepErr.Error(), nil, e.clock().Sub(start), 0)
	}

	newContent, err := fn(ctx, token.Content, task.Config)
	if err != nil {
		stepErr := &StepError{Code: CodeRuntimeExecutionError, TaskID: taskID, TraceID: token.TraceID, Message: "task execution failed", Cause: err}
		e.logger.Error("firing: execution failed", "task_id", taskID, "trace_id", token.TraceID, "error", err)
		e.drop(taskID, token, stepErr.Error())
		return result(taskID, false, stepErr.Error(), nil, e.clock().Sub(start), 0)
	}

	if err := e.validator.Validate(newContent, task.OutputSpecID); err != nil {
		stepErr := &StepError{Code: CodeOutputSpecFail, TaskID: taskID, TraceID: token.TraceID, Message: "output spec validation failed", Cause: err}
		e.logger.Error("firing: output spec check failed", "task_id", taskID, "trace_id", token.TraceID, "error", err)
		e.drop(taskID, token, stepErr.Error())
		return result(taskID, false, stepErr.Error(), nil, e.clock().Sub(start), 0)
	}

	newToken := token.Evolve(taskID, newContent)

	routes := e.route(process, taskID, newToken)

	elapsed := e.clock().Sub(start)
	e.logger.Info("firing: step succeeded", "task_id", taskID, "trace_id", newToken.TraceID, "routes_triggered", routes, "elapsed", elapsed)
	return result(taskID, true, "ok", &newToken, elapsed, routes)
}

// validateEnvelope rejects tokens with a malformed trace id, an
// out-of-range topic score, or an expired TTL before any guard or schema
// check runs.
func (e *Engine) validateEnvelope(taskID string, token ir.Token) error {
	if token.TraceID == "" {
		return &StepError{Code: CodeTokenIntegrity, TaskID: taskID, TraceID: token.TraceID, Message: "trace_id is empty"}
	}
	for topic, score := range token.Topics {
		if score < 0.0 || score > 1.0 {
			return &StepError{Code: CodeTokenIntegrity, TaskID: taskID, TraceID: token.TraceID, Message: "topic " + topic + " score out of [0,1]"}
		}
	}
	if !token.Alive(e.clock(), e.ttl) {
		return &StepError{Code: CodeTokenIntegrity, TaskID: taskID, TraceID: token.TraceID, Message: "Token Integrity Fail: token TTL expired"}
	}
	return nil
}

// checkGuards reports whether every guard on task passes against token's
// topic scores. The same check runs once before firing and again, per
// successor, while routing.
func (e *Engine) checkGuards(task ir.Task, token ir.Token) (bool, string) {
	for _, g := range task.Guards {
		score := token.TopicScore(g.TargetTopicID)
		if !g.Passes(score) {
			return false, g.TargetTopicID
		}
	}
	return true, ""
}

// route re-checks guards against the evolved token for each successor,
// delivers to eligible ones, and marks the token completed when there are
// no successors.
func (e *Engine) route(process *graph.Process, taskID string, newToken ir.Token) int {
	successors := process.Successors(taskID)
	if len(successors) == 0 {
		process.MarkCompleted(newToken)
		return 0
	}

	delivered := 0
	for _, succID := range successors {
		succTask, ok := process.Task(succID)
		if !ok {
			e.logger.Warn("firing: successor task missing from registry, skipping", "task_id", succID)
			continue
		}
		if ok, guardErr := e.checkGuards(succTask, newToken); !ok {
			e.logger.Info("firing: successor ineligible, guard failed", "task_id", succID, "trace_id", newToken.TraceID, "guard", guardErr)
			continue
		}
		if err := process.ArriveToken(taskID, succID, newToken, e.merger); err != nil {
			e.logger.Error("firing: arrive_token failed", "from", taskID, "to", succID, "trace_id", newToken.TraceID, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

func (e *Engine) drop(taskID string, token ir.Token, reason string) {
	if e.onDrop != nil {
		e.onDrop(taskID, token, reason)
	}
}

func (e *Engine) fail(taskID string, token ir.Token, start time.Time, format string, args ...any) *ir.FiringResult {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	e.drop(taskID, token, msg)
	return result(taskID, false, msg, nil, e.clock().Sub(start), 0)
}

func result(taskID string, success bool, message string, newToken *ir.Token, elapsed time.Duration, routes int) *ir.FiringResult {
	return &ir.FiringResult{
		TaskID:          taskID,
		Success:         success,
		Message:         message,
		NewToken:        newToken,
		Elapsed:         elapsed,
		RoutesTriggered: routes,
	}
}
