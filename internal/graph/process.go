// Package graph implements the process graph: task/arc registration, static
// compilation (chain validation + cycle detection), the token queue, and
// predecessor-set synchronization at joins.
//
// A Process is a single-writer structure: its queue and pending buffers
// assume exclusive ownership during a step. Hosts that want parallelism run
// one Process per goroutine.
package graph

import (
	"log/slog"
	"sort"

	"github.com/tokenflow/engine/internal/ir"
)

// CompilePolicy controls whether InjectToken requires a prior successful
// Compile call.
type CompilePolicy int

const (
	// AllowUncompiled logs a warning and proceeds. This is the default.
	AllowUncompiled CompilePolicy = iota
	// RequireCompiled rejects injection into an uncompiled process.
	RequireCompiled
)

// ChainValidator is the subset of validate.ChainValidator the graph needs,
// declared locally so this package does not import the validate package
// directly (keeps the dependency direction ir <- graph <- validate/firing).
type ChainValidator interface {
	ValidateLink(producerOutputSpecID, consumerInputSpecID string) bool
}

// QueueEntry pairs a task id with the token ready to fire at it.
type QueueEntry struct {
	TaskID string
	Token  ir.Token
}

// Process holds a workflow's tasks, arcs, predecessor sets, join buffers,
// token queue, and completed list.
type Process struct {
	ProcessID string

	tasks        map[string]ir.Task
	successors   map[string][]string        // task_id -> successor ids, insertion order preserved
	predecessors map[string]map[string]bool // task_id -> set of predecessor ids

	queue        []QueueEntry
	pending      map[string]map[string]ir.Token // to_id -> (from_id -> token)
	arrivalOrder map[string][]string            // to_id -> from_ids in arrival order
	completed    []ir.Token

	isCompiled bool
	errorCount int

	logger *slog.Logger
}

// New creates an empty, uncompiled Process.
func New(processID string, logger *slog.Logger) *Process {
	if logger == nil {
		logger = slog.Default()
	}
	return &Process{
		ProcessID:    processID,
		tasks:        map[string]ir.Task{},
		successors:   map[string][]string{},
		predecessors: map[string]map[string]bool{},
		pending:      map[string]map[string]ir.Token{},
		arrivalOrder: map[string][]string{},
		logger:       logger,
	}
}

// AddTask registers task. A duplicate id overwrites the existing
// registration with a logged warning. Registration clears IsCompiled.
func (p *Process) AddTask(task ir.Task) {
	if _, exists := p.tasks[task.TaskID]; exists {
		p.logger.Warn("graph: overwriting existing task registration", "task_id", task.TaskID)
	}
	p.tasks[task.TaskID] = task
	if _, ok := p.successors[task.TaskID]; !ok {
		p.successors[task.TaskID] = nil
	}
	if _, ok := p.predecessors[task.TaskID]; !ok {
		p.predecessors[task.TaskID] = map[string]bool{}
	}
	p.isCompiled = false
}

// Task returns the registered task by id.
func (p *Process) Task(taskID string) (ir.Task, bool) {
	t, ok := p.tasks[taskID]
	return t, ok
}

// TaskIDs returns all registered task ids, sorted for deterministic
// traversal — task ids are visited in a deterministic order across roots.
func (p *Process) TaskIDs() []string {
	ids := make([]string, 0, len(p.tasks))
	for id := range p.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AddLink appends an arc src -> tgt. Both must already be registered tasks;
// otherwise AddLink returns an UnknownTaskError. Adding a link clears
// IsCompiled.
func (p *Process) AddLink(src, tgt string) error {
	if _, ok := p.tasks[src]; !ok {
		return &UnknownTaskError{TaskID: src}
	}
	if _, ok := p.tasks[tgt]; !ok {
		return &UnknownTaskError{TaskID: tgt}
	}

	p.successors[src] = append(p.successors[src], tgt)
	if p.predecessors[tgt] == nil {
		p.predecessors[tgt] = map[string]bool{}
	}
	p.predecessors[tgt][src] = true
	p.isCompiled = false
	return nil
}

// Successors returns the successor task ids of taskID, in the order arcs
// were added.
func (p *Process) Successors(taskID string) []string {
	succ := p.successors[taskID]
	out := make([]string, len(succ))
	copy(out, succ)
	return out
}

// Predecessors returns the predecessor set of taskID.
func (p *Process) Predecessors(taskID string) map[string]bool {
	preds := p.predecessors[taskID]
	out := make(map[string]bool, len(preds))
	for id := range preds {
		out[id] = true
	}
	return out
}

// IsCompiled reports whether the most recent Compile call succeeded and no
// structural change has happened since.
func (p *Process) IsCompiled() bool {
	return p.isCompiled
}

// ErrorCount exposes the tally from the most recent Compile call.
func (p *Process) ErrorCount() int {
	return p.errorCount
}

// Dequeue pops the head of the FIFO token queue. Returns ok=false if empty.
func (p *Process) Dequeue() (QueueEntry, bool) {
	if len(p.queue) == 0 {
		return QueueEntry{}, false
	}
	head := p.queue[0]
	p.queue = p.queue[1:]
	return head, true
}

// QueueLen reports the number of entries waiting in the FIFO queue.
func (p *Process) QueueLen() int {
	return len(p.queue)
}

// Completed returns the accumulated list of terminal tokens.
func (p *Process) Completed() []ir.Token {
	return p.completed
}

// MarkCompleted appends token to the completed list. Only the Firing
// Engine should call it, when a fired token has no successors left.
func (p *Process) MarkCompleted(token ir.Token) {
	p.completed = append(p.completed, token)
}

// Enqueue appends entry to the back of the FIFO queue — the shared
// mechanism behind InjectToken and the join re-enqueue in ArriveToken.
func (p *Process) Enqueue(taskID string, token ir.Token) {
	p.queue = append(p.queue, QueueEntry{TaskID: taskID, Token: token})
}

// InjectToken appends (startTaskID, token) to the queue. The default policy
// merely warns when the process is not compiled; pass RequireCompiled to
// make that a hard error instead.
func (p *Process) InjectToken(startTaskID string, token ir.Token, policy CompilePolicy) error {
	if !p.isCompiled {
		if policy == RequireCompiled {
			return &NotCompiledError{ProcessID: p.ProcessID}
		}
		p.logger.Warn("graph: injecting token into uncompiled process", "process_id", p.ProcessID, "task_id", startTaskID)
	}
	p.Enqueue(startTaskID, token)
	return nil
}
