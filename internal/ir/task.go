package ir

// TaskType distinguishes how a task's target is dispatched.
type TaskType string

const (
	TaskFunction  TaskType = "function"
	TaskAPI       TaskType = "api"
	TaskContainer TaskType = "container"
)

// TaskLayer is an organizational tag used by hosts to group tasks; the
// engine itself does not branch on it.
type TaskLayer string

const (
	LayerSurface     TaskLayer = "surface"
	LayerObservation TaskLayer = "observation"
	LayerComputation TaskLayer = "computation"
)

// MergeStrategy selects how tokens that arrive together at a join are
// combined.
type MergeStrategy string

const (
	MergeUnion  MergeStrategy = "union"
	MergeStrict MergeStrategy = "strict"
	MergeCustom MergeStrategy = "custom"
)

// Guard is a topic-relevance precondition attached to a Task. All guards on
// a task must pass against a token's Topics for the task to fire.
type Guard struct {
	TargetTopicID string
	MinRelevance  float64
	Description   string
}

// Passes reports whether score (looked up from a token via Token.TopicScore)
// satisfies this guard.
func (g Guard) Passes(score float64) bool {
	return score >= g.MinRelevance
}

// Task is a node (transition) in a Process graph. Tasks are frozen once
// constructed and registered with graph.Process.AddTask.
type Task struct {
	TaskID             string
	Type               TaskType
	Target             string // resolver string, form "module_path:symbol"
	Config             map[string]any
	Layer              TaskLayer
	RequiredAgentRoles []string
	RequiredAgentTypes []string
	Guards             []Guard
	InputSpecID        string
	OutputSpecID       string
	MergeStrategy      MergeStrategy
}
