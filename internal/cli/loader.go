package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/tokenflow/engine/internal/catalogue"
	"github.com/tokenflow/engine/internal/graph"
	"github.com/tokenflow/engine/internal/ir"
)

// LoadCatalogue loads every `spec: {...}` CUE struct under dir. It fails
// only when dir is missing or not a directory, or when the CUE instance
// cannot be loaded or built; individual bad entries are dropped by the
// catalogue itself.
func LoadCatalogue(dir string) (*catalogue.Catalogue, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("catalogue directory %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%q is not a directory", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 || instances[0].Err != nil {
		return nil, fmt.Errorf("no loadable CUE instance in %q", dir)
	}

	ctx := cuecontext.New()
	value := ctx.BuildInstance(instances[0])
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("building CUE value from %q: %w", dir, err)
	}

	return catalogue.LoadValue(value, nil), nil
}

// guardDef and taskDef mirror ir.Guard/ir.Task with JSON tags, since the
// engine's own types intentionally carry no serialization tags.
type guardDef struct {
	TargetTopicID string  `json:"target_topic_id"`
	MinRelevance  float64 `json:"min_relevance"`
	Description   string  `json:"description,omitempty"`
}

type taskDef struct {
	TaskID        string         `json:"task_id"`
	Target        string         `json:"target"`
	InputSpecID   string         `json:"input_spec_id"`
	OutputSpecID  string         `json:"output_spec_id"`
	MergeStrategy string         `json:"merge_strategy,omitempty"`
	Guards        []guardDef     `json:"guards,omitempty"`
	Config        map[string]any `json:"config,omitempty"`
}

// ProcessDef is the on-disk JSON shape of a process graph: a task list plus
// an edge list. Tasks are defined this way, rather than in CUE alongside
// resource specs, because a task graph is structural wiring, not a schema.
type ProcessDef struct {
	ProcessID string      `json:"process_id"`
	Tasks     []taskDef   `json:"tasks"`
	Links     [][2]string `json:"links"`
}

// LoadProcessDef reads and parses a ProcessDef from path.
func LoadProcessDef(path string) (*ProcessDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading process definition %q: %w", path, err)
	}
	var def ProcessDef
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing process definition %q: %w", path, err)
	}
	return &def, nil
}

// BuildProcess constructs a graph.Process from def, registering every task
// and link in file order.
func (def *ProcessDef) BuildProcess() (*graph.Process, error) {
	proc := graph.New(def.ProcessID, nil)
	for _, td := range def.Tasks {
		task := ir.Task{
			TaskID:        td.TaskID,
			Target:        td.Target,
			InputSpecID:   td.InputSpecID,
			OutputSpecID:  td.OutputSpecID,
			MergeStrategy: ir.MergeStrategy(td.MergeStrategy),
			Config:        td.Config,
		}
		for _, g := range td.Guards {
			task.Guards = append(task.Guards, ir.Guard{
				TargetTopicID: g.TargetTopicID,
				MinRelevance:  g.MinRelevance,
				Description:   g.Description,
			})
		}
		proc.AddTask(task)
	}
	for _, link := range def.Links {
		if err := proc.AddLink(link[0], link[1]); err != nil {
			return nil, fmt.Errorf("adding link %s -> %s: %w", link[0], link[1], err)
		}
	}
	return proc, nil
}
