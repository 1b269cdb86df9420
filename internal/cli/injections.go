package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tokenflow/engine/internal/graph"
	"github.com/tokenflow/engine/internal/ir"
)

// injectionDef is the on-disk JSON shape of one token injection.
type injectionDef struct {
	StartTaskID string             `json:"start_task_id"`
	TraceID     string             `json:"trace_id"`
	SourceID    string             `json:"source_id"`
	Content     map[string]any     `json:"content"`
	Topics      map[string]float64 `json:"topics,omitempty"`
}

// LoadInjections reads a JSON array of injectionDef from path.
func LoadInjections(path string) ([]injectionDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading injections %q: %w", path, err)
	}
	var defs []injectionDef
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parsing injections %q: %w", path, err)
	}
	return defs, nil
}

// ApplyInjections builds a Token for each def and enqueues it at
// StartTaskID, using the process's current compile state (AllowUncompiled)
// so a deliberately-uncompiled process can still be smoke tested.
func ApplyInjections(proc *graph.Process, defs []injectionDef) error {
	now := time.Now()
	for _, def := range defs {
		tok, err := ir.New(def.TraceID, def.SourceID, def.Content, def.Topics, now)
		if err != nil {
			return fmt.Errorf("injection %q: %w", def.TraceID, err)
		}
		if err := proc.InjectToken(def.StartTaskID, tok, graph.AllowUncompiled); err != nil {
			return fmt.Errorf("injection %q: %w", def.TraceID, err)
		}
	}
	return nil
}
