// Package harness drives a complete process — catalogue, chain validation,
// compile, injection, and a RunStep loop — against a declared scenario and
// records a deterministic trace, for use by golden-file conformance tests.
package harness

import (
	"context"
	"fmt"
	"time"

	"cuelang.org/go/cue/cuecontext"

	"github.com/tokenflow/engine/internal/catalogue"
	"github.com/tokenflow/engine/internal/firing"
	"github.com/tokenflow/engine/internal/graph"
	"github.com/tokenflow/engine/internal/ir"
	"github.com/tokenflow/engine/internal/validate"
)

// Injection seeds one token into the process at StartTaskID.
type Injection struct {
	StartTaskID string
	TraceID     string
	SourceID    string
	Content     map[string]any
	Topics      map[string]float64
}

// Scenario is a self-contained process fixture: a CUE resource-spec source,
// a task/link graph, a set of handlers keyed by target, and the tokens to
// inject before pumping RunStep to completion.
type Scenario struct {
	Name         string
	CatalogueCUE string
	Tasks        []ir.Task
	Links        [][2]string
	Handlers     map[string]firing.TaskFunc
	Injections   []Injection
	TTL          time.Duration
	MaxSteps     int
	Now          time.Time
}

// TraceEvent is one recorded RunStep outcome.
type TraceEvent struct {
	TaskID          string `json:"task_id"`
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	RoutesTriggered int    `json:"routes_triggered"`
}

// Result is everything a golden-file assertion needs.
type Result struct {
	Trace     []TraceEvent `json:"trace"`
	Completed []ir.Token   `json:"completed"`
}

// Run compiles and executes scenario end to end. It returns an error only
// for fixture mistakes (bad CUE, unknown task ids in Links) — a firing
// failure mid-run is recorded in Result.Trace, not returned as an error.
func Run(scenario Scenario) (*Result, error) {
	if scenario.MaxSteps == 0 {
		scenario.MaxSteps = 1000
	}
	if scenario.TTL == 0 {
		scenario.TTL = time.Hour
	}
	now := scenario.Now
	if now.IsZero() {
		now = time.Now()
	}

	ctx := cuecontext.New()
	cueVal := ctx.CompileString(scenario.CatalogueCUE)
	if err := cueVal.Err(); err != nil {
		return nil, fmt.Errorf("harness: invalid catalogue CUE: %w", err)
	}
	cat := catalogue.LoadValue(cueVal, nil)

	tokenValidator := validate.NewTokenValidator(cat)
	chainValidator := validate.NewChainValidator(cat)

	proc := graph.New(scenario.Name, nil)
	for _, task := range scenario.Tasks {
		proc.AddTask(task)
	}
	for _, link := range scenario.Links {
		if err := proc.AddLink(link[0], link[1]); err != nil {
			return nil, fmt.Errorf("harness: %w", err)
		}
	}
	proc.Compile(chainValidator)

	reg := firing.NewRegistry()
	for target, fn := range scenario.Handlers {
		reg.Register(target, fn)
	}

	for _, inj := range scenario.Injections {
		tok, err := ir.New(inj.TraceID, inj.SourceID, inj.Content, inj.Topics, now)
		if err != nil {
			return nil, fmt.Errorf("harness: invalid injection token: %w", err)
		}
		if err := proc.InjectToken(inj.StartTaskID, tok, graph.AllowUncompiled); err != nil {
			return nil, fmt.Errorf("harness: %w", err)
		}
	}

	clockTime := now
	clock := func() time.Time { return clockTime }
	eng := firing.New(tokenValidator, reg, scenario.TTL, firing.WithClock(clock))

	result := &Result{}
	for i := 0; i < scenario.MaxSteps; i++ {
		r := eng.RunStep(context.Background(), proc)
		if r == nil {
			break
		}
		result.Trace = append(result.Trace, TraceEvent{
			TaskID:          r.TaskID,
			Success:         r.Success,
			Message:         r.Message,
			RoutesTriggered: r.RoutesTriggered,
		})
	}
	result.Completed = proc.Completed()
	return result, nil
}
