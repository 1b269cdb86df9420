package firing

import (
	"context"
	"testing"
	"time"

	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenflow/engine/internal/catalogue"
	"github.com/tokenflow/engine/internal/graph"
	"github.com/tokenflow/engine/internal/ir"
	"github.com/tokenflow/engine/internal/validate"
)

func testCatalogue(t *testing.T) *catalogue.Catalogue {
	t.Helper()
	ctx := cuecontext.New()
	v := ctx.CompileString(`
spec: {
	"intake": {
		fields: { text: {type: "string", required: true}, score: {type: "float", required: true} }
	}
	"sentiment": {
		fields: { sentiment: {type: "float", required: true} }
	}
	"verdict": {
		fields: { verdict: {type: "string", required: true} }
	}
}
`)
	return catalogue.LoadValue(v, nil)
}

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func TestRunStep_QueueEmptyReturnsNil(t *testing.T) {
	cat := testCatalogue(t)
	validator := validate.NewTokenValidator(cat)
	reg := NewRegistry()
	p := graph.New("p1", nil)

	eng := New(validator, reg, time.Hour)
	result := eng.RunStep(context.Background(), p)
	assert.Nil(t, result)
}

func TestRunStep_LinearSuccess(t *testing.T) {
	cat := testCatalogue(t)
	validator := validate.NewTokenValidator(cat)
	reg := NewRegistry()
	reg.Register("pkg:analyzeSentiment", func(_ context.Context, content, _ map[string]any) (map[string]any, error) {
		return map[string]any{"sentiment": 0.4}, nil
	})
	reg.Register("pkg:summarize", func(_ context.Context, content, _ map[string]any) (map[string]any, error) {
		return map[string]any{"verdict": "ok"}, nil
	})

	p := graph.New("p1", nil)
	p.AddTask(ir.Task{TaskID: "A", Target: "pkg:analyzeSentiment", InputSpecID: "intake", OutputSpecID: "sentiment"})
	p.AddTask(ir.Task{TaskID: "B", Target: "pkg:summarize", InputSpecID: "sentiment", OutputSpecID: "verdict"})
	require.NoError(t, p.AddLink("A", "B"))

	now := time.Now()
	tok, err := ir.New("trace-1", "src-1", map[string]any{"text": "hello", "score": 0.8}, map[string]float64{"fin": 0.9}, now)
	require.NoError(t, err)
	require.NoError(t, p.InjectToken("A", tok, graph.AllowUncompiled))

	eng := New(validator, reg, time.Hour, WithClock(fixedClock(now)))

	r1 := eng.RunStep(context.Background(), p)
	require.NotNil(t, r1)
	assert.True(t, r1.Success)
	assert.Equal(t, 1, r1.RoutesTriggered)

	r2 := eng.RunStep(context.Background(), p)
	require.NotNil(t, r2)
	assert.True(t, r2.Success)
	assert.Equal(t, 0, r2.RoutesTriggered)

	completed := p.Completed()
	require.Len(t, completed, 1)
	assert.Equal(t, []string{"A", "B"}, completed[0].History)
	assert.Equal(t, "ok", completed[0].Content["verdict"])
}

func TestRunStep_GuardStopsRouting(t *testing.T) {
	cat := testCatalogue(t)
	validator := validate.NewTokenValidator(cat)
	reg := NewRegistry()
	reg.Register("pkg:analyzeSentiment", func(_ context.Context, content, _ map[string]any) (map[string]any, error) {
		return map[string]any{"sentiment": 0.4}, nil
	})

	p := graph.New("p1", nil)
	p.AddTask(ir.Task{TaskID: "A", Target: "pkg:analyzeSentiment", InputSpecID: "intake", OutputSpecID: "sentiment"})
	p.AddTask(ir.Task{
		TaskID:       "B",
		InputSpecID:  "sentiment",
		OutputSpecID: "verdict",
		Guards:       []ir.Guard{{TargetTopicID: "fin", MinRelevance: 0.7}},
	})
	require.NoError(t, p.AddLink("A", "B"))

	now := time.Now()
	tok, err := ir.New("trace-1", "src-1", map[string]any{"text": "hello", "score": 0.8}, map[string]float64{"fin": 0.5}, now)
	require.NoError(t, err)
	require.NoError(t, p.InjectToken("A", tok, graph.AllowUncompiled))

	eng := New(validator, reg, time.Hour, WithClock(fixedClock(now)))
	result := eng.RunStep(context.Background(), p)
	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.RoutesTriggered)
	assert.Empty(t, p.Completed())
	assert.Equal(t, 0, p.QueueLen())
}

func TestRunStep_TTLExpiry(t *testing.T) {
	cat := testCatalogue(t)
	validator := validate.NewTokenValidator(cat)
	reg := NewRegistry()
	called := false
	reg.Register("pkg:never", func(_ context.Context, content, _ map[string]any) (map[string]any, error) {
		called = true
		return content, nil
	})

	p := graph.New("p1", nil)
	p.AddTask(ir.Task{TaskID: "A", Target: "pkg:never", InputSpecID: "intake", OutputSpecID: "intake"})

	now := time.Now()
	old := now.Add(-2 * time.Hour)
	tok, err := ir.New("trace-1", "src-1", map[string]any{"text": "x", "score": 0.1}, nil, old)
	require.NoError(t, err)
	require.NoError(t, p.InjectToken("A", tok, graph.AllowUncompiled))

	eng := New(validator, reg, time.Hour, WithClock(fixedClock(now)))
	result := eng.RunStep(context.Background(), p)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.False(t, called)
}

func TestRunStep_GuardFailMessageExact(t *testing.T) {
	cat := testCatalogue(t)
	validator := validate.NewTokenValidator(cat)
	reg := NewRegistry()

	p := graph.New("p1", nil)
	p.AddTask(ir.Task{
		TaskID:       "A",
		InputSpecID:  "intake",
		OutputSpecID: "intake",
		Guards:       []ir.Guard{{TargetTopicID: "fin", MinRelevance: 0.9}},
	})

	now := time.Now()
	tok, err := ir.New("trace-1", "src-1", map[string]any{"text": "x", "score": 0.1}, map[string]float64{"fin": 0.1}, now)
	require.NoError(t, err)
	require.NoError(t, p.InjectToken("A", tok, graph.AllowUncompiled))

	eng := New(validator, reg, time.Hour, WithClock(fixedClock(now)))
	result := eng.RunStep(context.Background(), p)
	require.NotNil(t, result)
	assert.Equal(t, "Guard Condition Failed", result.Message)
}

func TestRunStep_InputSpecFailureDropsToken(t *testing.T) {
	cat := testCatalogue(t)
	validator := validate.NewTokenValidator(cat)
	reg := NewRegistry()

	p := graph.New("p1", nil)
	p.AddTask(ir.Task{TaskID: "A", Target: "pkg:x", InputSpecID: "intake", OutputSpecID: "intake"})

	now := time.Now()
	tok, err := ir.New("trace-1", "src-1", map[string]any{}, nil, now) // missing required fields
	require.NoError(t, err)
	require.NoError(t, p.InjectToken("A", tok, graph.AllowUncompiled))

	var dropped bool
	eng := New(validator, reg, time.Hour, WithClock(fixedClock(now)), WithOnDrop(func(taskID string, token ir.Token, reason string) {
		dropped = true
	}))
	result := eng.RunStep(context.Background(), p)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.True(t, dropped)
	assert.Equal(t, 0, p.QueueLen())
}

func TestRunStep_HistoryMonotonicity(t *testing.T) {
	cat := testCatalogue(t)
	validator := validate.NewTokenValidator(cat)
	reg := NewRegistry()
	reg.Register("pkg:x", func(_ context.Context, content, _ map[string]any) (map[string]any, error) {
		return map[string]any{"text": "y", "score": 0.2}, nil
	})

	p := graph.New("p1", nil)
	p.AddTask(ir.Task{TaskID: "A", Target: "pkg:x", InputSpecID: "intake", OutputSpecID: "intake"})

	now := time.Now()
	tok, err := ir.New("trace-1", "src-1", map[string]any{"text": "x", "score": 0.1}, nil, now)
	require.NoError(t, err)
	require.NoError(t, p.InjectToken("A", tok, graph.AllowUncompiled))

	eng := New(validator, reg, time.Hour, WithClock(fixedClock(now)))
	result := eng.RunStep(context.Background(), p)
	require.NotNil(t, result)
	require.True(t, result.Success)
	require.NotNil(t, result.NewToken)
	assert.Equal(t, []string{"A"}, result.NewToken.History)
	assert.Len(t, result.NewToken.History, len(tok.History)+1)
	assert.Equal(t, tok.TraceID, result.NewToken.TraceID)
	assert.Equal(t, tok.SourceID, result.NewToken.SourceID)
}

func joinProcess(t *testing.T, strategy ir.MergeStrategy) *graph.Process {
	t.Helper()
	p := graph.New("join", nil)
	p.AddTask(ir.Task{TaskID: "A", Target: "pkg:emitA", InputSpecID: "xval", OutputSpecID: "xval"})
	p.AddTask(ir.Task{TaskID: "B", Target: "pkg:emitB", InputSpecID: "xval", OutputSpecID: "xval"})
	p.AddTask(ir.Task{TaskID: "C", Target: "pkg:emitA", InputSpecID: "xval", OutputSpecID: "xval", MergeStrategy: strategy})
	require.NoError(t, p.AddLink("A", "C"))
	require.NoError(t, p.AddLink("B", "C"))
	return p
}

func joinCatalogue(t *testing.T) *catalogue.Catalogue {
	t.Helper()
	ctx := cuecontext.New()
	v := ctx.CompileString(`
spec: {
	"xval": {
		fields: { x: {type: "float", required: true} }
	}
}
`)
	return catalogue.LoadValue(v, nil)
}

func TestRunStep_JoinWithStrictMergeFiresExactlyOnce(t *testing.T) {
	cat := joinCatalogue(t)
	validator := validate.NewTokenValidator(cat)
	reg := NewRegistry()
	emit := func(_ context.Context, _, _ map[string]any) (map[string]any, error) {
		return map[string]any{"x": 1.0}, nil
	}
	reg.Register("pkg:emitA", emit)
	reg.Register("pkg:emitB", emit)

	p := joinProcess(t, ir.MergeStrict)

	now := time.Now()
	tokA, err := ir.New("trace-a", "src", map[string]any{"x": 0.0}, nil, now)
	require.NoError(t, err)
	tokB, err := ir.New("trace-b", "src", map[string]any{"x": 0.0}, nil, now)
	require.NoError(t, err)
	require.NoError(t, p.InjectToken("A", tokA, graph.AllowUncompiled))
	require.NoError(t, p.InjectToken("B", tokB, graph.AllowUncompiled))

	eng := New(validator, reg, time.Hour, WithClock(fixedClock(now)))

	rA := eng.RunStep(context.Background(), p)
	require.NotNil(t, rA)
	require.True(t, rA.Success)
	assert.Equal(t, 1, rA.RoutesTriggered)
	assert.Equal(t, 1, p.QueueLen(), "B is still queued, C must not be")

	rB := eng.RunStep(context.Background(), p)
	require.NotNil(t, rB)
	require.True(t, rB.Success)
	assert.Equal(t, 1, rB.RoutesTriggered)
	assert.Equal(t, 1, p.QueueLen(), "join complete, C enqueued once")

	rC := eng.RunStep(context.Background(), p)
	require.NotNil(t, rC)
	require.True(t, rC.Success)
	assert.Equal(t, "C", rC.TaskID)

	assert.Nil(t, eng.RunStep(context.Background(), p), "C fires exactly once")
	completed := p.Completed()
	require.Len(t, completed, 1)
	assert.Equal(t, 1.0, completed[0].Content["x"])
	assert.Equal(t, "trace-a", completed[0].TraceID, "merged token takes the first arrival's trace id")
	assert.Equal(t, []string{"C"}, completed[0].History, "merged token starts with no history, C appends itself on firing")
}

func TestRunStep_StrictMergeConflictRetainsJoinBuffer(t *testing.T) {
	cat := joinCatalogue(t)
	validator := validate.NewTokenValidator(cat)
	reg := NewRegistry()
	reg.Register("pkg:emitA", func(_ context.Context, _, _ map[string]any) (map[string]any, error) {
		return map[string]any{"x": 1.0}, nil
	})
	reg.Register("pkg:emitB", func(_ context.Context, _, _ map[string]any) (map[string]any, error) {
		return map[string]any{"x": 2.0}, nil
	})

	p := joinProcess(t, ir.MergeStrict)

	now := time.Now()
	tokA, err := ir.New("trace-a", "src", map[string]any{"x": 0.0}, nil, now)
	require.NoError(t, err)
	tokB, err := ir.New("trace-b", "src", map[string]any{"x": 0.0}, nil, now)
	require.NoError(t, err)
	require.NoError(t, p.InjectToken("A", tokA, graph.AllowUncompiled))
	require.NoError(t, p.InjectToken("B", tokB, graph.AllowUncompiled))

	eng := New(validator, reg, time.Hour, WithClock(fixedClock(now)))

	rA := eng.RunStep(context.Background(), p)
	require.NotNil(t, rA)
	assert.Equal(t, 1, rA.RoutesTriggered)

	rB := eng.RunStep(context.Background(), p)
	require.NotNil(t, rB)
	require.True(t, rB.Success, "B itself fired fine, only delivery to the join failed")
	assert.Equal(t, 0, rB.RoutesTriggered, "the conflicting delivery does not count")

	assert.Equal(t, 0, p.QueueLen(), "C's queue entry must not be created")
	assert.Equal(t, 2, p.PendingCount("C"), "both buffered tokens are retained")
	assert.Empty(t, p.Completed())
}

func TestRunStep_EnvelopeRejectsEmptyTraceID(t *testing.T) {
	cat := testCatalogue(t)
	validator := validate.NewTokenValidator(cat)
	reg := NewRegistry()

	p := graph.New("p1", nil)
	p.AddTask(ir.Task{TaskID: "A", Target: "pkg:x", InputSpecID: "intake", OutputSpecID: "intake"})

	now := time.Now()
	// Bypass ir.New, which would reject this at construction.
	p.Enqueue("A", ir.Token{TraceID: "", SourceID: "src", CreatedAt: now, Content: map[string]any{}})

	eng := New(validator, reg, time.Hour, WithClock(fixedClock(now)))
	result := eng.RunStep(context.Background(), p)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "trace_id is empty")
}

func TestRunStep_EnvelopeRejectsTopicScoreOutOfRange(t *testing.T) {
	cat := testCatalogue(t)
	validator := validate.NewTokenValidator(cat)
	reg := NewRegistry()

	p := graph.New("p1", nil)
	p.AddTask(ir.Task{TaskID: "A", Target: "pkg:x", InputSpecID: "intake", OutputSpecID: "intake"})

	now := time.Now()
	p.Enqueue("A", ir.Token{
		TraceID:   "trace-1",
		SourceID:  "src",
		CreatedAt: now,
		Content:   map[string]any{"text": "x", "score": 0.1},
		Topics:    map[string]float64{"fin": 1.5},
	})

	eng := New(validator, reg, time.Hour, WithClock(fixedClock(now)))
	result := eng.RunStep(context.Background(), p)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "out of [0,1]")
}
