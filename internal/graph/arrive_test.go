package graph

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenflow/engine/internal/ir"
)

type lastWriterWinsMerge struct{}

func (lastWriterWinsMerge) Merge(strategy ir.MergeStrategy, tokens []ir.Token) (ir.Token, error) {
	merged := tokens[0]
	content := map[string]any{}
	for _, tok := range tokens {
		for k, v := range tok.Content {
			content[k] = v
		}
	}
	merged.Content = content
	return merged, nil
}

var errConflict = errors.New("conflict")

type alwaysConflictMerge struct{}

func (alwaysConflictMerge) Merge(ir.MergeStrategy, []ir.Token) (ir.Token, error) {
	return ir.Token{}, errConflict
}

func setupJoin(t *testing.T) *Process {
	t.Helper()
	p := New("p1", nil)
	p.AddTask(ir.Task{TaskID: "A"})
	p.AddTask(ir.Task{TaskID: "B"})
	p.AddTask(ir.Task{TaskID: "C", MergeStrategy: ir.MergeUnion})
	require.NoError(t, p.AddLink("A", "C"))
	require.NoError(t, p.AddLink("B", "C"))
	return p
}

func TestArriveToken_WaitsForAllPredecessors(t *testing.T) {
	p := setupJoin(t)
	tokA, _ := ir.New("trace", "src", map[string]any{"x": 1}, nil, time.Now())

	err := p.ArriveToken("A", "C", tokA, lastWriterWinsMerge{})
	require.NoError(t, err)
	assert.Equal(t, 0, p.QueueLen(), "must not fire on a strict subset of predecessors")
	assert.Equal(t, 1, p.PendingCount("C"))
}

func TestArriveToken_FiresOnceAllPredecessorsArrive(t *testing.T) {
	p := setupJoin(t)
	tokA, _ := ir.New("trace", "src", map[string]any{"x": 1}, nil, time.Now())
	tokB, _ := ir.New("trace", "src", map[string]any{"y": 2}, nil, time.Now())

	require.NoError(t, p.ArriveToken("A", "C", tokA, lastWriterWinsMerge{}))
	require.NoError(t, p.ArriveToken("B", "C", tokB, lastWriterWinsMerge{}))

	assert.Equal(t, 1, p.QueueLen())
	entry, ok := p.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "C", entry.TaskID)
	assert.Equal(t, 1, entry.Token.Content["x"])
	assert.Equal(t, 2, entry.Token.Content["y"])
	assert.Equal(t, 0, p.PendingCount("C"))
}

func TestArriveToken_ConflictRetainsBuffer(t *testing.T) {
	p := setupJoin(t)
	tokA, _ := ir.New("trace", "src", map[string]any{"x": 1}, nil, time.Now())
	tokB, _ := ir.New("trace", "src", map[string]any{"x": 2}, nil, time.Now())

	require.NoError(t, p.ArriveToken("A", "C", tokA, alwaysConflictMerge{}))
	err := p.ArriveToken("B", "C", tokB, alwaysConflictMerge{})
	require.ErrorIs(t, err, errConflict)

	assert.Equal(t, 0, p.QueueLen(), "merge conflict must not enqueue")
	assert.Equal(t, 2, p.PendingCount("C"), "pending buffer must be retained, not cleared")
	_, ok := p.PendingFrom("C", "A")
	assert.True(t, ok)
	_, ok = p.PendingFrom("C", "B")
	assert.True(t, ok)
}
