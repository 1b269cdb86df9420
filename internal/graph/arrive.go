package graph

import "github.com/tokenflow/engine/internal/ir"

// MergeEngine is the subset of merge.Engine the graph needs to combine
// tokens buffered at a join. Declared locally (rather than importing the
// merge package) so the dependency direction stays graph <- merge <- firing.
type MergeEngine interface {
	Merge(strategy ir.MergeStrategy, tokens []ir.Token) (ir.Token, error)
}

// ArriveToken buffers token under pending[toID][fromID]; once every
// predecessor of toID has buffered a token, it merges them (per toID's
// declared MergeStrategy), clears the buffer, and enqueues the merged
// token for toID.
//
// On a merge failure (e.g. MergeStrategy strict with conflicting keys), the
// error is returned to the caller and the pending buffer is left intact,
// so the caller can retry with a corrected token instead of losing the
// other predecessors' already-buffered tokens.
func (p *Process) ArriveToken(fromID, toID string, token ir.Token, merger MergeEngine) error {
	if p.pending[toID] == nil {
		p.pending[toID] = map[string]ir.Token{}
	}
	if _, already := p.pending[toID][fromID]; !already {
		p.arrivalOrder[toID] = append(p.arrivalOrder[toID], fromID)
	}
	p.pending[toID][fromID] = token

	if !p.allPredecessorsArrived(toID) {
		return nil
	}

	tokens := p.bufferedTokensInArrivalOrder(toID)
	task := p.tasks[toID]

	merged, err := merger.Merge(task.MergeStrategy, tokens)
	if err != nil {
		return err
	}

	delete(p.pending, toID)
	delete(p.arrivalOrder, toID)
	p.Enqueue(toID, merged)
	return nil
}

func (p *Process) allPredecessorsArrived(toID string) bool {
	preds := p.predecessors[toID]
	buffered := p.pending[toID]
	if len(preds) == 0 {
		// A task with no predecessors is never a join; ArriveToken should
		// not be called for it, but guard against vacuous "completeness".
		return len(buffered) > 0
	}
	if len(buffered) != len(preds) {
		return false
	}
	for pred := range preds {
		if _, ok := buffered[pred]; !ok {
			return false
		}
	}
	return true
}

// bufferedTokensInArrivalOrder returns the tokens pending at toID ordered by
// arrival — tracked via arrivalOrder, since Go maps have no stable order.
func (p *Process) bufferedTokensInArrivalOrder(toID string) []ir.Token {
	order := p.arrivalOrder[toID]
	buffered := p.pending[toID]
	tokens := make([]ir.Token, 0, len(buffered))
	for _, from := range order {
		if tok, ok := buffered[from]; ok {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// PendingFrom reports whether a token from fromID is currently buffered at
// toID's join — used by tests to assert retention after a merge conflict.
func (p *Process) PendingFrom(toID, fromID string) (ir.Token, bool) {
	tok, ok := p.pending[toID][fromID]
	return tok, ok
}

// PendingCount reports how many predecessors have buffered at toID.
func (p *Process) PendingCount(toID string) int {
	return len(p.pending[toID])
}
