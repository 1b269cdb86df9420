// Package merge combines tokens that arrive together at a join per the
// declared MergeStrategy.
package merge

import (
	"fmt"
	"slices"

	"github.com/tokenflow/engine/internal/ir"
)

// ConflictError is returned by strict merges when two inputs disagree on a
// shared content key.
type ConflictError struct {
	Key string
	A   any
	B   any
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("merge conflict on key %q: %v != %v", e.Key, e.A, e.B)
}

// Engine merges tokens arriving at a join.
type Engine struct{}

// New constructs a Merge Engine. It has no state; a value receiver would
// work equally well, but a constructor keeps the call site symmetric with
// the other C-components.
func New() *Engine {
	return &Engine{}
}

// Merge combines tokens (a non-empty, arrival-ordered list) per strategy.
// The merged token's TraceID is taken from the first input; it carries no
// History — the caller (Firing Engine) appends the join task's id on the
// next evolution, once it actually fires. Topics are unioned taking the
// max score per key.
func (e *Engine) Merge(strategy ir.MergeStrategy, tokens []ir.Token) (ir.Token, error) {
	if len(tokens) == 0 {
		return ir.Token{}, fmt.Errorf("merge: no tokens to merge")
	}

	first := tokens[0]
	merged := ir.Token{
		TraceID:   first.TraceID,
		SourceID:  first.SourceID,
		CreatedAt: first.CreatedAt,
		Topics:    mergeTopics(tokens),
	}

	var err error
	switch strategy {
	case ir.MergeUnion:
		merged.Content = mergeUnion(tokens)
	case ir.MergeStrict:
		merged.Content, err = mergeStrict(tokens)
	case ir.MergeCustom:
		merged.Content = mergeCustom(tokens)
	default:
		return ir.Token{}, fmt.Errorf("merge: unknown strategy %q", strategy)
	}
	if err != nil {
		return ir.Token{}, err
	}
	return merged, nil
}

// mergeUnion overlays content maps in input order: later tokens win on key
// collision. merge([a]) == a.
func mergeUnion(tokens []ir.Token) map[string]any {
	out := map[string]any{}
	for _, tok := range tokens {
		for k, v := range tok.Content {
			out[k] = v
		}
	}
	return out
}

// mergeStrict is like mergeUnion but rejects any shared key whose values
// disagree across inputs: merge([a,a]) == a; merge([a,b]) fails on
// disagreement.
func mergeStrict(tokens []ir.Token) (map[string]any, error) {
	out := map[string]any{}
	for _, tok := range tokens {
		for k, v := range tok.Content {
			if existing, ok := out[k]; ok && !equalValue(existing, v) {
				return nil, &ConflictError{Key: k, A: existing, B: v}
			}
			out[k] = v
		}
	}
	return out, nil
}

// mergeCustom performs no semantic merge: the downstream task's function is
// expected to disambiguate the bundled inputs.
func mergeCustom(tokens []ir.Token) map[string]any {
	inputs := make([]any, 0, len(tokens))
	for _, tok := range tokens {
		inputs = append(inputs, tok.Content)
	}
	return map[string]any{
		"__inputs__": inputs,
		"__meta__":   "bundled",
	}
}

// mergeTopics unions the topic maps of every token, taking the maximum
// score per key.
func mergeTopics(tokens []ir.Token) map[string]float64 {
	out := map[string]float64{}
	for _, tok := range tokens {
		for topic, score := range tok.Topics {
			if existing, ok := out[topic]; !ok || score > existing {
				out[topic] = score
			}
		}
	}
	return out
}

func equalValue(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	// map/slice values are not comparable with ==; fall back to a shallow
	// structural check sufficient for JSON-shaped content.
	aSlice, aOK := a.([]any)
	bSlice, bOK := b.([]any)
	if aOK && bOK {
		if len(aSlice) != len(bSlice) {
			return false
		}
		return slices.EqualFunc(aSlice, bSlice, equalValue)
	}
	aMap, aOK := a.(map[string]any)
	bMap, bOK := b.(map[string]any)
	if aOK && bOK {
		if len(aMap) != len(bMap) {
			return false
		}
		for k, v := range aMap {
			bv, ok := bMap[k]
			if !ok || !equalValue(v, bv) {
				return false
			}
		}
		return true
	}
	return a == b
}
