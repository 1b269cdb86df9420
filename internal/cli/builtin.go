package cli

import (
	"context"

	"github.com/tokenflow/engine/internal/firing"
)

// BuiltinRegistry returns the fixed set of task handlers the CLI's run
// command can resolve. A host embedding the engine registers its own
// domain handlers directly against firing.Registry; these two are only
// enough to smoke test a process definition end to end without writing Go.
func BuiltinRegistry() *firing.Registry {
	reg := firing.NewRegistry()
	reg.Register("builtin:identity", identity)
	reg.Register("builtin:noop", noop)
	return reg
}

func identity(_ context.Context, content, _ map[string]any) (map[string]any, error) {
	return content, nil
}

func noop(_ context.Context, _, _ map[string]any) (map[string]any, error) {
	return map[string]any{}, nil
}
