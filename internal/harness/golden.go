package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// AssertGolden runs scenario and compares its Result, serialized as
// indented JSON, against testdata/golden/<scenario.Name>.golden.
//
// Regenerate golden files with: go test ./internal/harness/... -update
func AssertGolden(t *testing.T, scenario Scenario) *Result {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		t.Fatalf("harness: scenario %q failed to run: %v", scenario.Name, err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		t.Fatalf("harness: scenario %q: marshal result: %v", scenario.Name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)

	return result
}
