// Package catalogue implements the spec catalogue: a read-only, load-once
// registry of resource specs used by the token and chain validators.
//
// Resource specs are authored as CUE structs and walked with the CUE Go
// API rather than a YAML decoder.
package catalogue

import (
	"log/slog"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/tokenflow/engine/internal/ir"
)

// Catalogue is a frozen, read-only mapping of spec_id to ResourceSpec. It is
// safe to share across goroutines once Load returns — it is never mutated
// afterward.
type Catalogue struct {
	specs map[string]ir.ResourceSpec
}

// Empty returns a Catalogue with no entries, useful for tests and as the
// starting point for LoadValue.
func Empty() *Catalogue {
	return &Catalogue{specs: map[string]ir.ResourceSpec{}}
}

// Lookup returns the resource spec registered under id, if any.
func (c *Catalogue) Lookup(id string) (ir.ResourceSpec, bool) {
	spec, ok := c.specs[id]
	return spec, ok
}

// Len reports the number of loaded specs.
func (c *Catalogue) Len() int {
	return len(c.specs)
}

// Load reads every `spec: {...}` CUE struct found under dir and parses each
// entry into a ResourceSpec. Catalogue load never fails: an individual
// entry that fails to parse is logged at warn level and dropped; the
// function always returns a (possibly empty) Catalogue.
func Load(dir string, logger *slog.Logger) *Catalogue {
	if logger == nil {
		logger = slog.Default()
	}
	c := Empty()

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		logger.Warn("catalogue: no CUE instances found", "dir", dir)
		return c
	}

	inst := instances[0]
	if inst.Err != nil {
		logger.Warn("catalogue: failed to load CUE instance", "dir", dir, "error", inst.Err)
		return c
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		logger.Warn("catalogue: failed to build CUE value", "dir", dir, "error", err)
		return c
	}

	c.loadFromValue(value, logger)
	return c
}

// LoadValue parses resource specs directly from an in-memory CUE value
// (e.g. ctx.CompileString("spec: {...}")) — used by callers that assemble
// the catalogue programmatically rather than from a directory on disk.
func LoadValue(v cue.Value, logger *slog.Logger) *Catalogue {
	if logger == nil {
		logger = slog.Default()
	}
	c := Empty()
	c.loadFromValue(v, logger)
	return c
}

func (c *Catalogue) loadFromValue(value cue.Value, logger *slog.Logger) {
	specsVal := value.LookupPath(cue.ParsePath("spec"))
	if !specsVal.Exists() {
		logger.Warn("catalogue: no top-level \"spec\" struct found")
		return
	}

	iter, err := specsVal.Fields()
	if err != nil {
		logger.Warn("catalogue: failed to iterate spec struct", "error", err)
		return
	}

	for iter.Next() {
		specID := iter.Label()
		spec, err := parseResourceSpec(specID, iter.Value())
		if err != nil {
			logger.Warn("catalogue: dropping unparsable spec entry", "spec_id", specID, "error", err)
			continue
		}
		c.specs[specID] = *spec
	}
}
