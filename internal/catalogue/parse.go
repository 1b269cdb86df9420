package catalogue

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/tokenflow/engine/internal/ir"
)

// parseResourceSpec parses a single `spec.<id>` CUE struct into a
// ResourceSpec. Expected shape:
//
//	{
//	  associated_topic: "fin"
//	  fields: {
//	    text:  {type: "string", required: true, max_length: 500}
//	    score: {type: "float", required: true, min_value: 0, max_value: 1}
//	  }
//	}
func parseResourceSpec(specID string, v cue.Value) (*ir.ResourceSpec, error) {
	if err := v.Err(); err != nil {
		return nil, err
	}

	spec := &ir.ResourceSpec{
		SpecID: specID,
		Fields: map[string]ir.FieldConstraint{},
	}

	if topicVal := v.LookupPath(cue.ParsePath("associated_topic")); topicVal.Exists() {
		topic, err := topicVal.String()
		if err != nil {
			return nil, fmt.Errorf("associated_topic: %w", err)
		}
		spec.AssociatedTopic = topic
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		// A spec with no fields is legal (content is unconstrained, only the
		// spec_id needs to resolve for validate() to succeed).
		return spec, nil
	}

	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, fmt.Errorf("fields: %w", err)
	}

	for iter.Next() {
		name := iter.Label()
		fc, err := parseFieldConstraint(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("fields.%s: %w", name, err)
		}
		spec.Fields[name] = fc
		spec.FieldOrder = append(spec.FieldOrder, name)
	}

	return spec, nil
}

func parseFieldConstraint(v cue.Value) (ir.FieldConstraint, error) {
	var fc ir.FieldConstraint

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return fc, fmt.Errorf("type is required")
	}
	typeStr, err := typeVal.String()
	if err != nil {
		return fc, fmt.Errorf("type: %w", err)
	}
	fc.Type = ir.FieldType(typeStr)
	if !ir.ValidFieldType(fc.Type) {
		return fc, fmt.Errorf("unknown field type %q", typeStr)
	}

	if reqVal := v.LookupPath(cue.ParsePath("required")); reqVal.Exists() {
		required, err := reqVal.Bool()
		if err != nil {
			return fc, fmt.Errorf("required: %w", err)
		}
		fc.Required = required
	}

	if minVal := v.LookupPath(cue.ParsePath("min_value")); minVal.Exists() {
		f, err := minVal.Float64()
		if err != nil {
			return fc, fmt.Errorf("min_value: %w", err)
		}
		fc.MinValue = &f
	}

	if maxVal := v.LookupPath(cue.ParsePath("max_value")); maxVal.Exists() {
		f, err := maxVal.Float64()
		if err != nil {
			return fc, fmt.Errorf("max_value: %w", err)
		}
		fc.MaxValue = &f
	}

	if maxLenVal := v.LookupPath(cue.ParsePath("max_length")); maxLenVal.Exists() {
		n, err := maxLenVal.Int64()
		if err != nil {
			return fc, fmt.Errorf("max_length: %w", err)
		}
		length := int(n)
		fc.MaxLength = &length
	}

	if descVal := v.LookupPath(cue.ParsePath("description")); descVal.Exists() {
		desc, err := descVal.String()
		if err != nil {
			return fc, fmt.Errorf("description: %w", err)
		}
		fc.Description = desc
	}

	return fc, nil
}
