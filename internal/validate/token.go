// Package validate implements the token validator and the chain validator:
// field-level content checks against a resource spec, and producer/consumer
// schema compatibility checks between linked tasks.
package validate

import (
	"fmt"

	"github.com/tokenflow/engine/internal/catalogue"
	"github.com/tokenflow/engine/internal/ir"
)

// TokenValidator validates a content map against a named ResourceSpec drawn
// from a Catalogue.
type TokenValidator struct {
	catalogue *catalogue.Catalogue
}

// NewTokenValidator builds a TokenValidator backed by cat.
func NewTokenValidator(cat *catalogue.Catalogue) *TokenValidator {
	return &TokenValidator{catalogue: cat}
}

// Validate checks content against the ResourceSpec registered under specID.
// It returns nil on success, or a *ir.ValidationFailure describing the
// first violation encountered while walking the spec's fields in
// declaration order, failing fast on the first violation rather than
// collecting all of them.
func (v *TokenValidator) Validate(content map[string]any, specID string) error {
	spec, ok := v.catalogue.Lookup(specID)
	if !ok {
		return &ir.ValidationFailure{
			Code:    ir.CodeUnknownSpec,
			Field:   specID,
			Message: fmt.Sprintf("spec %q is not registered in the catalogue", specID),
		}
	}
	return ValidateAgainstSpec(content, spec)
}

// ValidateAgainstSpec checks content against an already-resolved spec. It is
// exported so callers and tests can validate without a catalogue lookup.
func ValidateAgainstSpec(content map[string]any, spec ir.ResourceSpec) error {
	for _, name := range spec.FieldOrder {
		fc := spec.Fields[name]
		val, present := content[name]

		if !present {
			if fc.Required {
				return &ir.ValidationFailure{
					Code:    ir.CodeMissingField,
					Field:   name,
					Message: fmt.Sprintf("required field %q is missing", name),
				}
			}
			continue
		}

		if err := checkConstraint(name, val, fc); err != nil {
			return err
		}
	}
	return nil
}

func checkConstraint(name string, val any, fc ir.FieldConstraint) error {
	switch fc.Type {
	case ir.FieldJSON:
		return nil // any JSON-representable value is acceptable
	case ir.FieldString:
		s, ok := val.(string)
		if !ok {
			return constraintViolation(name, fmt.Sprintf("expected string, got %T", val))
		}
		if fc.MaxLength != nil && len(s) > *fc.MaxLength {
			return constraintViolation(name, fmt.Sprintf("length %d exceeds max_length %d", len(s), *fc.MaxLength))
		}
		return nil
	case ir.FieldBool:
		if _, ok := val.(bool); !ok {
			return constraintViolation(name, fmt.Sprintf("expected bool, got %T", val))
		}
		return nil
	case ir.FieldInt:
		n, ok := asNumber(val)
		if !ok || n != float64(int64(n)) {
			return constraintViolation(name, fmt.Sprintf("expected int, got %T", val))
		}
		return checkNumericBounds(name, n, fc)
	case ir.FieldFloat:
		n, ok := asNumber(val)
		if !ok {
			return constraintViolation(name, fmt.Sprintf("expected numeric value, got %T", val))
		}
		return checkNumericBounds(name, n, fc)
	default:
		return constraintViolation(name, fmt.Sprintf("unsupported field type %q", fc.Type))
	}
}

func checkNumericBounds(name string, n float64, fc ir.FieldConstraint) error {
	if fc.MinValue != nil && n < *fc.MinValue {
		return constraintViolation(name, fmt.Sprintf("value %v below min_value %v", n, *fc.MinValue))
	}
	if fc.MaxValue != nil && n > *fc.MaxValue {
		return constraintViolation(name, fmt.Sprintf("value %v above max_value %v", n, *fc.MaxValue))
	}
	return nil
}

// asNumber accepts both integer and real Go representations, since content
// may be built programmatically (int, int64) or decoded from JSON (float64).
func asNumber(val any) (float64, bool) {
	switch n := val.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}

func constraintViolation(field, message string) error {
	return &ir.ValidationFailure{
		Code:    ir.CodeConstraintViolation,
		Field:   field,
		Message: message,
	}
}
