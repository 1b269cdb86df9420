package validate

import "github.com/tokenflow/engine/internal/ir"

// ChainValidator proves output-spec ⊇ input-spec between two linked tasks.
// It shares the same Catalogue as the TokenValidator.
type ChainValidator struct {
	catalogue lookup
}

// lookup is the minimal surface ChainValidator needs from a Catalogue,
// declared as an interface so tests can stub it without depending on the
// catalogue package's CUE machinery.
type lookup interface {
	Lookup(specID string) (ir.ResourceSpec, bool)
}

// NewChainValidator builds a ChainValidator backed by cat.
func NewChainValidator(cat lookup) *ChainValidator {
	return &ChainValidator{catalogue: cat}
}

// ValidateLink reports whether a token produced by a task declaring
// producerOutputSpecID may flow into a task declaring consumerInputSpecID,
// under three rules:
//  1. identical spec ids always accept;
//  2. either spec missing from the catalogue rejects;
//  3. otherwise every required consumer field must be declared by the
//     producer with the same type (numeric bounds are enforced at runtime
//     by the token validator, intentionally not checked here).
func (v *ChainValidator) ValidateLink(producerOutputSpecID, consumerInputSpecID string) bool {
	if producerOutputSpecID == consumerInputSpecID {
		return true
	}

	producer, ok := v.catalogue.Lookup(producerOutputSpecID)
	if !ok {
		return false
	}
	consumer, ok := v.catalogue.Lookup(consumerInputSpecID)
	if !ok {
		return false
	}

	for _, name := range consumer.FieldOrder {
		consumerField := consumer.Fields[name]
		producerField, declared := producer.Fields[name]
		if !declared {
			if consumerField.Required {
				return false
			}
			continue
		}
		if producerField.Type != consumerField.Type {
			return false
		}
	}
	return true
}
