package catalogue

import (
	"testing"

	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenflow/engine/internal/ir"
)

func TestLoadValue_ParsesFieldsInDeclarationOrder(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
spec: {
	"finance.report": {
		associated_topic: "fin"
		fields: {
			text: {type: "string", required: true, max_length: 500}
			score: {type: "float", required: true, min_value: 0.0, max_value: 1.0}
		}
	}
}
`)

	cat := LoadValue(v, nil)
	require.Equal(t, 1, cat.Len())

	spec, ok := cat.Lookup("finance.report")
	require.True(t, ok)
	assert.Equal(t, "fin", spec.AssociatedTopic)
	assert.Equal(t, []string{"text", "score"}, spec.FieldOrder)

	text, ok := spec.Field("text")
	require.True(t, ok)
	assert.Equal(t, ir.FieldString, text.Type)
	assert.True(t, text.Required)
	require.NotNil(t, text.MaxLength)
	assert.Equal(t, 500, *text.MaxLength)

	score, ok := spec.Field("score")
	require.True(t, ok)
	assert.Equal(t, ir.FieldFloat, score.Type)
	require.NotNil(t, score.MinValue)
	require.NotNil(t, score.MaxValue)
	assert.Equal(t, 0.0, *score.MinValue)
	assert.Equal(t, 1.0, *score.MaxValue)
}

func TestLoadValue_DropsUnparsableEntryWithoutFailingLoad(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
spec: {
	"ok.spec": {
		fields: { a: {type: "string"} }
	}
	"broken.spec": {
		fields: { a: {type: "not-a-type"} }
	}
}
`)

	cat := LoadValue(v, nil)
	assert.Equal(t, 1, cat.Len())
	_, ok := cat.Lookup("ok.spec")
	assert.True(t, ok)
	_, ok = cat.Lookup("broken.spec")
	assert.False(t, ok)
}

func TestLoadValue_NoSpecStruct(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`other: {}`)

	cat := LoadValue(v, nil)
	assert.Equal(t, 0, cat.Len())
}

func TestEmpty(t *testing.T) {
	cat := Empty()
	assert.Equal(t, 0, cat.Len())
	_, ok := cat.Lookup("anything")
	assert.False(t, ok)
}
