package llm

import (
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/pkg/capability"
)

func TestToOllamaArgumentsRoundTrips(t *testing.T) {
	params := map[string]any{
		"brief": "spring sale",
		"count": float64(3),
		"tone":  "playful",
	}

	args := toOllamaArguments(params)
	assert.Equal(t, len(params), args.Len())
	assert.Equal(t, params, args.ToMap())

	v, ok := args.Get("brief")
	require.True(t, ok)
	assert.Equal(t, "spring sale", v)
}

func TestConvertToolsToOllama(t *testing.T) {
	defs := []capability.Definition{{
		Name:        "generate_creative",
		Description: "Generate ad creative variants.",
		InputSchema: capability.InputSchema{
			Type: "object",
			Properties: map[string]capability.Property{
				"brief": {Type: "string", Description: "Campaign brief"},
				"tone":  {Type: "string", Enum: []string{"playful", "professional"}},
			},
			Required: []string{"brief"},
		},
	}}

	tools := convertToolsToOllama(defs)
	require.Len(t, tools, 1)

	fn := tools[0].Function
	assert.Equal(t, "generate_creative", fn.Name)
	assert.Equal(t, []string{"brief"}, fn.Parameters.Required)
	require.NotNil(t, fn.Parameters.Properties)
	assert.Equal(t, 2, fn.Parameters.Properties.Len())

	brief, ok := fn.Parameters.Properties.Get("brief")
	require.True(t, ok)
	assert.Equal(t, api.PropertyType{"string"}, brief.Type)
	assert.Equal(t, "Campaign brief", brief.Description)

	tone, ok := fn.Parameters.Properties.Get("tone")
	require.True(t, ok)
	assert.Equal(t, []any{"playful", "professional"}, tone.Enum)
}
