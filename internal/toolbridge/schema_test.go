package toolbridge

import (
	"encoding/json"
	"testing"

	"github.com/keiko-bench/keiko/internal/models"
	"github.com/stretchr/testify/require"
)

func TestToOpenAI_Lossless(t *testing.T) {
	def := models.ToolDefinition{
		Name:        "readFile",
		Description: "d",
		InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
	}

	wire := ToOpenAI(def)

	data, err := json.Marshal(wire)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"type": "function",
		"function": {
			"name": "readFile",
			"description": "d",
			"parameters": {"type": "object", "properties": {}}
		}
	}`, string(data))
}

func TestToNative_Lossless(t *testing.T) {
	def := models.ToolDefinition{
		Name:        "readFile",
		Description: "d",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`),
	}

	wire := ToNative(def)
	require.Equal(t, def.Name, wire.Name)
	require.Equal(t, def.Description, wire.Description)
	require.JSONEq(t, string(def.InputSchema), string(wire.InputSchema))
}

func TestReflectedSchemasAreObjects(t *testing.T) {
	b, err := Build(t.TempDir(), nil, nil)
	require.NoError(t, err)

	for _, def := range b.Definitions() {
		var schema map[string]any
		require.NoError(t, json.Unmarshal(def.InputSchema, &schema), def.Name)
		require.Equal(t, "object", schema["type"], def.Name)
		require.Contains(t, schema, "properties", def.Name)
	}
}
