package toolbridge

import (
	"encoding/json"

	"github.com/keiko-bench/keiko/internal/models"
)

// NativeTool is the pass-through wire shape used by backends that accept
// {name, description, input_schema} directly.
type NativeTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// OpenAITool is the function-wrapper wire shape used by OpenAI-compatible
// backends.
type OpenAITool struct {
	Type     string         `json:"type"`
	Function OpenAIFunction `json:"function"`
}

// OpenAIFunction carries the definition inside an OpenAITool. Parameters is
// the tool's input schema, renamed; nothing else changes.
type OpenAIFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToNative renders a definition into the pass-through shape. The mapping is
// lossless: all three fields carry over unchanged.
func ToNative(def models.ToolDefinition) NativeTool {
	return NativeTool{
		Name:        def.Name,
		Description: def.Description,
		InputSchema: def.InputSchema,
	}
}

// ToOpenAI renders a definition into the OpenAI function shape. The mapping
// is lossless: name and description are preserved and input_schema becomes
// parameters verbatim.
func ToOpenAI(def models.ToolDefinition) OpenAITool {
	return OpenAITool{
		Type: "function",
		Function: OpenAIFunction{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.InputSchema,
		},
	}
}
