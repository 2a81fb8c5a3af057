package models

import "encoding/json"

// ToolDefinition is the backend-agnostic description of one tool offered to
// an agent session. It is rendered into a backend-specific wire shape at
// request-build time only and never persisted in converted form.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ToolCall records one tool invocation made by the agent during a session.
type ToolCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}
