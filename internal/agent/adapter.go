// Package agent drives one model invocation per run: request construction,
// tool-call dispatch through the bridge, and telemetry capture.
package agent

import (
	"context"
	"fmt"

	"github.com/keiko-bench/keiko/internal/models"
	"github.com/keiko-bench/keiko/internal/toolbridge"
)

// maxTurns bounds the tool-calling loop of a single session. Hitting the
// bound ends the session with whatever content has accumulated.
const maxTurns = 40

// Request is one fully-assembled agent invocation.
type Request struct {
	System       string
	Prompt       string
	Model        string
	WorkspaceDir string
	Bridge       *toolbridge.Bridge
}

// Response carries the agent's reply plus session telemetry.
type Response struct {
	Content   string
	TokensIn  int
	TokensOut int
	CostUSD   float64
	ToolCalls []models.ToolCall
}

// Adapter sends one request to a concrete backend. Implementations run the
// full tool loop internally and return only when the model stops calling
// tools or the turn bound is hit.
type Adapter interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// NewAdapter constructs the adapter for a backend. The switch is exhaustive
// over the Backend enum; an unhandled value is a programming error surfaced
// at run construction, not dispatch time.
func NewAdapter(backend models.Backend) (Adapter, error) {
	switch backend {
	case models.BackendEcho:
		return &echoAdapter{}, nil
	case models.BackendAnthropic:
		return newAnthropicAdapter()
	case models.BackendOpenRouter:
		return newOpenRouterAdapter()
	case models.BackendClaudeCode:
		return newClaudeCodeAdapter()
	default:
		return nil, fmt.Errorf("no adapter for backend %s", backend)
	}
}
