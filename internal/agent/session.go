package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/keiko-bench/keiko/internal/models"
	"github.com/keiko-bench/keiko/internal/toolbridge"
)

// AdapterFactory builds the adapter for a backend. Tests substitute a stub
// factory; production code uses NewAdapter.
type AdapterFactory func(models.Backend) (Adapter, error)

// Session drives one model invocation for a run.
type Session struct {
	factory AdapterFactory
	logger  *slog.Logger
}

// Result is the session outcome handed back to the executor. The response
// is embedded so telemetry fields read directly off the result.
type Result struct {
	*Response
	Duration time.Duration
}

// NewSession returns a session using the production adapter factory.
func NewSession(logger *slog.Logger) *Session {
	return NewSessionWithFactory(NewAdapter, logger)
}

// NewSessionWithFactory returns a session with a custom adapter factory.
func NewSessionWithFactory(factory AdapterFactory, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{factory: factory, logger: logger}
}

// Run performs one agent invocation: a system message describing the task,
// workspace, and tools, and a user message with the tier prompt. Adapter
// errors and panics are contained here and returned as errors, never
// propagated past the session.
func (s *Session) Run(ctx context.Context, comb models.Combination, workspaceDir, promptText string, bridge *toolbridge.Bridge) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("adapter panic for backend %s: %v", comb.Backend, r)
		}
	}()

	adapter, err := s.factory(comb.Backend)
	if err != nil {
		return nil, fmt.Errorf("building adapter for backend %s: %w", comb.Backend, err)
	}

	req := &Request{
		System:       systemMessage(comb, workspaceDir, bridge),
		Prompt:       promptText,
		Model:        comb.Model,
		WorkspaceDir: workspaceDir,
		Bridge:       bridge,
	}

	start := time.Now()
	resp, err := adapter.Send(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("agent invocation failed: %w", err)
	}

	s.logger.Debug("agent session finished",
		"combination", comb.Label(),
		"tokens_in", resp.TokensIn,
		"tokens_out", resp.TokensOut,
		"tool_calls", len(resp.ToolCalls),
		"duration_ms", elapsed.Milliseconds())

	return &Result{Response: resp, Duration: elapsed}, nil
}

func systemMessage(comb models.Combination, workspaceDir string, bridge *toolbridge.Bridge) string {
	var b strings.Builder
	b.WriteString("You are a coding agent working on a benchmark task.\n\n")
	fmt.Fprintf(&b, "Suite: %s\nScenario: %s\n", comb.Suite, comb.Scenario)
	fmt.Fprintf(&b, "Your workspace is %s. All file paths are relative to it.\n", workspaceDir)

	defs := bridge.Definitions()
	if len(defs) > 0 {
		b.WriteString("\nAvailable tools:\n")
		for _, def := range defs {
			fmt.Fprintf(&b, "- %s: %s\n", def.Name, def.Description)
		}
	}

	b.WriteString("\nComplete the task described in the next message. Make your changes directly in the workspace.")
	return b.String()
}
