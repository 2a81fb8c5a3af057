package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/keiko-bench/keiko/internal/models"
)

// claudeCodeAdapter shells out to a locally-installed coding agent CLI.
// The CLI owns its own tool loop inside the workspace, so the bridge is not
// consulted; telemetry comes from the CLI's JSON result envelope.
type claudeCodeAdapter struct {
	binary string
}

type claudeCodeResult struct {
	Result  string  `json:"result"`
	IsError bool    `json:"is_error"`
	CostUSD float64 `json:"total_cost_usd"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	NumTurns int `json:"num_turns"`
}

func newClaudeCodeAdapter() (*claudeCodeAdapter, error) {
	binary, err := exec.LookPath("claude")
	if err != nil {
		return nil, fmt.Errorf("claude CLI not found on PATH: %w", err)
	}
	return &claudeCodeAdapter{binary: binary}, nil
}

func (c *claudeCodeAdapter) Send(ctx context.Context, req *Request) (*Response, error) {
	args := []string{"-p", req.Prompt, "--output-format", "json"}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.System != "" {
		args = append(args, "--append-system-prompt", req.System)
	}

	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Dir = req.WorkspaceDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("claude CLI failed: %w: %s", err, stderr.String())
	}

	var result claudeCodeResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return nil, fmt.Errorf("parsing claude CLI output: %w", err)
	}
	if result.IsError {
		return nil, fmt.Errorf("claude CLI reported an error: %s", result.Result)
	}

	return &Response{
		Content:   result.Result,
		TokensIn:  result.Usage.InputTokens,
		TokensOut: result.Usage.OutputTokens,
		CostUSD:   result.CostUSD,
		ToolCalls: []models.ToolCall{},
	}, nil
}
