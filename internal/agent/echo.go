package agent

import (
	"context"

	"github.com/keiko-bench/keiko/internal/models"
)

// echoAdapter answers every request with its own prompt. It exists so the
// rest of the pipeline (workspace, validation, diffing, scoring) can be
// exercised without any model credentials. The executor skips the agent
// stage for echo combinations; this adapter only runs when invoked directly,
// e.g. from tests.
type echoAdapter struct{}

func (e *echoAdapter) Send(_ context.Context, req *Request) (*Response, error) {
	return &Response{
		Content:   req.Prompt,
		ToolCalls: []models.ToolCall{},
	}, nil
}
