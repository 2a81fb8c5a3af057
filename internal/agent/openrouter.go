package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"github.com/keiko-bench/keiko/internal/models"
	"github.com/keiko-bench/keiko/internal/toolbridge"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// openRouterAdapter speaks the OpenAI-compatible chat-completions protocol
// against OpenRouter, which fronts many model vendors behind one API.
type openRouterAdapter struct {
	client openai.Client
}

func newOpenRouterAdapter() (*openRouterAdapter, error) {
	apiKey := os.Getenv("OPENROUTER_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENROUTER_API_KEY environment variable not set")
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(openRouterBaseURL),
	)
	return &openRouterAdapter{client: client}, nil
}

func (o *openRouterAdapter) Send(ctx context.Context, req *Request) (*Response, error) {
	tools, err := openRouterTools(req)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.Prompt),
		},
		Tools: tools,
	}

	resp := &Response{ToolCalls: []models.ToolCall{}}

	for turn := 0; turn < maxTurns; turn++ {
		completion, err := o.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("openrouter API error: %w", err)
		}
		if len(completion.Choices) == 0 {
			return nil, fmt.Errorf("openrouter returned no choices")
		}

		resp.TokensIn += int(completion.Usage.PromptTokens)
		resp.TokensOut += int(completion.Usage.CompletionTokens)

		choice := completion.Choices[0]
		resp.Content += choice.Message.Content

		if len(choice.Message.ToolCalls) == 0 {
			break
		}

		params.Messages = append(params.Messages, choice.Message.ToParam())
		for _, call := range choice.Message.ToolCalls {
			name := call.Function.Name
			args := call.Function.Arguments

			output, callErr := req.Bridge.Call(ctx, name, json.RawMessage(args))
			record := models.ToolCall{Name: name, Arguments: args, Output: output}
			if callErr != nil {
				record.IsError = true
				record.Output = callErr.Error()
				output = callErr.Error()
			}
			resp.ToolCalls = append(resp.ToolCalls, record)
			params.Messages = append(params.Messages, openai.ToolMessage(output, call.ID))
		}
	}

	return resp, nil
}

// openRouterTools renders the bridge inventory into the OpenAI function
// wrapper shape.
func openRouterTools(req *Request) ([]openai.ChatCompletionToolUnionParam, error) {
	defs := req.Bridge.Definitions()
	tools := make([]openai.ChatCompletionToolUnionParam, 0, len(defs))

	for _, def := range defs {
		wire := toolbridge.ToOpenAI(def)

		var parameters shared.FunctionParameters
		if err := json.Unmarshal(wire.Function.Parameters, &parameters); err != nil {
			return nil, fmt.Errorf("parsing schema for tool %s: %w", def.Name, err)
		}

		tools = append(tools, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        wire.Function.Name,
			Description: openai.String(wire.Function.Description),
			Parameters:  parameters,
		}))
	}

	return tools, nil
}
