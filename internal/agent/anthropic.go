package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/keiko-bench/keiko/internal/models"
)

const anthropicMaxTokens = 8192

// anthropicPricing maps model prefixes to USD cost per million input/output
// tokens, for telemetry only. Unknown models report zero cost.
var anthropicPricing = map[string][2]float64{
	"claude-3-5-haiku":  {0.80, 4.00},
	"claude-3-5-sonnet": {3.00, 15.00},
	"claude-sonnet-4":   {3.00, 15.00},
	"claude-opus-4":     {15.00, 75.00},
}

type anthropicAdapter struct {
	client anthropic.Client
}

func newAnthropicAdapter() (*anthropicAdapter, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
	}
	return &anthropicAdapter{client: anthropic.NewClient(option.WithAPIKey(apiKey))}, nil
}

func (a *anthropicAdapter) Send(ctx context.Context, req *Request) (*Response, error) {
	tools, err := anthropicTools(req)
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: anthropicMaxTokens,
		System:    []anthropic.TextBlockParam{{Text: req.System}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Tools: tools,
	}

	resp := &Response{ToolCalls: []models.ToolCall{}}

	for turn := 0; turn < maxTurns; turn++ {
		msg, err := a.client.Messages.New(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("anthropic API error: %w", err)
		}

		resp.TokensIn += int(msg.Usage.InputTokens)
		resp.TokensOut += int(msg.Usage.OutputTokens)

		var toolUses []anthropic.ToolUseBlock
		for _, block := range msg.Content {
			switch variant := block.AsAny().(type) {
			case anthropic.TextBlock:
				resp.Content += variant.Text
			case anthropic.ToolUseBlock:
				toolUses = append(toolUses, variant)
			}
		}

		if msg.StopReason != anthropic.StopReasonToolUse || len(toolUses) == 0 {
			break
		}

		params.Messages = append(params.Messages, msg.ToParam())

		results := make([]anthropic.ContentBlockParamUnion, 0, len(toolUses))
		for _, use := range toolUses {
			output, callErr := req.Bridge.Call(ctx, use.Name, json.RawMessage(use.Input))
			call := models.ToolCall{Name: use.Name, Arguments: string(use.Input), Output: output}
			if callErr != nil {
				call.IsError = true
				call.Output = callErr.Error()
				results = append(results, anthropicToolResult(use.ID, callErr.Error(), true))
			} else {
				results = append(results, anthropicToolResult(use.ID, output, false))
			}
			resp.ToolCalls = append(resp.ToolCalls, call)
		}
		params.Messages = append(params.Messages, anthropic.NewUserMessage(results...))
	}

	resp.CostUSD = anthropicCost(req.Model, resp.TokensIn, resp.TokensOut)
	return resp, nil
}

func anthropicToolResult(toolUseID, content string, isError bool) anthropic.ContentBlockParamUnion {
	block := anthropic.NewToolResultBlock(toolUseID)
	block.OfToolResult.Content = []anthropic.ToolResultBlockParamContentUnion{
		{OfText: &anthropic.TextBlockParam{Text: content}},
	}
	block.OfToolResult.IsError = anthropic.Bool(isError)
	return block
}

// anthropicTools renders the bridge inventory into the native pass-through
// shape the Messages API expects.
func anthropicTools(req *Request) ([]anthropic.ToolUnionParam, error) {
	defs := req.Bridge.Definitions()
	tools := make([]anthropic.ToolUnionParam, 0, len(defs))

	for _, def := range defs {
		var schema struct {
			Properties map[string]any `json:"properties"`
			Required   []string       `json:"required"`
		}
		if err := json.Unmarshal(def.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("parsing schema for tool %s: %w", def.Name, err)
		}

		inputSchema := anthropic.ToolInputSchemaParam{Properties: schema.Properties}
		if len(schema.Required) > 0 {
			inputSchema.SetExtraFields(map[string]any{"required": schema.Required})
		}

		tools = append(tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        def.Name,
				Description: anthropic.String(def.Description),
				InputSchema: inputSchema,
			},
		})
	}

	return tools, nil
}

func anthropicCost(model string, tokensIn, tokensOut int) float64 {
	for prefix, rates := range anthropicPricing {
		if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
			return float64(tokensIn)/1e6*rates[0] + float64(tokensOut)/1e6*rates[1]
		}
	}
	return 0
}
