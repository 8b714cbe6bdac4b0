package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/invopop/jsonschema"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250514"

type anthropicClient struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropicClient is the default backend of the fix agent. It drives the
// read/search/edit tool loop that turns a task into a patch.
func NewAnthropicClient(cfg Config) (AgentClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}

	return &anthropicClient{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

func (c *anthropicClient) Model() string {
	return c.model
}

func (c *anthropicClient) ChatWithTools(ctx context.Context, req AgentRequest) (*AgentResponse, error) {
	system, turns := anthropicTurns(req.Messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(turnMaxTokens(req.MaxTokens, c.maxTokens)),
		Messages:  turns,
		System:    system,
		Tools:     anthropicTools(req.Tools),
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	start := time.Now()
	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic chat with tools: %w", err)
	}

	out := &AgentResponse{
		FinishReason:     anthropicFinish(msg.StopReason),
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			out.Content += block.Text
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(block.Input),
			})
		}
	}

	logAgentTurn(ctx, ProviderAnthropic, c.model, start, out)
	return out, nil
}

// anthropicTurns splits the conversation into the system prompt and turns.
// The results of one agent step's tool calls are batched into a single user
// turn, right after the assistant turn that requested them.
func anthropicTurns(msgs []Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var system []anthropic.TextBlockParam
	turns := make([]anthropic.MessageParam, 0, len(msgs))
	pendingResults := -1

	for _, m := range msgs {
		if m.Role != "tool" {
			pendingResults = -1
		}
		switch m.Role {
		case "system":
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case "user":
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case "assistant":
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.ToolCalls)+1)
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				args := tc.Arguments
				if args == "" {
					args = "{}"
				}
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    tc.ID,
						Name:  tc.Name,
						Input: json.RawMessage(args),
					},
				})
			}
			turns = append(turns, anthropic.NewAssistantMessage(blocks...))
		case "tool":
			result := anthropic.NewToolResultBlock(m.ToolCallID, m.Content, m.IsError)
			if pendingResults >= 0 {
				turns[pendingResults].Content = append(turns[pendingResults].Content, result)
				continue
			}
			turns = append(turns, anthropic.NewUserMessage(result))
			pendingResults = len(turns) - 1
		}
	}
	return system, turns
}

func anthropicTools(tools []Tool) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		input := anthropic.ToolInputSchemaParam{}
		// input_schema takes the object's properties, not the reflected root.
		switch p := t.Parameters.(type) {
		case *jsonschema.Schema:
			if p != nil {
				input.Properties = p.Properties
				input.Required = p.Required
			}
		case nil:
		default:
			input.Properties = p
		}
		out[i] = anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: input,
			},
		}
	}
	return out
}

func anthropicFinish(reason anthropic.StopReason) string {
	switch reason {
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence:
		return FinishStop
	case anthropic.StopReasonToolUse:
		return FinishToolCalls
	case anthropic.StopReasonMaxTokens:
		return FinishLength
	}
	return string(reason)
}
