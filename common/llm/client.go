package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Client is the structured-output chat boundary used by the classifier and
// the rule extractor. The reply is decoded into result; a reply that does not
// match the schema is an error, never a partially filled result.
type Client interface {
	Chat(ctx context.Context, req Request, result any) (*Response, error)
	Model() string
}

type Request struct {
	Stage        string // audit label, e.g. "classify" or "extract_rules"
	SubjectID    string // topic or task id the call is about
	SystemPrompt string
	UserPrompt   string
	SchemaName   string
	Schema       any
	MaxTokens    int
	Temperature  *float64 // nil = model default, explicit 0 = deterministic
}

type Response struct {
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
}

// Call is what an Observer sees for every Chat, successful or not.
type Call struct {
	Request  Request
	Model    string
	Output   json.RawMessage
	Response *Response
	Err      error
}

// Observer receives every completed call. It must not block for long; the
// audit log implementation writes one row and returns.
type Observer func(ctx context.Context, call Call)

type client struct {
	openai   openai.Client
	model    string
	observer Observer
}

// New builds an OpenAI-backed structured client. Any OpenAI-compatible
// endpoint works through cfg.BaseURL.
func New(cfg Config, observer Observer) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &client{
		openai:   openai.NewClient(opts...),
		model:    model,
		observer: observer,
	}, nil
}

func (c *client) Chat(ctx context.Context, req Request, result any) (resp *Response, err error) {
	var raw json.RawMessage
	if c.observer != nil {
		defer func() {
			c.observer(ctx, Call{Request: req, Model: c.model, Output: raw, Response: resp, Err: err})
		}()
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1000
	}

	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.SystemPrompt),
			openai.UserMessage(req.UserPrompt),
		},
		MaxTokens: openai.Int(int64(maxTokens)),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        req.SchemaName,
					Description: openai.String("Structured response schema"),
					Schema:      req.Schema,
					Strict:      openai.Bool(true),
				},
			},
		},
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	start := time.Now()
	completion, err := c.openai.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat: %w", err)
	}
	latency := time.Since(start)

	slog.DebugContext(ctx, "llm chat completed",
		"stage", req.Stage,
		"model", c.model,
		"duration_ms", latency.Milliseconds(),
		"prompt_tokens", completion.Usage.PromptTokens,
		"completion_tokens", completion.Usage.CompletionTokens)

	resp = &Response{
		PromptTokens:     int(completion.Usage.PromptTokens),
		CompletionTokens: int(completion.Usage.CompletionTokens),
		Latency:          latency,
	}

	if len(completion.Choices) == 0 {
		return resp, fmt.Errorf("no choices in response")
	}

	raw = json.RawMessage(completion.Choices[0].Message.Content)
	if err := json.Unmarshal(raw, result); err != nil {
		return resp, fmt.Errorf("unmarshal response: %w", err)
	}

	return resp, nil
}

func (c *client) Model() string {
	return c.model
}

func GenerateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

func Temp(t float64) *float64 {
	return &t
}

// IsRetryable reports whether err is worth another attempt. Darwin never
// retries in a loop; callers use this to pick the log level and to decide
// whether a topic is worth re-queueing by an operator.
func IsRetryable(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			slog.WarnContext(ctx, "llm rate limited", "status_code", apiErr.StatusCode)
			return true
		case apiErr.StatusCode >= 500:
			slog.WarnContext(ctx, "llm server error", "status_code", apiErr.StatusCode)
			return true
		default:
			return false
		}
	}

	return true
}
