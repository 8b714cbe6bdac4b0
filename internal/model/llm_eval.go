package model

import (
	"encoding/json"
	"time"
)

// LLMEval is one audited classifier or rule-extraction call.
type LLMEval struct {
	ID               int64           `json:"id"`
	Stage            string          `json:"stage"`
	SubjectID        *string         `json:"subject_id,omitempty"`
	InputText        string          `json:"input_text"`
	OutputJSON       json.RawMessage `json:"output_json,omitempty"`
	Error            *string         `json:"error,omitempty"`
	Model            string          `json:"model"`
	LatencyMs        *int            `json:"latency_ms,omitempty"`
	PromptTokens     *int            `json:"prompt_tokens,omitempty"`
	CompletionTokens *int            `json:"completion_tokens,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}
