package store

import (
	"context"
	"log/slog"

	"darwin.app/engine/common/id"
	"darwin.app/engine/common/llm"
	"darwin.app/engine/internal/model"
)

// AuditObserver records every structured LLM call in the audit log. Write
// failures are logged and never reach the caller.
func AuditObserver(evals LLMEvalStore) llm.Observer {
	return func(ctx context.Context, call llm.Call) {
		eval := &model.LLMEval{
			ID:         id.New(),
			Stage:      call.Request.Stage,
			InputText:  call.Request.UserPrompt,
			OutputJSON: call.Output,
			Model:      call.Model,
		}
		if call.Request.SubjectID != "" {
			eval.SubjectID = &call.Request.SubjectID
		}
		if call.Err != nil {
			msg := call.Err.Error()
			eval.Error = &msg
		}
		if r := call.Response; r != nil {
			latency := int(r.Latency.Milliseconds())
			eval.LatencyMs = &latency
			eval.PromptTokens = &r.PromptTokens
			eval.CompletionTokens = &r.CompletionTokens
		}

		// The caller's deadline may be nearly spent; the row is still wanted.
		if err := evals.Create(context.WithoutCancel(ctx), eval); err != nil {
			slog.WarnContext(ctx, "failed to record llm call", "error", err, "stage", eval.Stage)
		}
	}
}
