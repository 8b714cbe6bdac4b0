package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"darwin.app/engine/internal/model"
)

// Querier is the subset of core/db.DB the audit store needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type llmEvalStore struct {
	db Querier
}

func NewLLMEvalStore(db Querier) LLMEvalStore {
	return &llmEvalStore{db: db}
}

const insertLLMEval = `
INSERT INTO llm_evals (id, stage, subject_id, input_text, output_json, error, model, latency_ms, prompt_tokens, completion_tokens)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING created_at`

func (s *llmEvalStore) Create(ctx context.Context, eval *model.LLMEval) error {
	var output []byte
	if len(eval.OutputJSON) > 0 {
		output = eval.OutputJSON
	}

	err := s.db.QueryRow(ctx, insertLLMEval,
		eval.ID,
		eval.Stage,
		eval.SubjectID,
		eval.InputText,
		output,
		eval.Error,
		eval.Model,
		eval.LatencyMs,
		eval.PromptTokens,
		eval.CompletionTokens,
	).Scan(&eval.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting llm eval: %w", err)
	}
	return nil
}

const listLLMEvalsByStage = `
SELECT id, stage, subject_id, input_text, output_json, error, model, latency_ms, prompt_tokens, completion_tokens, created_at
FROM llm_evals
WHERE stage = $1
ORDER BY created_at DESC
LIMIT $2`

func (s *llmEvalStore) ListByStage(ctx context.Context, stage string, limit int) ([]model.LLMEval, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, listLLMEvalsByStage, stage, limit)
	if err != nil {
		return nil, fmt.Errorf("listing llm evals: %w", err)
	}
	defer rows.Close()

	var evals []model.LLMEval
	for rows.Next() {
		var e model.LLMEval
		var output []byte
		if err := rows.Scan(
			&e.ID, &e.Stage, &e.SubjectID, &e.InputText, &output, &e.Error,
			&e.Model, &e.LatencyMs, &e.PromptTokens, &e.CompletionTokens, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning llm eval: %w", err)
		}
		e.OutputJSON = output
		evals = append(evals, e)
	}
	return evals, rows.Err()
}
