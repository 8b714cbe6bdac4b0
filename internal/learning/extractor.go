package learning

import (
	"context"
	"fmt"
	"strings"

	"darwin.app/engine/common/llm"
	"darwin.app/engine/internal/model"
)

// StageExtractRules labels rule extraction calls in the audit log.
const StageExtractRules = "extract_rules"

const maxRulesPerReview = 5

type RuleExtractor interface {
	Extract(ctx context.Context, task *model.Task, feedback string) ([]model.ExtractedRule, error)
}

type extractionResponse struct {
	Rules []extractedRule `json:"rules" jsonschema_description:"Reusable rules. Empty when the feedback is specific to this change only."`
}

type extractedRule struct {
	Content  string `json:"content" jsonschema_description:"The rule as one imperative sentence, e.g. 'Wrap errors with context using fmt.Errorf and %w'"`
	Category string `json:"category" jsonschema:"enum=style,enum=testing,enum=structure,enum=behavior,enum=other"`
}

var extractionSchema = llm.GenerateSchema[extractionResponse]()

const extractSystemPrompt = `You turn code review feedback into reusable rules for an automated coding agent working on the same codebase.

Only extract rules that would apply to future, unrelated changes: coding style, testing expectations, project structure, behavioral conventions. Ignore comments that only concern this particular change (typos, a specific variable name, a one-off bug).

Each rule is a single imperative sentence. Return at most 5 rules. Return an empty list when nothing generalizes.`

type llmExtractor struct {
	llm llm.Client
}

func NewLLMExtractor(client llm.Client) RuleExtractor {
	return &llmExtractor{llm: client}
}

func (e *llmExtractor) Extract(ctx context.Context, task *model.Task, feedback string) ([]model.ExtractedRule, error) {
	user := fmt.Sprintf("## Task\n%s: %s\n\n## Review feedback\n%s", task.Category, task.Title, strings.TrimSpace(feedback))

	var resp extractionResponse
	if _, err := e.llm.Chat(ctx, llm.Request{
		Stage:        StageExtractRules,
		SubjectID:    task.ID,
		SystemPrompt: extractSystemPrompt,
		UserPrompt:   user,
		SchemaName:   "review_rules",
		Schema:       extractionSchema,
		Temperature:  llm.Temp(0),
	}, &resp); err != nil {
		return nil, err
	}

	var out []model.ExtractedRule
	for _, r := range resp.Rules {
		content := strings.TrimSpace(r.Content)
		if content == "" {
			continue
		}
		out = append(out, model.ExtractedRule{Content: content, Category: ruleCategory(r.Category)})
		if len(out) == maxRulesPerReview {
			break
		}
	}
	return out, nil
}

func ruleCategory(s string) model.RuleCategory {
	switch c := model.RuleCategory(strings.ToLower(strings.TrimSpace(s))); c {
	case model.RuleCategoryStyle, model.RuleCategoryTesting, model.RuleCategoryStructure, model.RuleCategoryBehavior:
		return c
	default:
		return model.RuleCategoryOther
	}
}
