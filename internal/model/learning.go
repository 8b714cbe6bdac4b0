package model

import (
	"fmt"
	"strings"
	"time"
)

// SuccessfulFix is the append-only record of a merged automated fix. It is
// keyed by the task id, so a task contributes at most one record.
type SuccessfulFix struct {
	TaskID          string     `json:"task_id"`
	Category        Category   `json:"category"`
	Title           string     `json:"title"`
	Summary         string     `json:"summary"`
	SuggestedAction string     `json:"suggested_action"`
	Product         string     `json:"product"`
	PRURL           string     `json:"pr_url"`
	PRTitle         string     `json:"pr_title"`
	MergedAt        *time.Time `json:"merged_at,omitempty"`
	StoredAt        time.Time  `json:"stored_at"`
	FilesChanged    []string   `json:"files_changed"`

	// Score is only set on retrieval.
	Score float64 `json:"score,omitempty"`
}

// FixSummaryText is the synthetic text embedded for fix similarity. Stored
// fixes and lookups for new tasks must use the same shape.
func FixSummaryText(category Category, title, summary string) string {
	return fmt.Sprintf("%s: %s. %s", category, strings.TrimSpace(title), strings.TrimSpace(summary))
}

type RuleCategory string

const (
	RuleCategoryStyle     RuleCategory = "style"
	RuleCategoryTesting   RuleCategory = "testing"
	RuleCategoryStructure RuleCategory = "structure"
	RuleCategoryBehavior  RuleCategory = "behavior"
	RuleCategoryOther     RuleCategory = "other"
)

// Rule is a reusable reviewer constraint scoped to a product. UsageCount
// counts how often the rule was handed to a fix attempt, not how often the
// attempt succeeded.
type Rule struct {
	ID           string       `json:"id"`
	Product      string       `json:"product"`
	Content      string       `json:"content"`
	Category     RuleCategory `json:"category"`
	SourceTaskID string       `json:"source_task_id"`
	Reviewer     string       `json:"reviewer,omitempty"`
	UsageCount   int          `json:"usage_count"`
	CreatedAt    time.Time    `json:"created_at"`
}

// ExtractedRule is one rule proposed by the rule extractor before it is
// persisted.
type ExtractedRule struct {
	Content  string       `json:"content"`
	Category RuleCategory `json:"category"`
}
