package learning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"darwin.app/engine/common/id"
	"darwin.app/engine/common/llm"
	"darwin.app/engine/internal/model"
	"darwin.app/engine/internal/store"
)

// minFeedbackLength is the shortest review body worth sending to the rule
// extractor. Anything shorter is "LGTM"-grade noise.
const minFeedbackLength = 10

// PRInfo is what the learning store keeps about the merged pull request.
type PRInfo struct {
	URL      string
	Title    string
	MergedAt *time.Time
}

// Store is the self-improvement memory: merged fixes searchable by
// similarity and reviewer rules ranked by use.
type Store struct {
	fixes     store.FixStore
	rules     store.RuleStore
	embedder  llm.Embedder
	extractor RuleExtractor
	newID     func() string
}

func NewStore(fixes store.FixStore, rules store.RuleStore, embedder llm.Embedder, extractor RuleExtractor) *Store {
	return &Store{
		fixes:     fixes,
		rules:     rules,
		embedder:  embedder,
		extractor: extractor,
		newID:     id.NewHex,
	}
}

// StoreSuccessfulFix records a merged fix once per task. The record is kept
// even when embedding fails; it is then invisible to similarity search.
func (s *Store) StoreSuccessfulFix(ctx context.Context, task *model.Task, pr PRInfo) (bool, error) {
	product := ""
	if task.Product != nil {
		product = *task.Product
	}
	fix := &model.SuccessfulFix{
		TaskID:          task.ID,
		Category:        task.Category,
		Title:           task.Title,
		Summary:         task.Summary,
		SuggestedAction: task.SuggestedAction,
		Product:         product,
		PRURL:           pr.URL,
		PRTitle:         pr.Title,
		MergedAt:        pr.MergedAt,
		StoredAt:        time.Now().UTC(),
		FilesChanged:    task.FilesChanged,
	}

	created, err := s.fixes.Save(ctx, fix)
	if err != nil {
		return false, fmt.Errorf("storing successful fix: %w", err)
	}
	if !created {
		slog.InfoContext(ctx, "successful fix already stored", "task_id", task.ID)
		return false, nil
	}

	slog.InfoContext(ctx, "successful fix stored",
		"task_id", task.ID,
		"category", task.Category,
		"product", product)

	emb, err := s.embedder.Embed(ctx, model.FixSummaryText(task.Category, task.Title, task.Summary))
	if err != nil {
		slog.WarnContext(ctx, "failed to embed successful fix", "task_id", task.ID, "error", err)
		return true, nil
	}
	if err := s.fixes.SetEmbedding(ctx, task.ID, emb); err != nil {
		slog.WarnContext(ctx, "failed to store successful fix embedding", "task_id", task.ID, "error", err)
	}
	return true, nil
}

// SimilarFixes returns merged fixes close to task, best first. It never
// fails: any collaborator error yields an empty list.
func (s *Store) SimilarFixes(ctx context.Context, task *model.Task, limit int, minScore float64) []model.SuccessfulFix {
	if limit <= 0 {
		return nil
	}

	has, err := s.fixes.HasAny(ctx)
	if err != nil {
		slog.WarnContext(ctx, "failed to check for successful fixes", "error", err)
		return nil
	}
	if !has {
		return nil
	}

	emb, err := s.embedder.Embed(ctx, model.FixSummaryText(task.Category, task.Title, task.Summary))
	if err != nil {
		slog.WarnContext(ctx, "failed to embed task for similar fixes", "error", err)
		return nil
	}

	hits, err := s.fixes.Similar(ctx, emb, limit)
	if err != nil {
		slog.WarnContext(ctx, "similar fix search failed", "error", err)
		return nil
	}

	out := make([]model.SuccessfulFix, 0, len(hits))
	for _, h := range hits {
		if h.TaskID == task.ID {
			continue
		}
		if h.Score >= minScore {
			out = append(out, h)
		}
	}
	slog.InfoContext(ctx, "similar fixes retrieved", "count", len(out))
	return out
}

// TopRules returns the most used rules for a product. Errors are logged and
// yield no rules.
func (s *Store) TopRules(ctx context.Context, product *string, limit int) []model.Rule {
	if product == nil || *product == "" || limit <= 0 {
		return nil
	}
	rules, err := s.rules.TopForProduct(ctx, *product, limit)
	if err != nil {
		slog.WarnContext(ctx, "failed to load rules", "product", *product, "error", err)
		return nil
	}
	return rules
}

// MarkRulesUsed bumps the usage count of every rule handed to a fix
// attempt, whatever the attempt's outcome.
func (s *Store) MarkRulesUsed(ctx context.Context, rules []model.Rule) {
	for _, r := range rules {
		if err := s.rules.IncrementUsage(ctx, r); err != nil {
			slog.WarnContext(ctx, "failed to increment rule usage", "rule_id", r.ID, "error", err)
		}
	}
}

// LearnFromReview extracts rules from a changes-requested review body and
// persists them under the task's product. It returns how many were stored.
func (s *Store) LearnFromReview(ctx context.Context, task *model.Task, reviewer, feedback string) (int, error) {
	if len(strings.TrimSpace(feedback)) < minFeedbackLength {
		return 0, nil
	}
	if task.Product == nil || *task.Product == "" {
		slog.InfoContext(ctx, "task has no product, skipping rule extraction", "task_id", task.ID)
		return 0, nil
	}
	if s.extractor == nil {
		return 0, nil
	}

	extracted, err := s.extractor.Extract(ctx, task, feedback)
	if err != nil {
		return 0, fmt.Errorf("extracting rules: %w", err)
	}

	var errs []error
	stored := 0
	for _, r := range extracted {
		rule := &model.Rule{
			ID:           s.newID(),
			Product:      *task.Product,
			Content:      r.Content,
			Category:     r.Category,
			SourceTaskID: task.ID,
			Reviewer:     reviewer,
			CreatedAt:    time.Now().UTC(),
		}
		if err := s.rules.Create(ctx, rule); err != nil {
			errs = append(errs, err)
			continue
		}
		stored++
	}

	slog.InfoContext(ctx, "rules learned from review",
		"task_id", task.ID,
		"product", *task.Product,
		"extracted", len(extracted),
		"stored", stored)

	if len(errs) > 0 {
		return stored, fmt.Errorf("storing rules: %w", errors.Join(errs...))
	}
	return stored, nil
}
