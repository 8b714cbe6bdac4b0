package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"darwin.app/engine/internal/model"
)

type fixStore struct {
	rdb *redis.Client
}

func newFixStore(rdb *redis.Client) FixStore {
	return &fixStore{rdb: rdb}
}

// Save claims the record with HSETNX on task_id so duplicate merge
// deliveries never produce a second record.
func (s *fixStore) Save(ctx context.Context, fix *model.SuccessfulFix) (bool, error) {
	key := FixSuccessKey(fix.TaskID)
	created, err := s.rdb.HSetNX(ctx, key, "task_id", fix.TaskID).Result()
	if err != nil {
		return false, fmt.Errorf("claiming fix record %s: %w", fix.TaskID, err)
	}
	if !created {
		return false, nil
	}

	fields := map[string]any{
		"category":         string(fix.Category),
		"title":            fix.Title,
		"summary":          fix.Summary,
		"suggested_action": fix.SuggestedAction,
		"product":          fix.Product,
		"pr_url":           fix.PRURL,
		"pr_title":         fix.PRTitle,
		"files_changed":    encodeList(fix.FilesChanged),
		"stored_at":        unixString(fix.StoredAt),
	}
	if fix.MergedAt != nil {
		fields["merged_at"] = unixString(*fix.MergedAt)
	}
	if err := s.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return true, fmt.Errorf("saving fix record %s: %w", fix.TaskID, err)
	}
	return true, nil
}

func (s *fixStore) SetEmbedding(ctx context.Context, taskID string, embedding []float32) error {
	if err := s.rdb.HSet(ctx, FixSuccessKey(taskID), embeddingFields(embedding)).Err(); err != nil {
		return fmt.Errorf("setting embedding on fix record %s: %w", taskID, err)
	}
	return nil
}

func (s *fixStore) HasAny(ctx context.Context) (bool, error) {
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, FixSuccessPrefix+"*", 100).Result()
		if err != nil {
			return false, fmt.Errorf("scanning fix records: %w", err)
		}
		if len(keys) > 0 {
			return true, nil
		}
		if next == 0 {
			return false, nil
		}
		cursor = next
	}
}

func (s *fixStore) Similar(ctx context.Context, embedding []float32, k int) ([]model.SuccessfulFix, error) {
	hits, err := knn(ctx, s.rdb, SuccessfulFixesIx, embedding, k,
		"task_id", "category", "title", "summary", "suggested_action", "product",
		"pr_url", "pr_title", "files_changed", "stored_at", "merged_at")
	if err != nil {
		return nil, err
	}

	fixes := make([]model.SuccessfulFix, 0, len(hits))
	for _, h := range hits {
		m := h.Fields
		taskID := m["task_id"]
		if taskID == "" {
			taskID = idFromKey(h.Key, FixSuccessPrefix)
		}
		fixes = append(fixes, model.SuccessfulFix{
			TaskID:          taskID,
			Category:        model.Category(m["category"]),
			Title:           m["title"],
			Summary:         m["summary"],
			SuggestedAction: m["suggested_action"],
			Product:         m["product"],
			PRURL:           m["pr_url"],
			PRTitle:         m["pr_title"],
			FilesChanged:    stringList(m, "files_changed"),
			StoredAt:        parseUnix(m["stored_at"]),
			MergedAt:        optTime(m, "merged_at"),
			Score:           h.Similarity,
		})
	}
	return fixes, nil
}
