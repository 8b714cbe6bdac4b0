package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"darwin.app/engine/internal/model"
)

type ruleStore struct {
	rdb *redis.Client
}

func newRuleStore(rdb *redis.Client) RuleStore {
	return &ruleStore{rdb: rdb}
}

func (s *ruleStore) Create(ctx context.Context, rule *model.Rule) error {
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	fields := map[string]any{
		"id":             rule.ID,
		"product":        rule.Product,
		"content":        rule.Content,
		"category":       string(rule.Category),
		"source_task_id": rule.SourceTaskID,
		"reviewer":       rule.Reviewer,
		"usage_count":    rule.UsageCount,
		"created_at":     unixString(rule.CreatedAt),
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, RuleKey(rule.ID), fields)
	pipe.ZAdd(ctx, productRulesKey(rule.Product), redis.Z{Score: float64(rule.UsageCount), Member: rule.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("creating rule %s: %w", rule.ID, err)
	}
	return nil
}

// TopForProduct returns the most used rules for a product. Products are
// matched case-insensitively.
func (s *ruleStore) TopForProduct(ctx context.Context, product string, limit int) ([]model.Rule, error) {
	if limit <= 0 {
		return nil, nil
	}
	ids, err := s.rdb.ZRevRange(ctx, productRulesKey(product), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing rules for %s: %w", product, err)
	}

	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, RuleKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("loading rules: %w", err)
	}

	rules := make([]model.Rule, 0, len(ids))
	for _, cmd := range cmds {
		m := cmd.Val()
		if len(m) == 0 {
			continue
		}
		rules = append(rules, model.Rule{
			ID:           m["id"],
			Product:      m["product"],
			Content:      m["content"],
			Category:     model.RuleCategory(m["category"]),
			SourceTaskID: m["source_task_id"],
			Reviewer:     m["reviewer"],
			UsageCount:   parseInt(m["usage_count"]),
			CreatedAt:    parseUnix(m["created_at"]),
		})
	}
	return rules, nil
}

func (s *ruleStore) IncrementUsage(ctx context.Context, rule model.Rule) error {
	pipe := s.rdb.TxPipeline()
	pipe.HIncrBy(ctx, RuleKey(rule.ID), "usage_count", 1)
	pipe.ZIncrBy(ctx, productRulesKey(rule.Product), 1, rule.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("incrementing usage of rule %s: %w", rule.ID, err)
	}
	return nil
}
