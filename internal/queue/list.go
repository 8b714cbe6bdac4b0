package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"darwin.app/engine/internal/model"
)

const (
	ToEmbed    = "queue:to-embed"
	ToClassify = "queue:to-classify"
	Triage     = "queue:triage"
)

// ListQueue is a FIFO of string ids on a Redis list. Pop is LPOP, so at most
// one caller receives a given item.
type ListQueue interface {
	Push(ctx context.Context, items ...string) error
	Pop(ctx context.Context) (string, bool, error)
	Len(ctx context.Context) (int64, error)
}

type redisList struct {
	client *redis.Client
	key    string
}

func NewListQueue(client *redis.Client, key string) ListQueue {
	return &redisList{client: client, key: key}
}

func (q *redisList) Push(ctx context.Context, items ...string) error {
	if len(items) == 0 {
		return nil
	}
	args := make([]any, len(items))
	for i, it := range items {
		args[i] = it
	}
	if err := q.client.RPush(ctx, q.key, args...).Err(); err != nil {
		return fmt.Errorf("pushing to %s: %w", q.key, err)
	}
	return nil
}

func (q *redisList) Pop(ctx context.Context) (string, bool, error) {
	v, err := q.client.LPop(ctx, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("popping from %s: %w", q.key, err)
	}
	return v, true, nil
}

func (q *redisList) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("measuring %s: %w", q.key, err)
	}
	return n, nil
}

// TriageQueue is the sink for signals that landed between the attach and
// create thresholds. Entries stay until an operator resolves them.
type TriageQueue interface {
	Add(ctx context.Context, entry model.TriageEntry) error
	List(ctx context.Context, limit int) ([]model.TriageEntry, error)
	Remove(ctx context.Context, entry model.TriageEntry) (bool, error)
	Len(ctx context.Context) (int64, error)
}

type redisTriage struct {
	client *redis.Client
}

func NewTriageQueue(client *redis.Client) TriageQueue {
	return &redisTriage{client: client}
}

func (q *redisTriage) Add(ctx context.Context, entry model.TriageEntry) error {
	if err := q.client.RPush(ctx, Triage, entry.String()).Err(); err != nil {
		return fmt.Errorf("adding triage entry: %w", err)
	}
	return nil
}

// List returns the oldest entries first. Malformed entries are skipped.
func (q *redisTriage) List(ctx context.Context, limit int) ([]model.TriageEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	raw, err := q.client.LRange(ctx, Triage, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing triage: %w", err)
	}
	entries := make([]model.TriageEntry, 0, len(raw))
	for _, r := range raw {
		e, err := model.ParseTriageEntry(r)
		if err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (q *redisTriage) Remove(ctx context.Context, entry model.TriageEntry) (bool, error) {
	n, err := q.client.LRem(ctx, Triage, 1, entry.String()).Result()
	if err != nil {
		return false, fmt.Errorf("removing triage entry: %w", err)
	}
	return n > 0, nil
}

func (q *redisTriage) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, Triage).Result()
	if err != nil {
		return 0, fmt.Errorf("measuring triage: %w", err)
	}
	return n, nil
}
