package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"darwin.app/engine/internal/model"
)

type signalStore struct {
	rdb *redis.Client
}

func newSignalStore(rdb *redis.Client) SignalStore {
	return &signalStore{rdb: rdb}
}

func (s *signalStore) Claim(ctx context.Context, id string) (bool, error) {
	ok, err := s.rdb.HSetNX(ctx, SignalKey(id), "id", id).Result()
	if err != nil {
		return false, fmt.Errorf("claiming signal %s: %w", id, err)
	}
	return ok, nil
}

func (s *signalStore) Save(ctx context.Context, signal *model.Signal) error {
	fields := map[string]any{
		"id":        signal.ID,
		"text":      signal.Text,
		"source":    signal.Source,
		"url":       signal.URL,
		"timestamp": unixString(signal.Timestamp),
	}
	if signal.Title != nil {
		fields["title"] = *signal.Title
	}
	if signal.Author != nil {
		fields["author"] = *signal.Author
	}
	if signal.Product != nil {
		fields["product"] = *signal.Product
	}
	if err := s.rdb.HSet(ctx, SignalKey(signal.ID), fields).Err(); err != nil {
		return fmt.Errorf("saving signal %s: %w", signal.ID, err)
	}
	return nil
}

func (s *signalStore) Get(ctx context.Context, id string) (*model.Signal, error) {
	m, err := s.rdb.HGetAll(ctx, SignalKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting signal %s: %w", id, err)
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	return &model.Signal{
		ID:        m["id"],
		Text:      m["text"],
		Source:    m["source"],
		URL:       m["url"],
		Timestamp: parseUnix(m["timestamp"]),
		Title:     optString(m, "title"),
		Author:    optString(m, "author"),
		Product:   optString(m, "product"),
	}, nil
}

func (s *signalStore) SetTopic(ctx context.Context, id, topicID, action string) error {
	err := s.rdb.HSet(ctx, SignalKey(id),
		"topic_id", topicID,
		"action", action,
		"clustered_at", unixString(time.Now()),
	).Err()
	if err != nil {
		return fmt.Errorf("setting topic on signal %s: %w", id, err)
	}
	return nil
}

// SetEmbedding keeps only the text copy; signals are not indexed.
func (s *signalStore) SetEmbedding(ctx context.Context, id string, embedding []float32) error {
	fields := embeddingFields(embedding)
	if err := s.rdb.HSet(ctx, SignalKey(id), fieldEmbeddingB64, fields[fieldEmbeddingB64]).Err(); err != nil {
		return fmt.Errorf("setting embedding on signal %s: %w", id, err)
	}
	return nil
}

func (s *signalStore) GetEmbedding(ctx context.Context, id string) ([]float32, error) {
	v, err := s.rdb.HGet(ctx, SignalKey(id), fieldEmbeddingB64).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting embedding of signal %s: %w", id, err)
	}
	vec := decodeEmbedding(map[string]string{fieldEmbeddingB64: v})
	if vec == nil {
		return nil, fmt.Errorf("signal %s has a malformed embedding", id)
	}
	return vec, nil
}

func (s *signalStore) Compact(ctx context.Context, id string) error {
	err := s.rdb.HDel(ctx, SignalKey(id), "text", "title", "author", fieldEmbeddingB64).Err()
	if err != nil {
		return fmt.Errorf("compacting signal %s: %w", id, err)
	}
	return nil
}
