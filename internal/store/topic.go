package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"darwin.app/engine/internal/model"
)

// signalSampleSize bounds the per-topic list of signal texts handed to the
// classifier.
const signalSampleSize = 20

type topicStore struct {
	rdb *redis.Client
}

func newTopicStore(rdb *redis.Client) *topicStore {
	return &topicStore{rdb: rdb}
}

func (s *topicStore) Create(ctx context.Context, topic *model.Topic) error {
	now := time.Now().UTC()
	if topic.CreatedAt.IsZero() {
		topic.CreatedAt = now
	}
	topic.UpdatedAt = now
	if topic.Status == "" {
		topic.Status = model.TopicStatusOpen
	}

	fields := map[string]any{
		"id":           topic.ID,
		"title":        topic.Title,
		"summary":      topic.Summary,
		"status":       string(topic.Status),
		"signal_count": topic.SignalCount,
		"created_at":   unixString(topic.CreatedAt),
		"updated_at":   unixString(topic.UpdatedAt),
	}
	if topic.Category != nil {
		fields["category"] = string(*topic.Category)
	}
	if topic.Product != nil {
		fields["product"] = *topic.Product
	}
	for k, v := range embeddingFields(topic.Centroid) {
		fields[k] = v
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, TopicKey(topic.ID), fields)
	pipe.ZAdd(ctx, topicsBySignalCount, redis.Z{Score: float64(topic.SignalCount), Member: topic.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("creating topic %s: %w", topic.ID, err)
	}
	return nil
}

func (s *topicStore) Get(ctx context.Context, id string) (*model.Topic, error) {
	m, err := s.rdb.HGetAll(ctx, TopicKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting topic %s: %w", id, err)
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	return topicFromHash(m), nil
}

func topicFromHash(m map[string]string) *model.Topic {
	t := &model.Topic{
		ID:          m["id"],
		Title:       m["title"],
		Summary:     m["summary"],
		Status:      model.TopicStatus(m["status"]),
		SignalCount: parseInt(m["signal_count"]),
		Centroid:    decodeEmbedding(m),
		Product:     optString(m, "product"),
		CreatedAt:   parseUnix(m["created_at"]),
		UpdatedAt:   parseUnix(m["updated_at"]),
	}
	if c := optString(m, "category"); c != nil {
		cat := model.Category(*c)
		t.Category = &cat
	}
	return t
}

// UpdateCentroid overwrites the centroid and count. The caller owns the
// read-modify-write; there is no version check.
func (s *topicStore) UpdateCentroid(ctx context.Context, id string, centroid []float32, signalCount int) error {
	fields := map[string]any{
		"signal_count": signalCount,
		"updated_at":   unixString(time.Now()),
	}
	for k, v := range embeddingFields(centroid) {
		fields[k] = v
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, TopicKey(id), fields)
	pipe.ZAdd(ctx, topicsBySignalCount, redis.Z{Score: float64(signalCount), Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("updating centroid of topic %s: %w", id, err)
	}
	return nil
}

func (s *topicStore) SetClassification(ctx context.Context, id string, c model.Classification) error {
	err := s.rdb.HSet(ctx, TopicKey(id),
		"category", string(c.Category),
		"summary", c.Summary,
		"updated_at", unixString(time.Now()),
	).Err()
	if err != nil {
		return fmt.Errorf("classifying topic %s: %w", id, err)
	}
	return nil
}

// List returns topics with the most signals first.
func (s *topicStore) List(ctx context.Context, limit int) ([]model.Topic, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := s.rdb.ZRevRange(ctx, topicsBySignalCount, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing topics: %w", err)
	}

	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, TopicKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("loading topics: %w", err)
	}

	topics := make([]model.Topic, 0, len(ids))
	for _, cmd := range cmds {
		m := cmd.Val()
		if len(m) == 0 {
			continue
		}
		topics = append(topics, *topicFromHash(m))
	}
	return topics, nil
}

func (s *topicStore) AppendSignalSample(ctx context.Context, id, text string) error {
	key := topicSignalsKey(id)
	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, key, text)
	pipe.LTrim(ctx, key, 0, signalSampleSize-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("appending signal sample to topic %s: %w", id, err)
	}
	return nil
}

// SignalSample returns up to limit of the newest signal texts.
func (s *topicStore) SignalSample(ctx context.Context, id string, limit int) ([]string, error) {
	if limit <= 0 || limit > signalSampleSize {
		limit = signalSampleSize
	}
	texts, err := s.rdb.LRange(ctx, topicSignalsKey(id), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading signal sample of topic %s: %w", id, err)
	}
	return texts, nil
}

func (s *topicStore) Nearest(ctx context.Context, embedding []float32, k int) ([]model.TopicMatch, error) {
	hits, err := knn(ctx, s.rdb, TopicsIndex, embedding, k)
	if err != nil {
		return nil, err
	}
	matches := make([]model.TopicMatch, 0, len(hits))
	for _, h := range hits {
		matches = append(matches, model.TopicMatch{
			TopicID:    idFromKey(h.Key, TopicPrefix),
			Similarity: h.Similarity,
		})
	}
	return matches, nil
}
