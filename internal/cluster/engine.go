package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"darwin.app/engine/common/id"
	"darwin.app/engine/common/logger"
	"darwin.app/engine/common/vector"
	"darwin.app/engine/internal/metrics"
	"darwin.app/engine/internal/model"
	"darwin.app/engine/internal/queue"
	"darwin.app/engine/internal/store"
)

type Action string

const (
	ActionAttached Action = "attached"
	ActionTriage   Action = "triage"
	ActionCreated  Action = "created"
)

type Config struct {
	K             int
	HighThreshold float64
	LowThreshold  float64
}

func DefaultConfig() Config {
	return Config{K: 5, HighThreshold: 0.75, LowThreshold: 0.60}
}

// Input is one embedded signal to place.
type Input struct {
	SignalID  string
	Embedding []float32
	Seed      string  // title source if a topic is created
	Product   *string // copied onto a created topic
}

type Result struct {
	TopicID    string
	Action     Action
	Similarity *float64 // nil when created without a candidate
}

// Engine is the online clustering policy over topic centroids.
type Engine struct {
	index    store.TopicIndex
	topics   store.TopicStore
	signals  store.SignalStore
	triage   queue.TriageQueue
	classify queue.ListQueue
	cfg      Config
	newID    func() string
}

type Option func(*Engine)

// WithIDGenerator overrides how new topic ids are minted.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

func New(
	index store.TopicIndex,
	topics store.TopicStore,
	signals store.SignalStore,
	triage queue.TriageQueue,
	classify queue.ListQueue,
	cfg Config,
	opts ...Option,
) *Engine {
	def := DefaultConfig()
	if cfg.K <= 0 {
		cfg.K = def.K
	}
	if cfg.HighThreshold == 0 {
		cfg.HighThreshold = def.HighThreshold
	}
	if cfg.LowThreshold == 0 {
		cfg.LowThreshold = def.LowThreshold
	}

	e := &Engine{
		index:    index,
		topics:   topics,
		signals:  signals,
		triage:   triage,
		classify: classify,
		cfg:      cfg,
		newID:    id.NewHex,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cluster places a signal: attach to the best topic, park it in triage, or
// seed a new topic. Only the single best candidate is consulted.
func (e *Engine) Cluster(ctx context.Context, in Input) (Result, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		SignalID:  &in.SignalID,
		Component: "darwin.cluster",
	})

	matches, err := e.index.Nearest(ctx, in.Embedding, e.cfg.K)
	if err != nil {
		// An empty or missing index answers with an error; both mean "no match".
		slog.DebugContext(ctx, "nearest topic query failed, treating as no match", "error", err)
		matches = nil
	}

	if len(matches) > 0 {
		best := matches[0]
		sim := best.Similarity

		switch {
		case sim >= e.cfg.HighThreshold:
			res, err := e.attach(ctx, in, best)
			if !errors.Is(err, store.ErrNotFound) {
				return res, err
			}
			slog.WarnContext(ctx, "matched topic vanished, creating a new one", "topic_id", best.TopicID)
		case sim >= e.cfg.LowThreshold:
			return e.park(ctx, in, best)
		}
	}

	return e.create(ctx, in, matches)
}

func (e *Engine) attach(ctx context.Context, in Input, match model.TopicMatch) (Result, error) {
	topic, err := e.topics.Get(ctx, match.TopicID)
	if err != nil {
		return Result{}, err
	}

	count := topic.SignalCount
	if count < 1 {
		count = 1
	}
	centroid := topic.Centroid
	if len(centroid) > 0 {
		centroid, err = vector.MeanUpdate(topic.Centroid, count, in.Embedding)
		if err != nil {
			return Result{}, fmt.Errorf("updating centroid of topic %s: %w", topic.ID, err)
		}
	} else {
		centroid = in.Embedding
	}

	if err := e.topics.UpdateCentroid(ctx, topic.ID, centroid, count+1); err != nil {
		return Result{}, err
	}
	if err := e.signals.SetTopic(ctx, in.SignalID, topic.ID, string(ActionAttached)); err != nil {
		return Result{}, err
	}

	metrics.ClusterDecision(string(ActionAttached))
	slog.InfoContext(ctx, "signal attached to topic",
		"topic_id", topic.ID,
		"similarity", match.Similarity,
		"signal_count", count+1)

	sim := match.Similarity
	return Result{TopicID: topic.ID, Action: ActionAttached, Similarity: &sim}, nil
}

// park records the ambiguous match. The topic itself is not touched and the
// signal keeps its embedding until someone resolves the entry.
func (e *Engine) park(ctx context.Context, in Input, match model.TopicMatch) (Result, error) {
	if err := e.signals.SetEmbedding(ctx, in.SignalID, in.Embedding); err != nil {
		return Result{}, err
	}
	if err := e.triage.Add(ctx, model.TriageEntry{SignalID: in.SignalID, TopicID: match.TopicID}); err != nil {
		return Result{}, err
	}
	if err := e.signals.SetTopic(ctx, in.SignalID, match.TopicID, string(ActionTriage)); err != nil {
		return Result{}, err
	}

	metrics.ClusterDecision(string(ActionTriage))
	slog.InfoContext(ctx, "signal added to triage",
		"topic_id", match.TopicID,
		"similarity", match.Similarity)

	sim := match.Similarity
	return Result{TopicID: match.TopicID, Action: ActionTriage, Similarity: &sim}, nil
}

func (e *Engine) create(ctx context.Context, in Input, matches []model.TopicMatch) (Result, error) {
	topic := &model.Topic{
		ID:          e.newID(),
		Title:       model.TopicTitle(in.Seed),
		Status:      model.TopicStatusOpen,
		SignalCount: 1,
		Centroid:    in.Embedding,
		Product:     in.Product,
	}
	if err := e.topics.Create(ctx, topic); err != nil {
		return Result{}, err
	}
	if err := e.signals.SetTopic(ctx, in.SignalID, topic.ID, string(ActionCreated)); err != nil {
		return Result{}, err
	}
	if err := e.classify.Push(ctx, topic.ID); err != nil {
		return Result{}, fmt.Errorf("enqueueing topic %s for classification: %w", topic.ID, err)
	}

	metrics.ClusterDecision(string(ActionCreated))
	slog.InfoContext(ctx, "created topic from signal", "topic_id", topic.ID)

	res := Result{TopicID: topic.ID, Action: ActionCreated}
	if len(matches) > 0 {
		sim := matches[0].Similarity
		res.Similarity = &sim
	}
	return res, nil
}
