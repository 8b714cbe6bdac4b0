package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"darwin.app/engine/common/llm"
	"darwin.app/engine/common/logger"
	"darwin.app/engine/internal/cluster"
	"darwin.app/engine/internal/metrics"
	"darwin.app/engine/internal/model"
	"darwin.app/engine/internal/queue"
	"darwin.app/engine/internal/store"
)

var ErrEmptySignal = errors.New("signal text is empty")

// Clusterer places an embedded signal into a topic.
type Clusterer interface {
	Cluster(ctx context.Context, in cluster.Input) (cluster.Result, error)
}

type Summary struct {
	Received   int      `json:"received"`
	New        int      `json:"new"`
	Duplicates int      `json:"duplicates"`
	Rejected   int      `json:"rejected"`
	IDs        []string `json:"ids"`
}

type Service struct {
	signals   store.SignalStore
	topics    store.TopicStore
	toEmbed   queue.ListQueue
	embedder  llm.Embedder
	clusterer Clusterer
}

func NewService(
	signals store.SignalStore,
	topics store.TopicStore,
	toEmbed queue.ListQueue,
	embedder llm.Embedder,
	clusterer Clusterer,
) *Service {
	return &Service{
		signals:   signals,
		topics:    topics,
		toEmbed:   toEmbed,
		embedder:  embedder,
		clusterer: clusterer,
	}
}

// Ingest runs each signal through the dedup gate and queues the new ones for
// embedding. Dedup is content-hash equality only.
func (s *Service) Ingest(ctx context.Context, signals []model.Signal) (Summary, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "darwin.ingest"})
	sum := Summary{Received: len(signals), IDs: []string{}}

	for i := range signals {
		sig := signals[i]
		if strings.TrimSpace(sig.Text) == "" {
			sum.Rejected++
			continue
		}
		if sig.ID == "" {
			sig.ID = model.SignalID(sig.Source, sig.URL, sig.Text)
		}
		if sig.Timestamp.IsZero() {
			sig.Timestamp = time.Now().UTC()
		}

		fresh, err := s.signals.Claim(ctx, sig.ID)
		if err != nil {
			return sum, err
		}
		if !fresh {
			sum.Duplicates++
			continue
		}

		if err := s.signals.Save(ctx, &sig); err != nil {
			return sum, err
		}
		if err := s.toEmbed.Push(ctx, sig.ID); err != nil {
			return sum, err
		}
		sum.New++
		sum.IDs = append(sum.IDs, sig.ID)
	}

	slog.InfoContext(ctx, "signals ingested",
		"received", sum.Received,
		"new", sum.New,
		"duplicates", sum.Duplicates,
		"rejected", sum.Rejected)
	return sum, nil
}

// Process embeds one queued signal and hands it to the clusterer. Attached
// and created signals are compacted right away; triaged ones keep their text
// and embedding until the entry is resolved.
func (s *Service) Process(ctx context.Context, signalID string) (cluster.Result, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		SignalID:  &signalID,
		Component: "darwin.ingest.embed",
	})

	sig, err := s.signals.Get(ctx, signalID)
	if err != nil {
		return cluster.Result{}, fmt.Errorf("loading signal: %w", err)
	}
	if strings.TrimSpace(sig.Text) == "" {
		return cluster.Result{}, ErrEmptySignal
	}

	start := time.Now()
	embedding, err := s.embedder.Embed(ctx, sig.EmbeddingText())
	metrics.ObserveStage("embed", start)
	if err != nil {
		return cluster.Result{}, fmt.Errorf("embedding signal: %w", err)
	}

	res, err := s.clusterer.Cluster(ctx, cluster.Input{
		SignalID:  sig.ID,
		Embedding: embedding,
		Seed:      sig.SeedText(),
		Product:   sig.Product,
	})
	if err != nil {
		return cluster.Result{}, fmt.Errorf("clustering signal: %w", err)
	}

	if res.Action == cluster.ActionTriage {
		return res, nil
	}

	if err := s.topics.AppendSignalSample(ctx, res.TopicID, sig.Text); err != nil {
		slog.WarnContext(ctx, "failed to append signal sample", "error", err, "topic_id", res.TopicID)
	}
	if err := s.signals.Compact(ctx, sig.ID); err != nil {
		slog.WarnContext(ctx, "failed to compact signal", "error", err)
	}
	return res, nil
}
