package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"darwin.app/engine/common/logger"
	"darwin.app/engine/common/vector"
	"darwin.app/engine/internal/model"
)

// ActionDismissed marks a triaged signal that was dropped by an operator.
const ActionDismissed Action = "dismissed"

var ErrTriageEntryNotFound = errors.New("triage entry not found")

// Resolve settles one triage entry. The entry is removed first so two
// operators cannot resolve it twice; it is put back if the action fails.
func (e *Engine) Resolve(ctx context.Context, entry model.TriageEntry, action model.TriageAction) (res Result, err error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		SignalID:  &entry.SignalID,
		TopicID:   &entry.TopicID,
		Component: "darwin.cluster.triage",
	})

	if !action.Valid() {
		return Result{}, fmt.Errorf("unknown triage action %q", action)
	}

	removed, err := e.triage.Remove(ctx, entry)
	if err != nil {
		return Result{}, err
	}
	if !removed {
		return Result{}, ErrTriageEntryNotFound
	}
	defer func() {
		if err != nil {
			if addErr := e.triage.Add(ctx, entry); addErr != nil {
				slog.ErrorContext(ctx, "failed to restore triage entry", "error", addErr)
			}
		}
	}()

	signal, err := e.signals.Get(ctx, entry.SignalID)
	if err != nil {
		return Result{}, fmt.Errorf("loading triaged signal: %w", err)
	}

	switch action {
	case model.TriageActionDismiss:
		if err := e.signals.SetTopic(ctx, entry.SignalID, "", string(ActionDismissed)); err != nil {
			return Result{}, err
		}
		res = Result{Action: ActionDismissed}

	case model.TriageActionAttach:
		embedding, err := e.signals.GetEmbedding(ctx, entry.SignalID)
		if err != nil {
			return Result{}, fmt.Errorf("loading triaged embedding: %w", err)
		}
		topic, err := e.topics.Get(ctx, entry.TopicID)
		if err != nil {
			return Result{}, fmt.Errorf("loading triage topic: %w", err)
		}
		match := model.TopicMatch{TopicID: topic.ID, Similarity: vector.Cosine(topic.Centroid, embedding)}
		res, err = e.attach(ctx, Input{SignalID: entry.SignalID, Embedding: embedding}, match)
		if err != nil {
			return Result{}, err
		}
		if err := e.topics.AppendSignalSample(ctx, res.TopicID, signal.Text); err != nil {
			slog.WarnContext(ctx, "failed to append signal sample", "error", err)
		}

	case model.TriageActionCreate:
		embedding, err := e.signals.GetEmbedding(ctx, entry.SignalID)
		if err != nil {
			return Result{}, fmt.Errorf("loading triaged embedding: %w", err)
		}
		res, err = e.create(ctx, Input{
			SignalID:  entry.SignalID,
			Embedding: embedding,
			Seed:      signal.SeedText(),
			Product:   signal.Product,
		}, nil)
		if err != nil {
			return Result{}, err
		}
		if err := e.topics.AppendSignalSample(ctx, res.TopicID, signal.Text); err != nil {
			slog.WarnContext(ctx, "failed to append signal sample", "error", err)
		}
	}

	if err := e.signals.Compact(ctx, entry.SignalID); err != nil {
		slog.WarnContext(ctx, "failed to compact resolved signal", "error", err)
	}

	slog.InfoContext(ctx, "triage entry resolved", "action", action, "result_topic_id", res.TopicID)
	return res, nil
}
