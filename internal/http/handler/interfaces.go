package handler

import (
	"context"

	"darwin.app/engine/internal/cluster"
	"darwin.app/engine/internal/ingest"
	"darwin.app/engine/internal/model"
)

// SignalIngester is the dedup gate in front of the embed queue.
type SignalIngester interface {
	Ingest(ctx context.Context, signals []model.Signal) (ingest.Summary, error)
}

// FixRequester schedules an initial fix. It reports the same precondition
// errors the fix worker would.
type FixRequester interface {
	Request(ctx context.Context, taskID string) error
}

type TriageResolver interface {
	Resolve(ctx context.Context, entry model.TriageEntry, action model.TriageAction) (cluster.Result, error)
}
