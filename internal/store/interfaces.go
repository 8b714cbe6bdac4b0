package store

import (
	"context"
	"errors"

	"darwin.app/engine/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Fix claim refusals.
var (
	ErrFixRunning   = errors.New("fix already in progress")
	ErrHasPR        = errors.New("task already has a fix PR")
	ErrIterationCap = errors.New("max fix iterations reached")
)

// SignalStore is the dedup gate plus the short-lived signal record that
// bridges ingestion and clustering.
type SignalStore interface {
	// Claim atomically reserves a signal id. It returns false when the id was
	// already seen.
	Claim(ctx context.Context, id string) (bool, error)
	Save(ctx context.Context, signal *model.Signal) error
	Get(ctx context.Context, id string) (*model.Signal, error)
	SetTopic(ctx context.Context, id, topicID, action string) error
	SetEmbedding(ctx context.Context, id string, embedding []float32) error
	GetEmbedding(ctx context.Context, id string) ([]float32, error)
	// Compact drops free text and vectors, keeping provenance only.
	Compact(ctx context.Context, id string) error
}

// TopicStore defines the contract for topic aggregates
type TopicStore interface {
	Create(ctx context.Context, topic *model.Topic) error
	Get(ctx context.Context, id string) (*model.Topic, error)
	UpdateCentroid(ctx context.Context, id string, centroid []float32, signalCount int) error
	SetClassification(ctx context.Context, id string, c model.Classification) error
	List(ctx context.Context, limit int) ([]model.Topic, error)
	AppendSignalSample(ctx context.Context, id, text string) error
	SignalSample(ctx context.Context, id string, limit int) ([]string, error)
}

// TopicIndex is the nearest-neighbour view over topic centroids.
type TopicIndex interface {
	Nearest(ctx context.Context, embedding []float32, k int) ([]model.TopicMatch, error)
}

// TaskStore defines the contract for task aggregates
type TaskStore interface {
	Create(ctx context.Context, task *model.Task) error
	Get(ctx context.Context, id string) (*model.Task, error)
	List(ctx context.Context, filter model.TaskFilter) ([]model.Task, error)
	UpdateStatus(ctx context.Context, id string, status model.TaskStatus) error
	SetIssue(ctx context.Context, id, url string, number int) error
	UpdateFix(ctx context.Context, id string, update model.FixUpdate) error
	// ClaimFix marks the task's fix running if the claim's preconditions
	// hold. It returns ErrNotFound, ErrFixRunning, ErrHasPR or
	// ErrIterationCap otherwise. Concurrent claims on one task admit one.
	ClaimFix(ctx context.Context, id string, claim model.FixClaim) error
}

// FixStore holds the append-only corpus of merged fixes.
type FixStore interface {
	// Save writes the record once per task. It returns false when a record
	// for the task already exists.
	Save(ctx context.Context, fix *model.SuccessfulFix) (bool, error)
	SetEmbedding(ctx context.Context, taskID string, embedding []float32) error
	HasAny(ctx context.Context) (bool, error)
	Similar(ctx context.Context, embedding []float32, k int) ([]model.SuccessfulFix, error)
}

// RuleStore holds reviewer-derived rules scoped by product.
type RuleStore interface {
	Create(ctx context.Context, rule *model.Rule) error
	TopForProduct(ctx context.Context, product string, limit int) ([]model.Rule, error)
	IncrementUsage(ctx context.Context, rule model.Rule) error
}

// LLMEvalStore defines the contract for the LLM call audit log
type LLMEvalStore interface {
	Create(ctx context.Context, eval *model.LLMEval) error
	ListByStage(ctx context.Context, stage string, limit int) ([]model.LLMEval, error)
}
