package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"darwin.app/engine/common/id"
	"darwin.app/engine/common/logger"
	"darwin.app/engine/internal/metrics"
	"darwin.app/engine/internal/model"
	"darwin.app/engine/internal/repohost"
	"darwin.app/engine/internal/store"
)

const sampleSize = 10

// AutoFixer starts a fix for a new task when its trigger policy allows.
type AutoFixer interface {
	Auto(ctx context.Context, task *model.Task) (bool, error)
}

type ProcessorConfig struct {
	Timeout      time.Duration // per classifier call
	CreateIssues bool
}

// Processor classifies one pending topic and turns actionable verdicts into
// tasks. Issues and fixes are optional; pass nil to disable them.
type Processor struct {
	topics     store.TopicStore
	tasks      store.TaskStore
	classifier Classifier
	issues     repohost.IssueService
	fixes      AutoFixer
	cfg        ProcessorConfig
	newID      func() string
}

func NewProcessor(topics store.TopicStore, tasks store.TaskStore, classifier Classifier, issues repohost.IssueService, fixes AutoFixer, cfg ProcessorConfig) *Processor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Processor{
		topics:     topics,
		tasks:      tasks,
		classifier: classifier,
		issues:     issues,
		fixes:      fixes,
		cfg:        cfg,
		newID:      id.NewHex,
	}
}

// Process handles one topic id popped from the classification queue. Only
// store failures are returned; a missing topic or a classifier error
// consumes the item.
func (p *Processor) Process(ctx context.Context, topicID string) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		TopicID:   logger.Ptr(topicID),
		Component: "darwin.worker.classify",
	})
	sc := logger.StartSpan(ctx, "classify.topic", trace.WithSpanKind(trace.SpanKindConsumer))
	defer sc.End()
	ctx = sc.Context()
	defer metrics.ObserveStage("classify", time.Now())

	topic, err := p.topics.Get(ctx, topicID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "topic not found, dropping")
			return nil
		}
		return fmt.Errorf("loading topic: %w", err)
	}
	if topic.Title == "" {
		slog.WarnContext(ctx, "topic has no title, dropping")
		return nil
	}

	signals, err := p.topics.SignalSample(ctx, topicID, sampleSize)
	if err != nil {
		slog.WarnContext(ctx, "could not load signal sample, classifying on title only", "error", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	verdict, err := p.classifier.Classify(callCtx, topicID, topic.Title, signals)
	cancel()
	if err != nil {
		slog.ErrorContext(ctx, "classification failed, leaving topic unclassified", "error", err)
		metrics.Classification("error")
		return nil
	}

	if err := p.topics.SetClassification(ctx, topicID, *verdict); err != nil {
		return fmt.Errorf("saving classification: %w", err)
	}
	metrics.Classification(string(verdict.Category))

	if !verdict.Category.IsActionable() {
		slog.InfoContext(ctx, "topic is not actionable", "category", verdict.Category)
		return nil
	}

	task := &model.Task{
		ID:              p.newID(),
		TopicID:         topicID,
		Category:        verdict.Category,
		Title:           verdict.Title,
		Summary:         verdict.Summary,
		Severity:        verdict.Severity,
		SuggestedAction: verdict.SuggestedAction,
		Confidence:      verdict.Confidence,
		Product:         topic.Product,
		Status:          model.TaskStatusOpen,
		FixStatus:       model.FixStatusIdle,
	}
	if task.Title == "" {
		task.Title = topic.Title
	}
	if err := p.tasks.Create(ctx, task); err != nil {
		return fmt.Errorf("creating task: %w", err)
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{TaskID: logger.Ptr(task.ID), Product: task.Product})
	slog.InfoContext(ctx, "task created", "category", task.Category)

	p.createIssue(ctx, task)
	p.autoFix(ctx, task)
	return nil
}

func (p *Processor) createIssue(ctx context.Context, task *model.Task) {
	if p.issues == nil || !p.cfg.CreateIssues {
		return
	}
	issue, err := p.issues.CreateForTask(ctx, task)
	switch {
	case errors.Is(err, repohost.ErrNoRepository):
		slog.InfoContext(ctx, "no repository for task, skipping issue", "reason", err)
	case err != nil:
		slog.ErrorContext(ctx, "issue creation failed", "error", err)
	default:
		slog.InfoContext(ctx, "issue created", "issue_url", issue.URL)
	}
}

func (p *Processor) autoFix(ctx context.Context, task *model.Task) {
	if p.fixes == nil {
		return
	}
	queued, err := p.fixes.Auto(ctx, task)
	if err != nil {
		slog.ErrorContext(ctx, "failed to schedule automatic fix", "error", err)
		return
	}
	if queued {
		slog.InfoContext(ctx, "automatic fix scheduled")
	}
}
