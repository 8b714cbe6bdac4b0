package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"darwin.app/engine/common/logger"
	"darwin.app/engine/internal/fixer"
	"darwin.app/engine/internal/queue"
	"darwin.app/engine/internal/store"
)

type Config struct {
	Concurrency int
}

// Worker consumes fix jobs. Each job is delivered at most once: success and
// precondition refusals are acked, everything else goes to the DLQ.
type Worker struct {
	consumer Consumer
	handler  JobHandler
	cfg      Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer Consumer, handler JobHandler, cfg Config) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Worker{
		consumer:  consumer,
		handler:   handler,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "darwin.worker.fix"})
	slog.InfoContext(ctx, "fix worker started", "concurrency", w.cfg.Concurrency)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "fix worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				// Brief backoff on error
				select {
				case <-ctx.Done():
				case <-time.After(time.Second):
				}
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	var g errgroup.Group
	g.SetLimit(w.cfg.Concurrency)
	for _, msg := range messages {
		g.Go(func() error {
			w.handleMessage(ctx, msg)
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) handleMessage(ctx context.Context, msg queue.Message) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		MessageID: logger.Ptr(msg.ID),
		TaskID:    logger.Ptr(msg.Job.TaskID),
	})

	err := w.processMessageSafe(ctx, msg)

	// Settle the message even when shutdown cancelled the job mid-run.
	ctx = context.WithoutCancel(ctx)
	switch {
	case err == nil:
		w.ack(ctx, msg)
	case isPrecondition(err):
		slog.InfoContext(ctx, "fix job refused by task state, acknowledging",
			"kind", msg.Job.Kind,
			"reason", err)
		w.ack(ctx, msg)
	default:
		slog.ErrorContext(ctx, "fix job failed",
			"error", err,
			"kind", msg.Job.Kind)
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
	}
}

func (w *Worker) processMessageSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in fix job",
				"panic", r,
				"message_id", msg.ID)
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	sc := logger.StartSpanFromTraceID(ctx, msg.Job.TraceID, "worker.fix_job", trace.WithSpanKind(trace.SpanKindConsumer))
	defer sc.End()

	slog.InfoContext(sc.Context(), "processing fix job",
		"kind", msg.Job.Kind,
		"pr_number", msg.Job.PRNumber,
		"attempt", msg.Job.Attempt)
	return w.handler.Handle(sc.Context(), msg.Job)
}

func (w *Worker) ack(ctx context.Context, msg queue.Message) {
	if err := w.consumer.Ack(ctx, msg); err != nil {
		// The reclaimer will find it and mark the task lost.
		slog.WarnContext(ctx, "failed to ACK message", "error", err)
	}
}

func isPrecondition(err error) bool {
	return errors.Is(err, fixer.ErrFixInProgress) ||
		errors.Is(err, fixer.ErrAlreadyHasPR) ||
		errors.Is(err, store.ErrNotFound)
}
