package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"darwin.app/engine/common/logger"
	"darwin.app/engine/internal/metrics"
	"darwin.app/engine/internal/queue"
)

type PollerConfig struct {
	Name         string // queue name for logs and metrics
	Component    string
	PollInterval time.Duration
	BatchSize    int
}

// Poller drains a list queue. When the queue is empty it sleeps for
// PollInterval; otherwise it pops up to BatchSize items per wake. An item
// that fails is logged and dropped, never pushed back.
type Poller struct {
	queue   queue.ListQueue
	process ItemProcessor
	cfg     PollerConfig

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewPoller(q queue.ListQueue, process ItemProcessor, cfg PollerConfig) *Poller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	return &Poller{
		queue:     q,
		process:   process,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (p *Poller) Run(ctx context.Context) error {
	defer close(p.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: p.cfg.Component})
	slog.InfoContext(ctx, "poller started",
		"queue", p.cfg.Name,
		"poll_interval", p.cfg.PollInterval,
		"batch_size", p.cfg.BatchSize)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			slog.InfoContext(ctx, "poller stopping", "queue", p.cfg.Name)
			return nil
		default:
		}

		n, err := p.drain(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "poll cycle error", "error", err, "queue", p.cfg.Name)
		}
		if n > 0 && err == nil {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			slog.InfoContext(ctx, "poller stopping", "queue", p.cfg.Name)
			return nil
		case <-time.After(p.cfg.PollInterval):
		}
	}
}

// Stop signals the poller to stop and waits for the current batch.
func (p *Poller) Stop() {
	close(p.stopCh)
	<-p.stoppedCh
}

// drain processes at most one batch and reports how many items it popped.
func (p *Poller) drain(ctx context.Context) (int, error) {
	depth, err := p.queue.Len(ctx)
	if err != nil {
		return 0, err
	}
	metrics.QueueDepth(p.cfg.Name, depth)
	if depth == 0 {
		return 0, nil
	}

	popped := 0
	for popped < p.cfg.BatchSize {
		item, ok, err := p.queue.Pop(ctx)
		if err != nil {
			return popped, err
		}
		if !ok {
			break
		}
		popped++

		if err := p.processSafe(ctx, item); err != nil {
			slog.ErrorContext(ctx, "item processing failed, dropping",
				"error", err,
				"queue", p.cfg.Name,
				"item", item)
		}
	}
	return popped, nil
}

func (p *Poller) processSafe(ctx context.Context, item string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in item processing",
				"panic", r,
				"queue", p.cfg.Name,
				"item", item)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.process(ctx, item)
}
