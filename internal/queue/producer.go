package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

type Producer interface {
	Enqueue(ctx context.Context, job FixJob) error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, job FixJob) error {
	if job.Attempt <= 0 {
		job.Attempt = 1
	}
	if err := job.validate(); err != nil {
		return fmt.Errorf("enqueue fix job: %w", err)
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: jobValues(job),
	}).Err(); err != nil {
		return fmt.Errorf("enqueue fix job: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued fix job", "kind", job.Kind, "task_id", job.TaskID, "pr_number", job.PRNumber)
	return nil
}
