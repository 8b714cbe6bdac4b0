package worker

import (
	"context"

	"darwin.app/engine/internal/queue"
)

// Consumer abstracts the fix-job stream for testability.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
}

// JobHandler runs one fix job to completion.
type JobHandler interface {
	Handle(ctx context.Context, job queue.FixJob) error
}

// ItemProcessor handles one id popped from a list queue.
type ItemProcessor func(ctx context.Context, item string) error
