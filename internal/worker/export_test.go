package worker

import (
	"context"

	"github.com/redis/go-redis/v9"
)

func (r *RedisReclaimer) MarkLost(ctx context.Context, raw redis.XMessage) error {
	return r.markLost(ctx, raw)
}
