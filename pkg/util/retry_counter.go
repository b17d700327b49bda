package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RetryCounter counts redeliveries of one message per consumer queue. Keys
// expire so abandoned messages do not accumulate.
type RetryCounter struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRetryCounter(rdb redis.Cmdable, ttl time.Duration) *RetryCounter {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RetryCounter{rdb: rdb, ttl: ttl}
}

// IncrementAndGet records one more attempt and returns the attempt number.
// INCR and EXPIRE NX run in one MULTI so a crash between them cannot leave
// a key without TTL.
func (r *RetryCounter) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	var incr *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("retry counter %s: %w", key, err)
	}
	return incr.Val(), nil
}

// Reset forgets the attempts of a message once it was settled.
func (r *RetryCounter) Reset(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

// FormatRetryKey is retry:<queue>:<message id>.
func FormatRetryKey(queue, messageID string) string {
	return "retry:" + queue + ":" + messageID
}
