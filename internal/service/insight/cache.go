package insight

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"

	"interruptd/internal/ledger"
)

const keyPrefix = "insight"

// Cache stores generated texts.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// InvalidatePattern drops every entry cached for a pattern.
	InvalidatePattern(ctx context.Context, patternID string) (int, error)
}

// PatternKey is the cache key of a pattern analysis. The fingerprint changes
// whenever the ledger or the elapsed day count does.
func PatternKey(patternID, fingerprint string) string {
	return fmt.Sprintf("%s:pattern:%s:%s", keyPrefix, patternID, fingerprint)
}

func patternKeyPattern(patternID string) string {
	return fmt.Sprintf("%s:pattern:%s:*", keyPrefix, patternID)
}

// UserKey is the cache key of a per-user text such as the weekly summary.
func UserKey(kind string, userID int, fingerprint string) string {
	return fmt.Sprintf("%s:%s:%d:%s", keyPrefix, kind, userID, fingerprint)
}

// Fingerprint hashes parts into a short stable token.
func Fingerprint(parts ...string) string {
	d := xxhash.New()
	for _, p := range parts {
		_, _ = d.WriteString(p)
		_, _ = d.Write([]byte{0})
	}
	return strconv.FormatUint(d.Sum64(), 16)
}

// EntriesFingerprint hashes the dates and reasons of entries.
func EntriesFingerprint(entries []ledger.DeviationDay, extra ...string) string {
	parts := make([]string, 0, len(entries)+len(extra))
	parts = append(parts, extra...)
	for _, e := range entries {
		reason := ""
		if e.Reason != nil {
			reason = *e.Reason
		}
		parts = append(parts, e.Date+"|"+reason)
	}
	return Fingerprint(parts...)
}

// RedisCache keeps insights in Redis with a TTL.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) InvalidatePattern(ctx context.Context, patternID string) (int, error) {
	var keys []string
	iter := c.rdb.Scan(ctx, 0, patternKeyPattern(patternID), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := c.rdb.Del(ctx, keys...).Result()
	return int(n), err
}
