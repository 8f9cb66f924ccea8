// Package daily provides a Redis-backed daily request counter for the
// governor, so multiple processes share per-model daily counts. Keys are
// date-scoped and expire on their own, which makes the midnight reset a
// no-op here.
package daily

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jobtrail/governor"
)

// DefaultPrefix is the key prefix for daily counters.
const DefaultPrefix = "rate-limit:daily:"

// keyTTL keeps yesterday's counters around briefly for inspection before
// Redis evicts them.
const keyTTL = 48 * time.Hour

// RedisCounter is a Redis-backed governor.DailyCounter.
type RedisCounter struct {
	client goredis.Cmdable
	prefix string
}

var _ governor.DailyCounter = (*RedisCounter)(nil)

// Option configures RedisCounter.
type Option func(*RedisCounter)

// WithPrefix sets the Redis key prefix (default "rate-limit:daily:").
func WithPrefix(prefix string) Option {
	return func(c *RedisCounter) { c.prefix = prefix }
}

// NewRedisCounter creates a RedisCounter over a connected client.
func NewRedisCounter(client goredis.Cmdable, opts ...Option) *RedisCounter {
	c := &RedisCounter{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open connects to the Redis instance at url (redis://...) and returns a
// counter over it, pinging first so a bad URL fails at startup rather than
// on the first admission check.
func Open(ctx context.Context, url string, opts ...Option) (*RedisCounter, error) {
	redisOpts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("governor: parse counter url: %w", err)
	}
	client := goredis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("governor: counter store unreachable: %w", err)
	}
	return NewRedisCounter(client, opts...), nil
}

func (c *RedisCounter) key(model string) string {
	return c.prefix + model + ":" + time.Now().Format("2006-01-02")
}

// Incr increments today's count for model and returns the new value.
func (c *RedisCounter) Incr(ctx context.Context, model string) (int64, error) {
	key := c.key(model)
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, keyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("governor: daily incr: %w", err)
	}
	return incr.Val(), nil
}

// Count returns today's count for model; a missing key counts as zero.
func (c *RedisCounter) Count(ctx context.Context, model string) (int64, error) {
	n, err := c.client.Get(ctx, c.key(model)).Int64()
	if err == goredis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("governor: daily count: %w", err)
	}
	return n, nil
}

// ResetAll is a no-op: keys carry the date, so a new day starts at zero and
// old keys expire.
func (c *RedisCounter) ResetAll(context.Context) error { return nil }
