//go:build integration

package daily_test

import (
	"context"
	"os"
	"testing"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jobtrail/governor/daily"
)

func newTestClient(t *testing.T) *goredis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("redis not available at %s: %v", addr, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func newTestCounter(t *testing.T, client *goredis.Client) *daily.RedisCounter {
	t.Helper()
	// Use a unique prefix per test to avoid collisions.
	prefix := "test:" + t.Name() + ":"
	c := daily.NewRedisCounter(client, daily.WithPrefix(prefix))
	t.Cleanup(func() {
		ctx := context.Background()
		iter := client.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
	})
	return c
}

func TestIncrAndCount(t *testing.T) {
	client := newTestClient(t)
	counter := newTestCounter(t, client)
	ctx := context.Background()

	n, err := counter.Count(ctx, "gemini-2.0-flash")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 before any incr, got %d", n)
	}

	for i := int64(1); i <= 3; i++ {
		n, err = counter.Incr(ctx, "gemini-2.0-flash")
		if err != nil {
			t.Fatalf("incr: %v", err)
		}
		if n != i {
			t.Fatalf("expected %d after incr, got %d", i, n)
		}
	}

	n, err = counter.Count(ctx, "gemini-2.0-flash")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3, got %d", n)
	}

	// Models do not share counters.
	n, err = counter.Count(ctx, "gemini-2.5-pro")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 for untouched model, got %d", n)
	}
}

func TestKeysCarryTTL(t *testing.T) {
	client := newTestClient(t)
	counter := newTestCounter(t, client)
	ctx := context.Background()

	if _, err := counter.Incr(ctx, "gemini-2.0-flash"); err != nil {
		t.Fatalf("incr: %v", err)
	}

	keys, err := client.Keys(ctx, "test:"+t.Name()+":*").Result()
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected one key, got %d", len(keys))
	}

	ttl, err := client.TTL(ctx, keys[0]).Result()
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl <= 0 {
		t.Fatalf("expected a positive ttl, got %v", ttl)
	}
}

func TestResetAllIsNoop(t *testing.T) {
	client := newTestClient(t)
	counter := newTestCounter(t, client)
	ctx := context.Background()

	if _, err := counter.Incr(ctx, "gemini-2.0-flash"); err != nil {
		t.Fatalf("incr: %v", err)
	}
	if err := counter.ResetAll(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	n, err := counter.Count(ctx, "gemini-2.0-flash")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("reset must not clear date-scoped keys, got %d", n)
	}
}
