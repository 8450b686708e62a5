package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestLimiter connects to a test Redis instance on localhost:6379.
// Tests are skipped if Redis is unavailable.
func setupTestLimiter(t *testing.T) (*Limiter, context.Context) {
	t.Helper()

	rdb := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping: Redis not available: %v", err)
	}

	rdb.FlushDB(ctx)
	t.Cleanup(func() {
		rdb.FlushDB(ctx)
		rdb.Close()
	})

	return NewLimiter(rdb), ctx
}

func TestAllowWithinLimit(t *testing.T) {
	l, ctx := setupTestLimiter(t)

	rule := Rule{Key: "rl:test:", Limit: 3, Window: 10 * time.Second}
	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "u1", rule)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("request %d should be allowed", i)
		}
	}

	ok, err := l.Allow(ctx, "u1", rule)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("fourth request should be throttled")
	}
}

func TestAllowIsPerUID(t *testing.T) {
	l, ctx := setupTestLimiter(t)

	rule := Rule{Key: "rl:test:", Limit: 1, Window: 10 * time.Second}
	if ok, _ := l.Allow(ctx, "u1", rule); !ok {
		t.Fatal("u1 first request should be allowed")
	}
	if ok, _ := l.Allow(ctx, "u1", rule); ok {
		t.Fatal("u1 second request should be throttled")
	}
	if ok, _ := l.Allow(ctx, "u2", rule); !ok {
		t.Fatal("u2 is a different counter and should be allowed")
	}
}

func TestWindowExpires(t *testing.T) {
	l, ctx := setupTestLimiter(t)

	rule := Rule{Key: "rl:test:", Limit: 1, Window: 1 * time.Second}
	if ok, _ := l.Allow(ctx, "u1", rule); !ok {
		t.Fatal("first request should be allowed")
	}
	if ok, _ := l.Allow(ctx, "u1", rule); ok {
		t.Fatal("second request should be throttled")
	}

	time.Sleep(1100 * time.Millisecond)

	if ok, _ := l.Allow(ctx, "u1", rule); !ok {
		t.Fatal("request after window expiry should be allowed")
	}
}
