package presence

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// ---------- MemoryTracker tests ----------

func TestMemoryTrackerAnnounceAndCount(t *testing.T) {
	tr := NewMemoryTracker()
	ctx := context.Background()

	if err := tr.Announce(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := tr.Announce(ctx, "b"); err != nil {
		t.Fatal(err)
	}

	count, err := tr.OnlineCount(ctx, 30*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("count %d, want 2", count)
	}
}

func TestMemoryTrackerStaleEntriesExcluded(t *testing.T) {
	tr := NewMemoryTracker()
	ctx := context.Background()

	tr.Announce(ctx, "a")
	time.Sleep(30 * time.Millisecond)
	tr.Announce(ctx, "b")

	count, err := tr.OnlineCount(ctx, 20*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("count %d, want 1 (a is stale)", count)
	}

	if ok, _ := tr.IsReachable(ctx, "a", 20*time.Millisecond); ok {
		t.Fatal("a should be unreachable past the threshold")
	}
	if ok, _ := tr.IsReachable(ctx, "b", 20*time.Millisecond); !ok {
		t.Fatal("b should still be reachable")
	}
}

func TestMemoryTrackerUnknownUIDUnreachable(t *testing.T) {
	tr := NewMemoryTracker()
	if ok, _ := tr.IsReachable(context.Background(), "ghost", time.Minute); ok {
		t.Fatal("never-announced uid must be unreachable")
	}
}

func TestMemoryTrackerRemove(t *testing.T) {
	tr := NewMemoryTracker()
	ctx := context.Background()

	tr.Announce(ctx, "a")
	if err := tr.Remove(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := tr.IsReachable(ctx, "a", time.Minute); ok {
		t.Fatal("removed uid must be unreachable")
	}
}

// ---------- RedisTracker tests ----------

func setupTestTracker(t *testing.T) (*RedisTracker, context.Context) {
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

	return NewRedisTracker(rdb), ctx
}

func TestRedisTrackerLifecycle(t *testing.T) {
	tr, ctx := setupTestTracker(t)

	if err := tr.Announce(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := tr.Announce(ctx, "b"); err != nil {
		t.Fatal(err)
	}

	count, err := tr.OnlineCount(ctx, 30*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("count %d, want 2", count)
	}

	if ok, _ := tr.IsReachable(ctx, "a", 30*time.Second); !ok {
		t.Fatal("a should be reachable")
	}
	if ok, _ := tr.IsReachable(ctx, "ghost", 30*time.Second); ok {
		t.Fatal("ghost should be unreachable")
	}

	if err := tr.Remove(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := tr.IsReachable(ctx, "a", 30*time.Second); ok {
		t.Fatal("a should be unreachable after remove")
	}
}

func TestRedisTrackerStaleExcluded(t *testing.T) {
	tr, ctx := setupTestTracker(t)

	tr.Announce(ctx, "a")
	time.Sleep(60 * time.Millisecond)
	tr.Announce(ctx, "b")

	count, err := tr.OnlineCount(ctx, 40*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("count %d, want 1", count)
	}
}
