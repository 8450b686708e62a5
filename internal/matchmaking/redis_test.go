package matchmaking

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a test Redis instance on localhost:6379.
// Tests are skipped if Redis is unavailable.
func setupTestRedis(t *testing.T) (*redis.Client, context.Context) {
	t.Helper()

	rdb := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // use DB 15 for tests to avoid conflicts
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

	return rdb, ctx
}

// ---------- RedisQueue tests ----------

func TestRedisQueueTakeOldest(t *testing.T) {
	rdb, ctx := setupTestRedis(t)
	q := NewRedisQueue(rdb)

	if err := q.EnqueueOrRefresh(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond) // distinct scores
	if err := q.EnqueueOrRefresh(ctx, "b"); err != nil {
		t.Fatal(err)
	}

	uid, enqueuedAt, err := q.TakeOldestOtherThan(ctx, "c")
	if err != nil {
		t.Fatal(err)
	}
	if uid != "a" {
		t.Fatalf("took %q, want oldest waiter a", uid)
	}
	if enqueuedAt.IsZero() {
		t.Fatal("expected a real enqueue time")
	}

	if n, _ := q.Size(ctx); n != 1 {
		t.Fatalf("size %d, want 1 after take", n)
	}
}

func TestRedisQueueTakeSkipsCaller(t *testing.T) {
	rdb, ctx := setupTestRedis(t)
	q := NewRedisQueue(rdb)

	q.EnqueueOrRefresh(ctx, "a")
	time.Sleep(5 * time.Millisecond)
	q.EnqueueOrRefresh(ctx, "b")

	uid, _, err := q.TakeOldestOtherThan(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if uid != "b" {
		t.Fatalf("took %q, want b (a is the caller)", uid)
	}
}

func TestRedisQueueTakeEmptyForLoneCaller(t *testing.T) {
	rdb, ctx := setupTestRedis(t)
	q := NewRedisQueue(rdb)

	q.EnqueueOrRefresh(ctx, "a")
	uid, _, err := q.TakeOldestOtherThan(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if uid != "" {
		t.Fatalf("took %q, want no candidate", uid)
	}
}

func TestRedisQueuePurgeStale(t *testing.T) {
	rdb, ctx := setupTestRedis(t)
	q := NewRedisQueue(rdb)

	q.EnqueueOrRefresh(ctx, "old")
	time.Sleep(50 * time.Millisecond)
	q.EnqueueOrRefresh(ctx, "fresh")

	if err := q.PurgeStale(ctx, 30*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	uid, _, _ := q.TakeOldestOtherThan(ctx, "z")
	if uid != "fresh" {
		t.Fatalf("took %q, want fresh after purge", uid)
	}
}

// ---------- RedisRegistry tests ----------

func TestRedisRegistryCreateFindDissolve(t *testing.T) {
	rdb, ctx := setupTestRedis(t)
	r := NewRedisRegistry(rdb)

	m, err := r.Create(ctx, "init", "resp")
	if err != nil {
		t.Fatal(err)
	}
	if m.RoomID == "" || m.Initiator != "init" {
		t.Fatalf("match %+v", m)
	}

	a, err := r.Find(ctx, "init")
	if err != nil || a == nil {
		t.Fatalf("find init: %v %v", a, err)
	}
	b, err := r.Find(ctx, "resp")
	if err != nil || b == nil {
		t.Fatalf("find resp: %v %v", b, err)
	}
	if a.RoomID != b.RoomID || a.RoomID != m.RoomID {
		t.Fatal("room id not symmetric")
	}
	if a.Partner("init") != "resp" {
		t.Fatalf("partner %q", a.Partner("init"))
	}

	partner, err := r.Dissolve(ctx, "resp")
	if err != nil {
		t.Fatal(err)
	}
	if partner != "init" {
		t.Fatalf("partner %q, want init", partner)
	}
	if m, _ := r.Find(ctx, "init"); m != nil {
		t.Fatal("init still matched after dissolve")
	}
}

func TestRedisRegistryRejectsDoubleMatch(t *testing.T) {
	rdb, ctx := setupTestRedis(t)
	r := NewRedisRegistry(rdb)

	if _, err := r.Create(ctx, "a", "b"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Create(ctx, "a", "c"); err != ErrAlreadyMatched {
		t.Fatalf("err %v, want ErrAlreadyMatched", err)
	}
	if _, err := r.Create(ctx, "d", "b"); err != ErrAlreadyMatched {
		t.Fatalf("err %v, want ErrAlreadyMatched", err)
	}
}

func TestRedisRegistryIdleSince(t *testing.T) {
	rdb, ctx := setupTestRedis(t)
	r := NewRedisRegistry(rdb)

	if _, err := r.Create(ctx, "a", "b"); err != nil {
		t.Fatal(err)
	}

	idle, err := r.IdleSince(ctx, time.Now().Unix()+1)
	if err != nil {
		t.Fatal(err)
	}
	if len(idle) != 1 {
		t.Fatalf("idle count %d, want 1", len(idle))
	}
	if idle[0].UserA != "a" || idle[0].UserB != "b" {
		t.Fatalf("idle match %+v", idle[0])
	}

	if err := r.Touch(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	idle, _ = r.IdleSince(ctx, time.Now().Unix()-3600)
	if len(idle) != 0 {
		t.Fatalf("idle count %d, want 0 after touch", len(idle))
	}
}
