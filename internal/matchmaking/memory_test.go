package matchmaking

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// ---------- MemoryQueue tests ----------

func TestMemoryQueueFIFO(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	for _, uid := range []string{"a", "b", "c"} {
		if err := q.EnqueueOrRefresh(ctx, uid); err != nil {
			t.Fatal(err)
		}
	}

	got, _, err := q.TakeOldestOtherThan(ctx, "z")
	if err != nil {
		t.Fatal(err)
	}
	if got != "a" {
		t.Fatalf("took %q, want oldest waiter a", got)
	}
}

func TestMemoryQueueSkipsSelf(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	q.EnqueueOrRefresh(ctx, "a")
	q.EnqueueOrRefresh(ctx, "b")

	got, _, err := q.TakeOldestOtherThan(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got != "b" {
		t.Fatalf("took %q, want b (a is the caller)", got)
	}

	// a stays queued.
	if n, _ := q.Size(ctx); n != 1 {
		t.Fatalf("size %d, want 1", n)
	}
}

func TestMemoryQueueEmptyForLoneCaller(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	q.EnqueueOrRefresh(ctx, "a")
	got, _, err := q.TakeOldestOtherThan(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Fatalf("took %q, want no candidate", got)
	}
}

func TestMemoryQueueRefreshKeepsPosition(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	q.EnqueueOrRefresh(ctx, "a")
	q.EnqueueOrRefresh(ctx, "b")
	q.EnqueueOrRefresh(ctx, "a") // refresh, not re-append

	if n, _ := q.Size(ctx); n != 2 {
		t.Fatalf("size %d, want 2 after refresh", n)
	}
	got, _, _ := q.TakeOldestOtherThan(ctx, "z")
	if got != "a" {
		t.Fatalf("took %q, refresh must not change arrival order", got)
	}
}

func TestMemoryQueuePurgeStale(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	q.EnqueueOrRefresh(ctx, "old")
	time.Sleep(30 * time.Millisecond)
	q.EnqueueOrRefresh(ctx, "fresh")

	if err := q.PurgeStale(ctx, 20*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	if n, _ := q.Size(ctx); n != 1 {
		t.Fatalf("size %d, want only the fresh entry", n)
	}
	got, _, _ := q.TakeOldestOtherThan(ctx, "z")
	if got != "fresh" {
		t.Fatalf("took %q, want fresh", got)
	}
}

func TestMemoryQueueConcurrentTakeAtMostOnce(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	q.EnqueueOrRefresh(ctx, "victim")

	const takers = 32
	var wg sync.WaitGroup
	taken := make(chan string, takers)
	for i := 0; i < takers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			uid, _, err := q.TakeOldestOtherThan(ctx, fmt.Sprintf("taker-%d", i))
			if err != nil {
				t.Error(err)
				return
			}
			if uid != "" {
				taken <- uid
			}
		}(i)
	}
	wg.Wait()
	close(taken)

	count := 0
	for range taken {
		count++
	}
	if count != 1 {
		t.Fatalf("entry consumed %d times, want exactly 1", count)
	}
}

// ---------- MemoryRegistry tests ----------

func TestMemoryRegistrySymmetry(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	m, err := r.Create(ctx, "init", "resp")
	if err != nil {
		t.Fatal(err)
	}
	if m.RoomID == "" {
		t.Fatal("expected a room id")
	}
	if m.Initiator != "init" {
		t.Fatalf("initiator %q", m.Initiator)
	}

	a, err := r.Find(ctx, "init")
	if err != nil || a == nil {
		t.Fatalf("find init: %v %v", a, err)
	}
	b, err := r.Find(ctx, "resp")
	if err != nil || b == nil {
		t.Fatalf("find resp: %v %v", b, err)
	}
	if a.RoomID != b.RoomID {
		t.Fatalf("room ids differ: %s vs %s", a.RoomID, b.RoomID)
	}
	if a.Partner("init") != "resp" || b.Partner("resp") != "init" {
		t.Fatal("partner resolution broken")
	}
}

func TestMemoryRegistryRejectsDoubleMatch(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	if _, err := r.Create(ctx, "a", "b"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Create(ctx, "a", "c"); err != ErrAlreadyMatched {
		t.Fatalf("err %v, want ErrAlreadyMatched for matched initiator", err)
	}
	if _, err := r.Create(ctx, "c", "b"); err != ErrAlreadyMatched {
		t.Fatalf("err %v, want ErrAlreadyMatched for matched responder", err)
	}
}

func TestMemoryRegistryDissolve(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	r.Create(ctx, "a", "b")

	partner, err := r.Dissolve(ctx, "b")
	if err != nil {
		t.Fatal(err)
	}
	if partner != "a" {
		t.Fatalf("partner %q, want a", partner)
	}

	// Both sides are gone.
	if m, _ := r.Find(ctx, "a"); m != nil {
		t.Fatal("a still matched after dissolve")
	}
	if m, _ := r.Find(ctx, "b"); m != nil {
		t.Fatal("b still matched after dissolve")
	}

	// Dissolving an unmatched uid is a no-op.
	if partner, err := r.Dissolve(ctx, "a"); err != nil || partner != "" {
		t.Fatalf("repeat dissolve: %q %v", partner, err)
	}
}

func TestMemoryRegistryTouchAndIdleSince(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	r.Create(ctx, "a", "b")

	idle, err := r.IdleSince(ctx, time.Now().Unix())
	if err != nil {
		t.Fatal(err)
	}
	if len(idle) != 1 {
		t.Fatalf("idle count %d, want 1", len(idle))
	}

	// A future-dated cutoff far in the past spares the match.
	idle, _ = r.IdleSince(ctx, time.Now().Unix()-3600)
	if len(idle) != 0 {
		t.Fatalf("idle count %d, want 0 for old cutoff", len(idle))
	}

	if err := r.Touch(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	m, _ := r.Find(ctx, "a")
	if m.LastActivity < m.CreatedAt {
		t.Fatal("touch went backwards")
	}
}

func TestMemoryRegistryRoomIDsUnique(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	m1, _ := r.Create(ctx, "a", "b")
	m2, _ := r.Create(ctx, "c", "d")
	if m1.RoomID == m2.RoomID {
		t.Fatal("two matches share a room id")
	}
}
