package matchmaking

import (
	"context"
	"sync"
	"time"
)

type waitingEntry struct {
	uid        string
	enqueuedAt time.Time
}

// MemoryQueue is the in-process waiting queue. Arrival order is preserved
// (oldest waiter matched first) and a uid holds at most one entry.
type MemoryQueue struct {
	mu      sync.Mutex
	entries []waitingEntry
	present map[string]bool
}

// NewMemoryQueue returns an empty in-process waiting queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{present: make(map[string]bool)}
}

// EnqueueOrRefresh appends uid to the queue, or refreshes its timestamp if
// it is already waiting. Refreshing keeps the original arrival position.
func (q *MemoryQueue) EnqueueOrRefresh(_ context.Context, uid string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.present[uid] {
		for i := range q.entries {
			if q.entries[i].uid == uid {
				q.entries[i].enqueuedAt = time.Now()
				break
			}
		}
		return nil
	}

	q.entries = append(q.entries, waitingEntry{uid: uid, enqueuedAt: time.Now()})
	q.present[uid] = true
	return nil
}

// TakeOldestOtherThan atomically removes and returns the oldest waiter whose
// uid differs from the caller, with its enqueue time. Returns "" when no
// such waiter exists. A single entry can never satisfy two concurrent calls.
func (q *MemoryQueue) TakeOldestOtherThan(_ context.Context, uid string) (string, time.Time, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.entries {
		if e.uid == uid {
			continue
		}
		q.entries = append(q.entries[:i], q.entries[i+1:]...)
		delete(q.present, e.uid)
		return e.uid, e.enqueuedAt, nil
	}
	return "", time.Time{}, nil
}

// PurgeStale drops every entry older than maxAge. Runs before each pairing
// attempt so abandoned waiters are never matched.
func (q *MemoryQueue) PurgeStale(_ context.Context, maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge)

	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.entries[:0]
	for _, e := range q.entries {
		if e.enqueuedAt.After(cutoff) {
			kept = append(kept, e)
		} else {
			delete(q.present, e.uid)
		}
	}
	q.entries = kept
	return nil
}

// Remove deletes uid's waiting entry if present.
func (q *MemoryQueue) Remove(_ context.Context, uid string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.present[uid] {
		return nil
	}
	for i := range q.entries {
		if q.entries[i].uid == uid {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	delete(q.present, uid)
	return nil
}

// Size returns the number of waiting entries.
func (q *MemoryQueue) Size(_ context.Context) (int, error) {
	q.mu.Lock()
	n := len(q.entries)
	q.mu.Unlock()
	return n, nil
}
