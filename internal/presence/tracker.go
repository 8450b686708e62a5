// Package presence tracks "last seen" timestamps per user identifier. A uid
// counts as online/reachable while its record is younger than the caller's
// threshold; stale records are simply excluded from counts and reachability
// checks rather than eagerly deleted.
package presence

import (
	"context"
	"sync"
	"time"
)

// MemoryTracker is the in-process tracker used by the push server, where all
// connections live in a single process. It is goroutine-safe.
type MemoryTracker struct {
	mu       sync.RWMutex
	lastSeen map[string]time.Time
}

// NewMemoryTracker returns an empty in-process tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{lastSeen: make(map[string]time.Time)}
}

// Announce upserts the uid's last-seen timestamp to now.
func (t *MemoryTracker) Announce(_ context.Context, uid string) error {
	t.mu.Lock()
	t.lastSeen[uid] = time.Now()
	t.mu.Unlock()
	return nil
}

// OnlineCount returns the number of uids seen within threshold of now.
func (t *MemoryTracker) OnlineCount(_ context.Context, threshold time.Duration) (int, error) {
	cutoff := time.Now().Add(-threshold)

	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for _, seen := range t.lastSeen {
		if seen.After(cutoff) {
			count++
		}
	}
	return count, nil
}

// IsReachable reports whether uid has a record younger than threshold. A
// dequeued waiting candidate is validated with this before a match is
// committed, so users who silently vanished are never paired.
func (t *MemoryTracker) IsReachable(_ context.Context, uid string, threshold time.Duration) (bool, error) {
	t.mu.RLock()
	seen, ok := t.lastSeen[uid]
	t.mu.RUnlock()

	if !ok {
		return false, nil
	}
	return time.Since(seen) < threshold, nil
}

// Remove deregisters the uid (push disconnect).
func (t *MemoryTracker) Remove(_ context.Context, uid string) error {
	t.mu.Lock()
	delete(t.lastSeen, uid)
	t.mu.Unlock()
	return nil
}
