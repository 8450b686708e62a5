package relay

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps relay queues in process memory. Drain swaps the
// recipient's slice out under the lock, so a concurrent send lands either in
// the returned batch or in the next one, never both and never neither.
type MemoryStore struct {
	mu     sync.Mutex
	queues map[Kind]map[string][]Item
}

// NewMemoryStore returns an empty in-process relay store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		queues: map[Kind]map[string][]Item{
			KindMessage: make(map[string][]Item),
			KindSignal:  make(map[string][]Item),
		},
	}
}

// Send appends one item to the recipient's queue for the given kind.
func (s *MemoryStore) Send(_ context.Context, kind Kind, from, to, payload string) error {
	item := Item{
		From:    from,
		Payload: boundPayload(kind, payload),
		SentAt:  time.Now().Unix(),
	}

	s.mu.Lock()
	s.queues[kind][to] = append(s.queues[kind][to], item)
	s.mu.Unlock()
	return nil
}

// Drain returns all items pending for the recipient in insertion order and
// empties the queue.
func (s *MemoryStore) Drain(_ context.Context, kind Kind, to string) ([]Item, error) {
	s.mu.Lock()
	items := s.queues[kind][to]
	delete(s.queues[kind], to)
	s.mu.Unlock()
	return items, nil
}

// Clear drops all pending items of both kinds addressed to uid.
func (s *MemoryStore) Clear(_ context.Context, uid string) error {
	s.mu.Lock()
	delete(s.queues[KindMessage], uid)
	delete(s.queues[KindSignal], uid)
	s.mu.Unlock()
	return nil
}
