package matchmaking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRegistry is the in-process match registry. Both sides of a match
// index the same *Match, so a lookup by either uid resolves the pair.
type MemoryRegistry struct {
	mu      sync.Mutex
	matches map[string]*Match
}

// NewMemoryRegistry returns an empty in-process registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{matches: make(map[string]*Match)}
}

// Find returns a copy of the match containing uid, or nil.
func (r *MemoryRegistry) Find(_ context.Context, uid string) (*Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.matches[uid]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

// Create pairs initiator with responder, assigning a fresh room ID. Fails
// with ErrAlreadyMatched if either side already belongs to a match; the
// check and the insert happen under one lock.
func (r *MemoryRegistry) Create(_ context.Context, initiator, responder string) (*Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.matches[initiator] != nil || r.matches[responder] != nil {
		return nil, ErrAlreadyMatched
	}

	now := time.Now().Unix()
	m := &Match{
		UserA:        initiator,
		UserB:        responder,
		Initiator:    initiator,
		RoomID:       uuid.New().String(),
		CreatedAt:    now,
		LastActivity: now,
	}
	r.matches[initiator] = m
	r.matches[responder] = m

	cp := *m
	return &cp, nil
}

// Dissolve removes the match containing uid and returns the partner's uid,
// or "" if uid was not matched.
func (r *MemoryRegistry) Dissolve(_ context.Context, uid string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.matches[uid]
	if !ok {
		return "", nil
	}
	delete(r.matches, m.UserA)
	delete(r.matches, m.UserB)
	return m.Partner(uid), nil
}

// Touch bumps the match's last-activity timestamp.
func (r *MemoryRegistry) Touch(_ context.Context, uid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.matches[uid]; ok {
		m.LastActivity = time.Now().Unix()
	}
	return nil
}

// IdleSince returns one copy per match whose last activity is at or before
// cutoff (unix seconds). Input for the abandoned-match sweep.
func (r *MemoryRegistry) IdleSince(_ context.Context, cutoff int64) ([]*Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var idle []*Match
	for uid, m := range r.matches {
		if uid != m.UserA {
			continue // visit each match once, via its initiator key
		}
		if m.LastActivity <= cutoff {
			cp := *m
			idle = append(idle, &cp)
		}
	}
	return idle, nil
}
