// Package identity assigns ephemeral display names to connected users.
// Names carry no account linkage; they exist so two strangers have
// something to call each other for the lifetime of a connection.
package identity

import (
	"math/rand"
	"sync"
)

var adjectives = []string{
	"Neon", "Silver", "Cyber", "Global", "Arctic", "Solar", "Vortex", "Elite",
}

var nouns = []string{
	"Falcon", "Tiger", "Ghost", "Runner", "Sage", "Knight", "Oracle", "Spark",
}

// Generate produces a display name of the form "Adjective Noun NN" with NN
// in [10, 99]. Collisions are possible and acceptable.
func Generate() string {
	return adjectives[rand.Intn(len(adjectives))] + " " +
		nouns[rand.Intn(len(nouns))] + " " +
		itoa2(10+rand.Intn(90))
}

func itoa2(n int) string {
	return string([]byte{byte('0' + n/10), byte('0' + n%10)})
}

// Registry maps connected uids to their assigned display names for the
// lifetime of the connection.
type Registry struct {
	mu    sync.RWMutex
	names map[string]string
}

// NewRegistry returns an empty identity registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]string)}
}

// Assign generates and records a display name for uid. Re-assigning an
// already-known uid replaces the old name.
func (r *Registry) Assign(uid string) string {
	name := Generate()
	r.mu.Lock()
	r.names[uid] = name
	r.mu.Unlock()
	return name
}

// Lookup returns uid's display name, or "" if none is assigned.
func (r *Registry) Lookup(uid string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names[uid]
}

// Remove forgets uid's display name.
func (r *Registry) Remove(uid string) {
	r.mu.Lock()
	delete(r.names, uid)
	r.mu.Unlock()
}
