// Package matchmaking holds the two pairing data structures: the waiting
// queue of users looking for a partner, and the registry of active
// one-to-one matches. Both come in an in-process flavor (push server) and a
// Redis flavor (poll server). The queue's take operation and the registry's
// create/dissolve are the two check-and-act critical sections of the whole
// system; each implementation makes them atomic on its own terms, a single
// mutex in memory and single Lua scripts in Redis.
package matchmaking

import "errors"

// ErrAlreadyMatched is returned by Create when either side already belongs
// to a match. The pre-existing match is authoritative; callers must never
// end up with a second one.
var ErrAlreadyMatched = errors.New("matchmaking: user already matched")

// Match is an active pairing between two uids. The sides are symmetric for
// lookup but asymmetric in role: Initiator is the uid whose pairing request
// found the waiting partner.
type Match struct {
	UserA        string // initiator side
	UserB        string // responder side (was waiting)
	Initiator    string // always equal to UserA
	RoomID       string // transport broadcast scope for the push server
	CreatedAt    int64  // unix seconds
	LastActivity int64  // unix seconds, bumped by Touch
}

// Partner returns the other side's uid, or "" if uid is not a participant.
func (m *Match) Partner(uid string) string {
	switch uid {
	case m.UserA:
		return m.UserB
	case m.UserB:
		return m.UserA
	}
	return ""
}

// IsParticipant reports whether uid is one of the two sides.
func (m *Match) IsParticipant(uid string) bool {
	return uid == m.UserA || uid == m.UserB
}
