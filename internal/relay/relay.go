// Package relay queues chat messages and connection-negotiation signals for
// delivery to a recipient's next sync. Each (kind, recipient) pair has an
// independent FIFO; items are write-once, read-once: a drain atomically
// returns and deletes everything pending for the caller.
package relay

import "unicode/utf8"

// Kind discriminates the two independent relay queues.
type Kind string

const (
	// KindMessage carries chat text, bounded by MaxMessageRunes.
	KindMessage Kind = "msg"

	// KindSignal carries opaque peer-negotiation payloads. Their size is
	// not policed by this layer.
	KindSignal Kind = "sig"
)

// MaxMessageRunes bounds a single chat message so one abusive sender cannot
// grow a recipient's queue without limit. Signals are exempt.
const MaxMessageRunes = 1000

// Item is one queued message or signal awaiting delivery.
type Item struct {
	From    string `json:"from"`
	Payload string `json:"payload"`
	SentAt  int64  `json:"ts"` // unix seconds
}

// BoundMessage truncates chat text to MaxMessageRunes. Transports that
// bypass the store (live room fan-out) apply the same bound.
func BoundMessage(text string) string {
	if utf8.RuneCountInString(text) <= MaxMessageRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:MaxMessageRunes])
}

// boundPayload applies BoundMessage to message payloads. Signal payloads
// pass through untouched.
func boundPayload(kind Kind, payload string) string {
	if kind != KindMessage {
		return payload
	}
	return BoundMessage(payload)
}
