// Package engine implements the matchmaking and session-lifecycle state
// machine shared by both transport adapters. Per uid the lifecycle is
// IDLE -> WAITING -> MATCHED -> IDLE; stop and disconnect always return to
// IDLE and tear down any waiting/matched residue.
//
// The engine owns the pairing critical section: taking a waiter and creating
// the match happen under one lock on top of the stores' own atomic
// operations, so two concurrent pairing requests can never both claim the
// same partner.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/zingo/pair-server/internal/matchmaking"
	"github.com/zingo/pair-server/internal/metrics"
	"github.com/zingo/pair-server/internal/relay"
)

// PresenceTracker records last-seen timestamps per uid.
type PresenceTracker interface {
	Announce(ctx context.Context, uid string) error
	OnlineCount(ctx context.Context, threshold time.Duration) (int, error)
	IsReachable(ctx context.Context, uid string, threshold time.Duration) (bool, error)
	Remove(ctx context.Context, uid string) error
}

// WaitingQueue holds uids looking for a partner in arrival order.
type WaitingQueue interface {
	EnqueueOrRefresh(ctx context.Context, uid string) error
	TakeOldestOtherThan(ctx context.Context, uid string) (string, time.Time, error)
	PurgeStale(ctx context.Context, maxAge time.Duration) error
	Remove(ctx context.Context, uid string) error
	Size(ctx context.Context) (int, error)
}

// MatchRegistry holds the active one-to-one pairings.
type MatchRegistry interface {
	Find(ctx context.Context, uid string) (*matchmaking.Match, error)
	Create(ctx context.Context, initiator, responder string) (*matchmaking.Match, error)
	Dissolve(ctx context.Context, uid string) (string, error)
	Touch(ctx context.Context, uid string) error
	IdleSince(ctx context.Context, cutoff int64) ([]*matchmaking.Match, error)
}

// RelayStore queues messages and signals for a recipient's next sync.
type RelayStore interface {
	Send(ctx context.Context, kind relay.Kind, from, to, payload string) error
	Drain(ctx context.Context, kind relay.Kind, to string) ([]relay.Item, error)
	Clear(ctx context.Context, uid string) error
}

// Status is the outcome of a RequestPartner call.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusMatched Status = "matched"
	StatusWaiting Status = "waiting"
)

// FallbackOnlineCount is reported when the backing store is unreachable;
// the caller itself is always presumed online.
const FallbackOnlineCount = 1

// PartnerResult describes the state a RequestPartner call left the uid in.
type PartnerResult struct {
	Status     Status
	PartnerUID string
	RoomID     string
	Initiator  bool
}

// SyncResult is the recipient's synchronized view: current partner plus all
// relay items drained by this call.
type SyncResult struct {
	PartnerUID string
	Messages   []relay.Item
	Signals    []relay.Item
}

// Config holds the engine's staleness thresholds.
type Config struct {
	// PresenceThreshold is the maximum last-seen age for a uid to count as
	// online/reachable.
	PresenceThreshold time.Duration

	// QueueMaxAge is the maximum age of a waiting entry before it is
	// purged ahead of a pairing attempt.
	QueueMaxAge time.Duration

	// SweepInterval is how often the abandoned-match sweep runs.
	SweepInterval time.Duration
}

// DefaultConfig returns the thresholds both servers ship with.
func DefaultConfig() Config {
	return Config{
		PresenceThreshold: 30 * time.Second,
		QueueMaxAge:       30 * time.Second,
		SweepInterval:     10 * time.Second,
	}
}

// Controller orchestrates presence, queue, registry and relay into the
// session state machine. One Controller serves all uids.
type Controller struct {
	cfg      Config
	presence PresenceTracker
	queue    WaitingQueue
	matches  MatchRegistry
	relay    RelayStore

	// OnPartnerLeft, when set, is invoked with (partner, leaver) whenever a
	// match is dissolved while the partner may still be connected. The push
	// adapter uses it for immediate partner_disconnected delivery; the poll
	// adapter leaves it nil and lets the partner discover the teardown on
	// its next sync.
	OnPartnerLeft func(partnerUID, leaverUID string)

	pairing chan struct{} // unbuffered token serializing take+create/dissolve
}

// New creates a Controller over the given component implementations.
func New(cfg Config, presence PresenceTracker, queue WaitingQueue, matches MatchRegistry, relayStore RelayStore) *Controller {
	def := DefaultConfig()
	if cfg.PresenceThreshold <= 0 {
		cfg.PresenceThreshold = def.PresenceThreshold
	}
	if cfg.QueueMaxAge <= 0 {
		cfg.QueueMaxAge = def.QueueMaxAge
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	c := &Controller{
		cfg:      cfg,
		presence: presence,
		queue:    queue,
		matches:  matches,
		relay:    relayStore,
		pairing:  make(chan struct{}, 1),
	}
	c.pairing <- struct{}{}
	return c
}

// acquirePairing takes the pairing token, honoring context cancellation.
func (c *Controller) acquirePairing(ctx context.Context) error {
	select {
	case <-c.pairing:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) releasePairing() {
	c.pairing <- struct{}{}
}

// Announce records a heartbeat for uid and returns the current online count.
// The count never drops below FallbackOnlineCount: the caller just
// announced, so it is presumed online even if the store write failed.
func (c *Controller) Announce(ctx context.Context, uid string) (int, error) {
	if uid == "" {
		return 0, ErrInvalidRequest
	}

	if err := c.presence.Announce(ctx, uid); err != nil {
		log.Printf("[engine] announce %s: %v", uid, err)
		return FallbackOnlineCount, nil
	}

	count, err := c.presence.OnlineCount(ctx, c.cfg.PresenceThreshold)
	if err != nil {
		log.Printf("[engine] online count: %v", err)
		return FallbackOnlineCount, nil
	}
	if count < FallbackOnlineCount {
		count = FallbackOnlineCount
	}
	metrics.OnlineUsers.Set(float64(count))

	if size, err := c.queue.Size(ctx); err == nil {
		metrics.WaitingQueueSize.Set(float64(size))
	}

	return count, nil
}

// RequestPartner drives the pairing transition for uid.
//
// With stop=true any match is dissolved and any waiting entry removed. With
// stop=false: an existing match is re-affirmed as-is (the re-query never
// re-claims the initiator role); otherwise the oldest reachable waiter is
// taken and matched with uid as initiator; otherwise uid starts (or keeps)
// waiting.
func (c *Controller) RequestPartner(ctx context.Context, uid string, stop bool) (PartnerResult, error) {
	if uid == "" {
		return PartnerResult{}, ErrInvalidRequest
	}

	if stop {
		if err := c.teardown(ctx, uid, "stop"); err != nil {
			return PartnerResult{}, err
		}
		return PartnerResult{Status: StatusStopped}, nil
	}

	if err := c.queue.PurgeStale(ctx, c.cfg.QueueMaxAge); err != nil {
		return PartnerResult{}, fmt.Errorf("engine: purge stale waiters: %w", err)
	}

	if err := c.acquirePairing(ctx); err != nil {
		return PartnerResult{}, err
	}
	defer c.releasePairing()

	// An existing match is authoritative.
	if m, err := c.matches.Find(ctx, uid); err != nil {
		return PartnerResult{}, fmt.Errorf("engine: find match for %s: %w", uid, err)
	} else if m != nil {
		return PartnerResult{
			Status:     StatusMatched,
			PartnerUID: m.Partner(uid),
			RoomID:     m.RoomID,
			Initiator:  false,
		}, nil
	}

	candidate, enqueuedAt, err := c.queue.TakeOldestOtherThan(ctx, uid)
	if err != nil {
		return PartnerResult{}, fmt.Errorf("engine: take waiter: %w", err)
	}

	if candidate != "" {
		reachable, err := c.presence.IsReachable(ctx, candidate, c.cfg.PresenceThreshold)
		if err != nil {
			return PartnerResult{}, fmt.Errorf("engine: reachability of %s: %w", candidate, err)
		}
		if reachable {
			m, err := c.matches.Create(ctx, uid, candidate)
			switch {
			case errors.Is(err, matchmaking.ErrAlreadyMatched):
				// Raced against another pairing; whatever match exists for
				// uid now is authoritative, and a consumed candidate is
				// discarded rather than re-enqueued.
				if existing, ferr := c.matches.Find(ctx, uid); ferr == nil && existing != nil {
					return PartnerResult{
						Status:     StatusMatched,
						PartnerUID: existing.Partner(uid),
						RoomID:     existing.RoomID,
						Initiator:  false,
					}, nil
				}
			case err != nil:
				return PartnerResult{}, fmt.Errorf("engine: create match: %w", err)
			default:
				_ = c.queue.Remove(ctx, uid)
				metrics.MatchesCreatedTotal.Inc()
				metrics.ActiveMatches.Inc()
				metrics.PairingWaitSeconds.Observe(time.Since(enqueuedAt).Seconds())
				log.Printf("[engine] matched %s with %s room=%s", uid, candidate, m.RoomID)
				return PartnerResult{
					Status:     StatusMatched,
					PartnerUID: candidate,
					RoomID:     m.RoomID,
					Initiator:  true,
				}, nil
			}
		} else {
			// Vanished candidate: discard, fall through to waiting.
			log.Printf("[engine] discarding unreachable waiter %s", candidate)
		}
	}

	if err := c.queue.EnqueueOrRefresh(ctx, uid); err != nil {
		return PartnerResult{}, fmt.Errorf("engine: enqueue %s: %w", uid, err)
	}
	return PartnerResult{Status: StatusWaiting}, nil
}

// Sync returns uid's current partner (empty if unmatched) and drains both
// relay queues addressed to uid. Valid in any state; while matched it also
// refreshes the match's last-activity timestamp.
func (c *Controller) Sync(ctx context.Context, uid string) (SyncResult, error) {
	if uid == "" {
		return SyncResult{}, ErrInvalidRequest
	}

	var result SyncResult

	m, err := c.matches.Find(ctx, uid)
	if err != nil {
		return SyncResult{}, fmt.Errorf("engine: find match for %s: %w", uid, err)
	}
	if m != nil {
		result.PartnerUID = m.Partner(uid)
		_ = c.matches.Touch(ctx, uid)
	}

	if result.Messages, err = c.relay.Drain(ctx, relay.KindMessage, uid); err != nil {
		return SyncResult{}, fmt.Errorf("engine: drain messages: %w", err)
	}
	if result.Signals, err = c.relay.Drain(ctx, relay.KindSignal, uid); err != nil {
		return SyncResult{}, fmt.Errorf("engine: drain signals: %w", err)
	}

	return result, nil
}

// Match returns uid's current match, or nil. Used by the push adapter to
// resolve the room scope for broadcasts.
func (c *Controller) Match(ctx context.Context, uid string) (*matchmaking.Match, error) {
	return c.matches.Find(ctx, uid)
}

// SendMessage queues chat text for the recipient's next sync. The recipient
// is taken from the caller as-is; the registry is deliberately not consulted
// (inherited trust boundary).
func (c *Controller) SendMessage(ctx context.Context, from, to, text string) error {
	if from == "" || to == "" {
		return ErrInvalidRequest
	}
	if err := c.relay.Send(ctx, relay.KindMessage, from, to, text); err != nil {
		return err
	}
	metrics.RelayItemsTotal.WithLabelValues(string(relay.KindMessage)).Inc()
	return nil
}

// SendSignal queues an opaque negotiation payload for the recipient's next
// sync. Same trust model as SendMessage.
func (c *Controller) SendSignal(ctx context.Context, from, to, payload string) error {
	if from == "" || to == "" {
		return ErrInvalidRequest
	}
	if err := c.relay.Send(ctx, relay.KindSignal, from, to, payload); err != nil {
		return err
	}
	metrics.RelayItemsTotal.WithLabelValues(string(relay.KindSignal)).Inc()
	return nil
}

// Disconnect tears down all state for uid (push adapter: the live
// connection closed). Returns the abandoned partner's uid, "" if none.
func (c *Controller) Disconnect(ctx context.Context, uid string) (string, error) {
	if uid == "" {
		return "", ErrInvalidRequest
	}

	if err := c.presence.Remove(ctx, uid); err != nil {
		log.Printf("[engine] remove presence %s: %v", uid, err)
	}

	partner, err := c.dissolve(ctx, uid, "disconnect")
	if err != nil {
		return "", err
	}
	return partner, nil
}

// teardown implements the stop transition: dissolve any match, leave the
// queue, land in IDLE.
func (c *Controller) teardown(ctx context.Context, uid, cause string) error {
	_, err := c.dissolve(ctx, uid, cause)
	return err
}

// dissolve removes uid from the queue, dissolves its match if any, clears
// uid's pending relay items and fires the partner-left hook.
func (c *Controller) dissolve(ctx context.Context, uid, cause string) (string, error) {
	if err := c.queue.Remove(ctx, uid); err != nil {
		return "", fmt.Errorf("engine: leave queue: %w", err)
	}

	if err := c.acquirePairing(ctx); err != nil {
		return "", err
	}
	partner, err := c.matches.Dissolve(ctx, uid)
	c.releasePairing()
	if err != nil {
		return "", fmt.Errorf("engine: dissolve match for %s: %w", uid, err)
	}

	_ = c.relay.Clear(ctx, uid)

	if partner != "" {
		metrics.ActiveMatches.Dec()
		metrics.MatchesDissolvedTotal.WithLabelValues(cause).Inc()
		log.Printf("[engine] dissolved match %s/%s (%s)", uid, partner, cause)
		if c.OnPartnerLeft != nil {
			c.OnPartnerLeft(partner, uid)
		}
	}
	return partner, nil
}
