package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Relay queues live in Redis lists, one per (kind, recipient):
//
//	Key:   relay:<kind>:<uid>
//	Value: JSON-encoded Item, RPUSH'd in send order
//	TTL:   relayTTL, refreshed on every send
const relayKeyPrefix = "relay:"

// relayTTL bounds queues for recipients that never sync again. Live clients
// poll every couple of seconds, so drained items are long gone before this
// fires.
const relayTTL = 2 * time.Minute

// drainLua reads the whole list and deletes the key in one script. Because
// scripts execute atomically, an item RPUSH'd before the drain runs is in
// the returned batch, and one pushed after lands in the next drain.
const drainLua = `
local items = redis.call('LRANGE', KEYS[1], 0, -1)
redis.call('DEL', KEYS[1])
return items
`

// RedisStore is the store-backed relay used by the poll server.
type RedisStore struct {
	rdb         *redis.Client
	drainScript *redis.Script
}

// NewRedisStore returns a relay store backed by the given Redis client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{
		rdb:         rdb,
		drainScript: redis.NewScript(drainLua),
	}
}

func relayKey(kind Kind, uid string) string {
	return relayKeyPrefix + string(kind) + ":" + uid
}

// Send appends one item to the recipient's list and refreshes its TTL.
func (s *RedisStore) Send(ctx context.Context, kind Kind, from, to, payload string) error {
	item := Item{
		From:    from,
		Payload: boundPayload(kind, payload),
		SentAt:  time.Now().Unix(),
	}
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("relay: marshal item: %w", err)
	}

	key := relayKey(kind, to)
	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, relayTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("relay: send %s to %s: %w", kind, to, err)
	}
	return nil
}

// Drain atomically returns and removes all items pending for the recipient,
// in insertion order.
func (s *RedisStore) Drain(ctx context.Context, kind Kind, to string) ([]Item, error) {
	raw, err := s.drainScript.Run(ctx, s.rdb, []string{relayKey(kind, to)}).StringSlice()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("relay: drain %s for %s: %w", kind, to, err)
	}

	items := make([]Item, 0, len(raw))
	for _, entry := range raw {
		var item Item
		if err := json.Unmarshal([]byte(entry), &item); err != nil {
			continue // skip corrupt entries rather than failing the drain
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items, nil
}

// Clear drops all pending items of both kinds addressed to uid.
func (s *RedisStore) Clear(ctx context.Context, uid string) error {
	err := s.rdb.Del(ctx, relayKey(KindMessage, uid), relayKey(KindSignal, uid)).Err()
	if err != nil {
		return fmt.Errorf("relay: clear %s: %w", uid, err)
	}
	return nil
}
