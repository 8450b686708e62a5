package matchmaking

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// Per-uid match hash; both sides carry a copy so either uid resolves
	// the pair in one lookup.
	keyMatchPrefix = "pair:match:"

	// Sorted set of initiator uids scored by last activity, feeding the
	// abandoned-match sweep.
	keyMatchIdle = "pair:match:idle"

	// matchTTL caps how long match keys survive without any activity, a
	// backstop behind the sweep.
	matchTTL = 2 * time.Hour
)

// createMatchLua inserts both sides of a match only if neither uid is
// already matched. The existence check and the writes execute as one script,
// closing the check-then-create race between concurrent pairing requests.
//
//	KEYS: match:<initiator>, match:<responder>, idle index
//	ARGV: initiator, responder, room_id, now (unix s), ttl (s)
const createMatchLua = `
if redis.call('EXISTS', KEYS[1]) == 1 or redis.call('EXISTS', KEYS[2]) == 1 then
    return 0
end
redis.call('HSET', KEYS[1],
    'partner', ARGV[2], 'initiator', ARGV[1], 'room_id', ARGV[3],
    'created_at', ARGV[4], 'last_activity', ARGV[4])
redis.call('HSET', KEYS[2],
    'partner', ARGV[1], 'initiator', ARGV[1], 'room_id', ARGV[3],
    'created_at', ARGV[4], 'last_activity', ARGV[4])
redis.call('EXPIRE', KEYS[1], ARGV[5])
redis.call('EXPIRE', KEYS[2], ARGV[5])
redis.call('ZADD', KEYS[3], ARGV[4], ARGV[1])
return 1
`

// dissolveMatchLua deletes both sides of the match containing the uid behind
// KEYS[1] and returns the partner uid, or false if there was no match.
//
//	KEYS: match:<uid>, idle index
//	ARGV: match key prefix
const dissolveMatchLua = `
local fields = redis.call('HGETALL', KEYS[1])
if #fields == 0 then
    return false
end
local partner, initiator
for i = 1, #fields, 2 do
    if fields[i] == 'partner' then partner = fields[i+1] end
    if fields[i] == 'initiator' then initiator = fields[i+1] end
end
redis.call('DEL', KEYS[1])
redis.call('DEL', ARGV[1] .. partner)
redis.call('ZREM', KEYS[2], initiator)
return partner
`

// touchMatchLua bumps last_activity on both sides and the idle index, and
// refreshes the key TTLs.
//
//	KEYS: match:<uid>, idle index
//	ARGV: match key prefix, now (unix s), ttl (s)
const touchMatchLua = `
local fields = redis.call('HGETALL', KEYS[1])
if #fields == 0 then
    return 0
end
local partner, initiator
for i = 1, #fields, 2 do
    if fields[i] == 'partner' then partner = fields[i+1] end
    if fields[i] == 'initiator' then initiator = fields[i+1] end
end
redis.call('HSET', KEYS[1], 'last_activity', ARGV[2])
redis.call('HSET', ARGV[1] .. partner, 'last_activity', ARGV[2])
redis.call('EXPIRE', KEYS[1], ARGV[3])
redis.call('EXPIRE', ARGV[1] .. partner, ARGV[3])
redis.call('ZADD', KEYS[2], ARGV[2], initiator)
return 1
`

// RedisRegistry is the store-backed match registry used by the poll server.
type RedisRegistry struct {
	rdb            *redis.Client
	createScript   *redis.Script
	dissolveScript *redis.Script
	touchScript    *redis.Script
}

// NewRedisRegistry returns a registry backed by the given Redis client.
func NewRedisRegistry(rdb *redis.Client) *RedisRegistry {
	return &RedisRegistry{
		rdb:            rdb,
		createScript:   redis.NewScript(createMatchLua),
		dissolveScript: redis.NewScript(dissolveMatchLua),
		touchScript:    redis.NewScript(touchMatchLua),
	}
}

// Find returns the match containing uid, or nil if uid is unmatched.
func (r *RedisRegistry) Find(ctx context.Context, uid string) (*Match, error) {
	fields, err := r.rdb.HGetAll(ctx, keyMatchPrefix+uid).Result()
	if err != nil {
		return nil, fmt.Errorf("matchmaking: find %s: %w", uid, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	initiator := fields["initiator"]
	responder := fields["partner"]
	if uid != initiator {
		responder = uid
	}

	createdAt, _ := strconv.ParseInt(fields["created_at"], 10, 64)
	lastActivity, _ := strconv.ParseInt(fields["last_activity"], 10, 64)

	return &Match{
		UserA:        initiator,
		UserB:        responder,
		Initiator:    initiator,
		RoomID:       fields["room_id"],
		CreatedAt:    createdAt,
		LastActivity: lastActivity,
	}, nil
}

// Create pairs initiator with responder atomically. Returns
// ErrAlreadyMatched when either side is already in a match.
func (r *RedisRegistry) Create(ctx context.Context, initiator, responder string) (*Match, error) {
	now := time.Now().Unix()
	roomID := uuid.New().String()

	ok, err := r.createScript.Run(ctx, r.rdb,
		[]string{keyMatchPrefix + initiator, keyMatchPrefix + responder, keyMatchIdle},
		initiator, responder, roomID, now, int(matchTTL.Seconds()),
	).Int()
	if err != nil {
		return nil, fmt.Errorf("matchmaking: create %s/%s: %w", initiator, responder, err)
	}
	if ok == 0 {
		return nil, ErrAlreadyMatched
	}

	return &Match{
		UserA:        initiator,
		UserB:        responder,
		Initiator:    initiator,
		RoomID:       roomID,
		CreatedAt:    now,
		LastActivity: now,
	}, nil
}

// Dissolve removes the match containing uid and returns the partner uid, or
// "" if uid was not matched.
func (r *RedisRegistry) Dissolve(ctx context.Context, uid string) (string, error) {
	partner, err := r.dissolveScript.Run(ctx, r.rdb,
		[]string{keyMatchPrefix + uid, keyMatchIdle},
		keyMatchPrefix,
	).Text()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("matchmaking: dissolve %s: %w", uid, err)
	}
	return partner, nil
}

// Touch refreshes the match's last-activity timestamp and TTLs.
func (r *RedisRegistry) Touch(ctx context.Context, uid string) error {
	err := r.touchScript.Run(ctx, r.rdb,
		[]string{keyMatchPrefix + uid, keyMatchIdle},
		keyMatchPrefix, time.Now().Unix(), int(matchTTL.Seconds()),
	).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("matchmaking: touch %s: %w", uid, err)
	}
	return nil
}

// IdleSince returns matches whose last activity is at or before cutoff (unix
// seconds). Initiator entries whose match hash already expired are pruned
// from the index as they are encountered.
func (r *RedisRegistry) IdleSince(ctx context.Context, cutoff int64) ([]*Match, error) {
	uids, err := r.rdb.ZRangeByScore(ctx, keyMatchIdle, &redis.ZRangeBy{
		Min: "0",
		Max: fmt.Sprintf("%d", cutoff),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("matchmaking: idle scan: %w", err)
	}

	var idle []*Match
	for _, uid := range uids {
		m, err := r.Find(ctx, uid)
		if err != nil {
			continue
		}
		if m == nil {
			r.rdb.ZRem(ctx, keyMatchIdle, uid)
			continue
		}
		idle = append(idle, m)
	}
	return idle, nil
}
