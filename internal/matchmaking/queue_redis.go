package matchmaking

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyWaiting is a sorted set of waiting uids scored by enqueue time in unix
// milliseconds, so range operations double as FIFO ordering and staleness
// purges.
const keyWaiting = "pair:waiting"

// takeOldestLua pops the oldest member different from the caller in a single
// script, so two concurrent pairing requests can never both consume the same
// waiting entry. Returns the member and its score, or false when the queue
// (excluding the caller) is empty.
const takeOldestLua = `
local oldest = redis.call('ZRANGE', KEYS[1], 0, 1, 'WITHSCORES')
for i = 1, #oldest, 2 do
    if oldest[i] ~= ARGV[1] then
        redis.call('ZREM', KEYS[1], oldest[i])
        return {oldest[i], oldest[i+1]}
    end
end
return false
`

// RedisQueue is the store-backed waiting queue used by the poll server.
// Atomicity of the take operation comes from Redis script execution rather
// than in-process locking, so it holds across server processes too.
type RedisQueue struct {
	rdb        *redis.Client
	takeScript *redis.Script
}

// NewRedisQueue returns a waiting queue backed by the given Redis client.
func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{
		rdb:        rdb,
		takeScript: redis.NewScript(takeOldestLua),
	}
}

// EnqueueOrRefresh adds uid with the current timestamp as score. ZADD on an
// existing member just updates the score, which is exactly the refresh
// semantics we want.
func (q *RedisQueue) EnqueueOrRefresh(ctx context.Context, uid string) error {
	err := q.rdb.ZAdd(ctx, keyWaiting, redis.Z{
		Score:  float64(time.Now().UnixMilli()),
		Member: uid,
	}).Err()
	if err != nil {
		return fmt.Errorf("matchmaking: enqueue %s: %w", uid, err)
	}
	return nil
}

// TakeOldestOtherThan atomically removes and returns the oldest waiter other
// than uid, plus its enqueue time. Returns "" when nobody else is waiting.
func (q *RedisQueue) TakeOldestOtherThan(ctx context.Context, uid string) (string, time.Time, error) {
	res, err := q.takeScript.Run(ctx, q.rdb, []string{keyWaiting}, uid).Result()
	if err == redis.Nil {
		return "", time.Time{}, nil
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("matchmaking: take waiter: %w", err)
	}

	pair, ok := res.([]interface{})
	if !ok || len(pair) != 2 {
		return "", time.Time{}, fmt.Errorf("matchmaking: take waiter: unexpected reply %v", res)
	}

	member, _ := pair[0].(string)
	var scoreMs float64
	if s, ok := pair[1].(string); ok {
		fmt.Sscanf(s, "%f", &scoreMs)
	}
	return member, time.UnixMilli(int64(scoreMs)), nil
}

// PurgeStale removes all entries enqueued more than maxAge ago.
func (q *RedisQueue) PurgeStale(ctx context.Context, maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge).UnixMilli()
	err := q.rdb.ZRemRangeByScore(ctx, keyWaiting, "0", fmt.Sprintf("%d", cutoff)).Err()
	if err != nil {
		return fmt.Errorf("matchmaking: purge stale: %w", err)
	}
	return nil
}

// Remove deletes uid's waiting entry.
func (q *RedisQueue) Remove(ctx context.Context, uid string) error {
	if err := q.rdb.ZRem(ctx, keyWaiting, uid).Err(); err != nil {
		return fmt.Errorf("matchmaking: remove %s: %w", uid, err)
	}
	return nil
}

// Size returns the number of uids currently waiting.
func (q *RedisQueue) Size(ctx context.Context) (int, error) {
	n, err := q.rdb.ZCard(ctx, keyWaiting).Result()
	if err != nil {
		return 0, fmt.Errorf("matchmaking: queue size: %w", err)
	}
	return int(n), nil
}
