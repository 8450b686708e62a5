package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyLastSeen is a sorted set of uids scored by their last-seen unix
// timestamp in milliseconds. Staleness is score-based, so no TTL bookkeeping
// is needed per uid.
const keyLastSeen = "presence:last_seen"

// trimAfter bounds how long dead records linger in the sorted set before
// Announce sweeps them out.
const trimAfter = 10 * time.Minute

// RedisTracker stores presence in Redis for the poll deployment, where
// requests from the same uid may hit the store from independent
// request/response cycles.
type RedisTracker struct {
	rdb *redis.Client
}

// NewRedisTracker returns a tracker backed by the given Redis client.
func NewRedisTracker(rdb *redis.Client) *RedisTracker {
	return &RedisTracker{rdb: rdb}
}

// Announce upserts the uid's last-seen score and trims records stale beyond
// any useful threshold.
func (t *RedisTracker) Announce(ctx context.Context, uid string) error {
	now := float64(time.Now().UnixMilli())

	pipe := t.rdb.Pipeline()
	pipe.ZAdd(ctx, keyLastSeen, redis.Z{Score: now, Member: uid})
	pipe.ZRemRangeByScore(ctx, keyLastSeen, "0",
		fmt.Sprintf("%.0f", now-float64(trimAfter.Milliseconds())))
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("presence: announce %s: %w", uid, err)
	}
	return nil
}

// OnlineCount counts uids whose last-seen score falls within threshold of now.
func (t *RedisTracker) OnlineCount(ctx context.Context, threshold time.Duration) (int, error) {
	cutoff := time.Now().Add(-threshold).UnixMilli()

	n, err := t.rdb.ZCount(ctx, keyLastSeen, fmt.Sprintf("%d", cutoff), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("presence: online count: %w", err)
	}
	return int(n), nil
}

// IsReachable reports whether uid has a record within threshold of now.
func (t *RedisTracker) IsReachable(ctx context.Context, uid string, threshold time.Duration) (bool, error) {
	score, err := t.rdb.ZScore(ctx, keyLastSeen, uid).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("presence: reachable %s: %w", uid, err)
	}

	cutoff := float64(time.Now().Add(-threshold).UnixMilli())
	return score > cutoff, nil
}

// Remove deletes the uid's presence record.
func (t *RedisTracker) Remove(ctx context.Context, uid string) error {
	if err := t.rdb.ZRem(ctx, keyLastSeen, uid).Err(); err != nil {
		return fmt.Errorf("presence: remove %s: %w", uid, err)
	}
	return nil
}
