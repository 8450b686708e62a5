// Package ratelimit provides Redis-backed per-uid throttling using the
// INCR + EXPIRE fixed-window algorithm. The poll API applies it to message
// sends and pairing requests, the two operations cheap clients hammer.
package ratelimit

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule defines a throttling policy: the Redis key prefix, the maximum count
// allowed in the window, and the window duration.
type Rule struct {
	Key    string
	Limit  int
	Window time.Duration
}

var (
	// RuleMessage allows 5 chat messages per 10 seconds per uid.
	RuleMessage = Rule{Key: "rl:msg:", Limit: 5, Window: 10 * time.Second}

	// RuleFindPartner allows 10 pairing requests per minute per uid.
	RuleFindPartner = Rule{Key: "rl:find:", Limit: 10, Window: 1 * time.Minute}
)

// Limiter performs rate limiting checks against Redis.
type Limiter struct {
	client *redis.Client
}

// NewLimiter creates a Limiter backed by the given Redis client.
func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

// Allow reports whether uid is within the limit defined by rule, counting
// this call. On Redis errors it fails open so a store outage does not block
// legitimate traffic.
func (l *Limiter) Allow(ctx context.Context, uid string, rule Rule) (bool, error) {
	key := rule.Key + uid

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("[ratelimit] redis INCR error key=%s: %v (failing open)", key, err)
		return true, err
	}

	// The first increment defines the window boundary.
	if count == 1 {
		if err := l.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			log.Printf("[ratelimit] redis EXPIRE error key=%s: %v (failing open)", key, err)
			// The counter has no TTL and would throttle uid forever; best
			// effort cleanup.
			l.client.Del(ctx, key)
			return true, err
		}
	}

	return int(count) <= rule.Limit, nil
}
