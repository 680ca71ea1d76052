// Package ratelimit provides Redis-backed fixed-window rate limiting using
// INCR + EXPIRE. Each API action is throttled per client IP or per user.
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Rule defines a rate limiting policy: the Redis key prefix, maximum number of
// requests allowed in the window, and the window duration.
type Rule struct {
	Key    string        // Redis key prefix (e.g., "rl:register:")
	Limit  int           // max count in the window
	Window time.Duration // time window
}

var (
	// RuleRegister allows 10 user check or register calls per minute per IP.
	RuleRegister = Rule{Key: "rl:register:", Limit: 10, Window: time.Minute}

	// RuleUpload allows 10 uploads per minute per user.
	RuleUpload = Rule{Key: "rl:upload:", Limit: 10, Window: time.Minute}

	// RuleGraph allows 20 graph prompts per minute per user.
	RuleGraph = Rule{Key: "rl:graph:", Limit: 20, Window: time.Minute}
)

// Limiter performs rate limiting checks against Redis.
type Limiter struct {
	client *redis.Client
}

// NewLimiter creates a Limiter backed by the given Redis client.
func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

// Allow increments the counter for identifier under rule and reports whether
// the request is within the limit. The expiry is set on first access.
//
// On Redis errors it fails open (returns true with the error) so that a
// Redis outage does not block legitimate traffic.
func (l *Limiter) Allow(ctx context.Context, identifier string, rule Rule) (bool, error) {
	key := rule.Key + identifier

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("[ratelimit] redis INCR failed, failing open")
		return true, err
	}

	if count == 1 {
		if err := l.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("[ratelimit] redis EXPIRE failed, failing open")
			// A key without TTL would throttle the identifier forever.
			l.client.Del(ctx, key)
			return true, err
		}
	}

	return int(count) <= rule.Limit, nil
}

// RetryAfter returns the time until identifier's window resets, or zero when
// no window is open.
func (l *Limiter) RetryAfter(ctx context.Context, identifier string, rule Rule) time.Duration {
	ttl, err := l.client.TTL(ctx, rule.Key+identifier).Result()
	if err != nil || ttl < 0 {
		return 0
	}
	return ttl
}
