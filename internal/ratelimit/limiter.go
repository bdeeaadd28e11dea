// Package ratelimit holds the throttles used by the chat server: a
// per-username fixed window for public messages, and per-IP admission
// limiters for new connections (Redis-backed when a Redis address is
// configured, in-process token buckets otherwise).
package ratelimit

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule defines a Redis-backed rate limiting policy: the key prefix, the
// maximum number of requests allowed in the window, and the window length.
type Rule struct {
	Key    string        // Redis key prefix, e.g. "rl:conn:"
	Limit  int           // max count in the window
	Window time.Duration // window length
}

// RuleConnect allows 20 new connections per minute per remote IP.
var RuleConnect = Rule{Key: "rl:conn:", Limit: 20, Window: time.Minute}

// Limiter performs INCR + EXPIRE rate limiting against Redis.
type Limiter struct {
	client *redis.Client
	rule   Rule
}

// NewLimiter creates a Limiter enforcing rule with the given Redis client.
func NewLimiter(client *redis.Client, rule Rule) *Limiter {
	return &Limiter{client: client, rule: rule}
}

// Dial connects to Redis at addr and verifies the connection.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ratelimit: redis connection failed: %w", err)
	}
	return client, nil
}

// Allow increments the counter for identifier and reports whether it is
// still within the rule's limit. The expiry is set on the first increment so
// the window does not slide.
//
// On Redis errors Allow fails open (returns true) so that a Redis outage
// does not lock every client out of the chat.
func (l *Limiter) Allow(ctx context.Context, identifier string) (bool, error) {
	key := l.rule.Key + identifier

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("[ratelimit] redis INCR error key=%s: %v (failing open)", key, err)
		return true, err
	}

	if count == 1 {
		if err := l.client.Expire(ctx, key, l.rule.Window).Err(); err != nil {
			log.Printf("[ratelimit] redis EXPIRE error key=%s: %v (failing open)", key, err)
			// A key without TTL would throttle the identifier forever.
			l.client.Del(ctx, key)
			return true, err
		}
	}

	return int(count) <= l.rule.Limit, nil
}

