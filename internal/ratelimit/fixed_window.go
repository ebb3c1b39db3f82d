package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWithExpiry bumps a window counter and arms its TTL on the first hit.
var incrWithExpiry = redis.NewScript(`
local hits = redis.call("INCR", KEYS[1])
if hits == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return hits
`)

const redisTimeout = 2 * time.Second

// FixedWindowLimiter counts contact submissions per client in Redis, one
// counter per window, so all API replicas see the same quota.
type FixedWindowLimiter struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
	now    func() time.Time
}

// NewRedisFixedWindowLimiter connects a limiter allowing limit hits per window.
func NewRedisFixedWindowLimiter(addr, password, prefix string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("rate limiter redis addr is required")
	}
	if prefix = strings.TrimSpace(prefix); prefix == "" {
		prefix = "envelope:ratelimit"
	}
	return &FixedWindowLimiter{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		prefix: prefix,
		limit:  int64(limit),
		window: window,
		now:    time.Now,
	}, nil
}

func (l *FixedWindowLimiter) counterKey(key string) string {
	slot := l.now().UTC().UnixMilli() / l.window.Milliseconds()
	return fmt.Sprintf("%s:%s:%d", l.prefix, key, slot)
}

// Allow records a hit for key and reports whether it is within quota.
// A Redis failure counts as over quota.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) bool {
	if l == nil {
		return false
	}
	if l.window < time.Millisecond {
		return true
	}
	if key = strings.TrimSpace(key); key == "" {
		key = "unknown"
	}

	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	hits, err := incrWithExpiry.Run(ctx, l.client, []string{l.counterKey(key)}, l.window.Milliseconds()).Int64()
	if err != nil {
		log.Printf("[RATELIMIT] Redis error for %s: %v", key, err)
		return false
	}
	return hits <= l.limit
}

// Close releases the Redis connection.
func (l *FixedWindowLimiter) Close() error {
	return l.client.Close()
}
