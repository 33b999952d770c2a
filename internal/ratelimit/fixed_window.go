package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "llmgateway:ratelimit"
	redisCallTimeout   = 2 * time.Second
)

// incrWindow bumps the counter for one window slot and arms its expiry on
// first use. It returns the new count.
var incrWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// Decision is the outcome of one quota check. RetryAfter is set when the
// request is refused.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter is implemented by the login and LLM quotas.
type Limiter interface {
	Check(key string) Decision
}

// FixedWindowLimiter counts login attempts per key in Redis so that every
// gateway replica shares one budget. Windows are aligned to the epoch.
type FixedWindowLimiter struct {
	limit  int
	window time.Duration
	prefix string
	client *redis.Client
	now    func() time.Time
}

func NewRedisFixedWindowLimiter(addr, password, prefix string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if limit <= 0 || window < time.Millisecond {
		return nil, errors.New("ratelimit: limit must be positive and window at least 1ms")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("ratelimit: redis addr required")
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &FixedWindowLimiter{
		limit:  limit,
		window: window,
		prefix: prefix,
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		now:    time.Now,
	}, nil
}

// Check counts one request for key. Redis errors refuse the request.
func (l *FixedWindowLimiter) Check(key string) Decision {
	if l == nil {
		return Decision{}
	}
	now := l.now().UTC()
	windowMs := l.window.Milliseconds()
	slot := now.UnixMilli() / windowMs
	retryAfter := time.Duration((slot+1)*windowMs-now.UnixMilli()) * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), redisCallTimeout)
	defer cancel()
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, normalizeKey(key), slot)
	count, err := incrWindow.Run(ctx, l.client, []string{redisKey}, windowMs).Int64()
	if err != nil || count > int64(l.limit) {
		return Decision{RetryAfter: retryAfter}
	}
	return Decision{Allowed: true}
}

// Allow is Check without the retry hint.
func (l *FixedWindowLimiter) Allow(key string) bool {
	return l.Check(key).Allowed
}

func normalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "unknown"
	}
	return key
}
