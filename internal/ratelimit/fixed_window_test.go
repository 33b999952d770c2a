package ratelimit

import (
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestFixedWindowLimiterRedis(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(redis.Addr(), "", "test:ratelimit", 2, time.Second)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	if !limiter.Allow("ip-1") {
		t.Fatalf("first request should pass")
	}
	if !limiter.Allow("ip-1") {
		t.Fatalf("second request should pass")
	}
	if limiter.Allow("ip-1") {
		t.Fatalf("third request should be blocked")
	}
}

func TestFixedWindowLimiterRedisFailClosed(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(redis.Addr(), "", "test:ratelimit", 1, time.Second)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	redis.Close()
	if limiter.Allow("ip-1") {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestFixedWindowLimiterRequiresRedisAddr(t *testing.T) {
	limiter, err := NewRedisFixedWindowLimiter("", "", "test:ratelimit", 1, time.Second)
	if err == nil || limiter != nil {
		t.Fatalf("expected constructor error for empty redis addr")
	}
}

func TestFixedWindowRetryAfterEndsWithWindow(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(redis.Addr(), "", "test:ratelimit:", 1, time.Minute)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	windowStart := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return windowStart.Add(45 * time.Second) }

	if d := limiter.Check("203.0.113.7"); !d.Allowed {
		t.Fatalf("first check = %+v, want allowed", d)
	}
	d := limiter.Check("203.0.113.7")
	if d.Allowed || d.RetryAfter != 15*time.Second {
		t.Fatalf("second check = %+v, want refused with 15s retry", d)
	}
	slot := windowStart.UnixMilli() / time.Minute.Milliseconds()
	if !redis.Exists(fmt.Sprintf("test:ratelimit:203.0.113.7:%d", slot)) {
		t.Fatalf("window key missing, keys = %v", redis.Keys())
	}

	limiter.now = func() time.Time { return windowStart.Add(time.Minute) }
	if d := limiter.Check("203.0.113.7"); !d.Allowed {
		t.Fatalf("next window check = %+v, want allowed", d)
	}
}

func TestLocalLimiterRetryAfter(t *testing.T) {
	limiter := NewLocalLimiter(0.5, 1)
	if d := limiter.Check("alice"); !d.Allowed {
		t.Fatalf("first check = %+v, want allowed", d)
	}
	d := limiter.Check("alice")
	if d.Allowed || d.RetryAfter <= time.Second || d.RetryAfter > 2*time.Second {
		t.Fatalf("second check = %+v, want refused with about 2s retry", d)
	}
	// a refused check must not push the next token further out
	again := limiter.Check("alice")
	if again.RetryAfter > d.RetryAfter {
		t.Fatalf("retry grew from %s to %s", d.RetryAfter, again.RetryAfter)
	}
}

func TestLocalLimiterBurstThenBlock(t *testing.T) {
	limiter := NewLocalLimiter(0.001, 2)
	if !limiter.Allow("alice") || !limiter.Allow("alice") {
		t.Fatalf("burst requests should pass")
	}
	if limiter.Allow("alice") {
		t.Fatalf("third request should be blocked")
	}
	if !limiter.Allow("bob") {
		t.Fatalf("keys must not share buckets")
	}
}

func TestLimiterImplementations(t *testing.T) {
	var _ Limiter = (*FixedWindowLimiter)(nil)
	var _ Limiter = (*LocalLimiter)(nil)
	var nilLocal *LocalLimiter
	if !nilLocal.Allow("x") {
		t.Fatalf("nil local limiter should allow")
	}
}
