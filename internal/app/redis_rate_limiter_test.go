package app

import (
	"context"
	"testing"
	"time"
)

func TestRedisRateLimiter_NilAndDisabledNeverLimit(t *testing.T) {
	var nilLimiter *RedisRateLimiter
	count, retry, err := nilLimiter.ConsumeRateLimit(context.Background(), "transfer", "owner", 5, time.Minute)
	if err != nil || count != 0 || retry != 0 {
		t.Fatalf("expected nil limiter to be a no-op, got count=%d retry=%d err=%v", count, retry, err)
	}

	limiter := NewRedisRateLimiter(nil, "")
	if limiter.prefix != DefaultRateLimitPrefix {
		t.Fatalf("expected default prefix, got %q", limiter.prefix)
	}
	if _, _, err := limiter.ConsumeRateLimit(context.Background(), "transfer", "owner", 0, time.Minute); err != nil {
		t.Fatalf("expected disabled limit to be a no-op, got %v", err)
	}
}

func TestRedisRateLimiter_KeyTrimsPrefix(t *testing.T) {
	limiter := NewRedisRateLimiter(nil, " wallet:limits: ")
	if got := limiter.key("withdraw", "abc"); got != "wallet:limits:withdraw:abc" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestParseWindowResult(t *testing.T) {
	count, retry, err := parseWindowResult([]interface{}{int64(3), int64(1500)}, 60000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 3 || retry != 2 {
		t.Fatalf("expected count=3 retry=2, got count=%d retry=%d", count, retry)
	}

	_, retry, err = parseWindowResult([]interface{}{int64(1), int64(-1)}, 60000)
	if err != nil || retry != 60 {
		t.Fatalf("expected negative ttl to fall back to window, got retry=%d err=%v", retry, err)
	}

	if _, _, err := parseWindowResult("bad", 1000); err == nil {
		t.Fatalf("expected shape error")
	}
}
