package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T) *Limiter {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return NewLimiter(client)
}

func TestAllowWithinAndOverLimit(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:", Limit: 3, Window: 10 * time.Second}
	id := uuid.NewString()
	t.Cleanup(func() { l.client.Del(ctx, rule.Key+id) })

	for i := 1; i <= rule.Limit; i++ {
		ok, err := l.Allow(ctx, id, rule)
		if err != nil || !ok {
			t.Fatalf("request %d: allowed=%v err=%v, want allowed", i, ok, err)
		}
	}
	ok, err := l.Allow(ctx, id, rule)
	if err != nil || ok {
		t.Fatalf("request over limit: allowed=%v err=%v, want denied", ok, err)
	}

	if ra := l.RetryAfter(ctx, id, rule); ra <= 0 || ra > rule.Window {
		t.Errorf("RetryAfter = %v, want within (0, %v]", ra, rule.Window)
	}
}

func TestRetryAfterFreshIdentifier(t *testing.T) {
	l := newTestLimiter(t)
	if ra := l.RetryAfter(context.Background(), uuid.NewString(), RuleGraph); ra != 0 {
		t.Fatalf("RetryAfter = %v, want 0 with no open window", ra)
	}
}

func TestAllowFailsOpen(t *testing.T) {
	// Nothing listens on port 1.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	l := NewLimiter(client)

	ok, err := l.Allow(context.Background(), "x", RuleUpload)
	if !ok {
		t.Fatal("Allow denied on redis error, want fail open")
	}
	if err == nil {
		t.Fatal("expected redis error to be returned")
	}
	if ra := l.RetryAfter(context.Background(), "x", RuleUpload); ra != 0 {
		t.Errorf("RetryAfter = %v on redis error, want 0", ra)
	}
}
