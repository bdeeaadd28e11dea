package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLocalLimiter_Burst(t *testing.T) {
	l := NewLocalLimiter(1, 3)
	now := epoch
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "10.0.0.1")
		if err != nil {
			t.Fatalf("Allow() error: %v", err)
		}
		if !ok {
			t.Fatalf("attempt %d should be allowed within burst", i+1)
		}
	}
	if ok, _ := l.Allow(ctx, "10.0.0.1"); ok {
		t.Fatal("expected attempt beyond burst to be rejected")
	}

	// Other identifiers have their own bucket.
	if ok, _ := l.Allow(ctx, "10.0.0.2"); !ok {
		t.Error("expected a fresh identifier to be allowed")
	}

	// One token refills per second.
	now = now.Add(time.Second)
	if ok, _ := l.Allow(ctx, "10.0.0.1"); !ok {
		t.Error("expected a refilled token after one second")
	}
}

func TestLocalLimiter_PrunesIdleBuckets(t *testing.T) {
	l := NewLocalLimiter(1, 1)
	now := epoch
	l.now = func() time.Time { return now }
	ctx := context.Background()

	l.Allow(ctx, "a")
	l.Allow(ctx, "b")

	now = now.Add(2 * idleBucketTTL)
	l.Allow(ctx, "c")

	l.mu.Lock()
	n := len(l.buckets)
	l.mu.Unlock()
	if n != 1 {
		t.Errorf("expected idle buckets to be pruned, have %d", n)
	}
}
