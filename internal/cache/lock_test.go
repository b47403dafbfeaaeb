package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLocalLockerExcludesConcurrentHolders(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	lock, err := locker.Obtain(ctx, "daily-report:1:2026-03-06", time.Minute)
	if err != nil {
		t.Fatalf("obtain failed: %v", err)
	}
	if _, err := locker.Obtain(ctx, "daily-report:1:2026-03-06", time.Minute); !errors.Is(err, ErrLockNotObtained) {
		t.Fatalf("expected ErrLockNotObtained, got %v", err)
	}
	if _, err := locker.Obtain(ctx, "daily-report:2:2026-03-06", time.Minute); err != nil {
		t.Fatalf("other keys must not be blocked: %v", err)
	}

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if _, err := locker.Obtain(ctx, "daily-report:1:2026-03-06", time.Minute); err != nil {
		t.Fatalf("expected lock after release: %v", err)
	}
}

func TestLocalLockerExpiresStaleLocks(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	if _, err := locker.Obtain(ctx, "k", time.Millisecond); err != nil {
		t.Fatalf("obtain failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := locker.Obtain(ctx, "k", time.Minute); err != nil {
		t.Fatalf("expected expired lock to be reclaimed: %v", err)
	}
}

func TestNoopBillViewCacheMisses(t *testing.T) {
	var c NoopBillViewCache
	if err := c.Set(context.Background(), BillTokenKey("abc"), []byte(`{}`), time.Second); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if _, ok, _ := c.Get(context.Background(), BillTokenKey("abc")); ok {
		t.Fatalf("noop cache must never hit")
	}
}
