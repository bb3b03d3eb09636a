package redis

import (
	"context"
	"testing"
	"time"
)

func TestLocker_TryLockIsExclusive(t *testing.T) {
	client, mr := newTestRedisClient(t)
	defer mr.Close()

	locker := NewLocker(client)
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "daily-close:2024-03-01", time.Minute)
	if err != nil || !ok || token == "" {
		t.Fatalf("expected lock, got token=%q ok=%v err=%v", token, ok, err)
	}

	_, ok, err = locker.TryLock(ctx, "daily-close:2024-03-01", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected second TryLock to fail, got ok=%v err=%v", ok, err)
	}

	if ttl := mr.TTL(locker.prefix + "daily-close:2024-03-01"); ttl != time.Minute {
		t.Fatalf("expected lease TTL of 1m, got %v", ttl)
	}
}

func TestLocker_UnlockRequiresToken(t *testing.T) {
	client, mr := newTestRedisClient(t)
	defer mr.Close()

	locker := NewLocker(client)
	ctx := context.Background()

	token, _, err := locker.TryLock(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}

	if err := locker.Unlock(ctx, "k", "someone-else"); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if !mr.Exists(locker.prefix + "k") {
		t.Fatalf("foreign token must not release the lock")
	}

	if err := locker.Unlock(ctx, "k", token); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if mr.Exists(locker.prefix + "k") {
		t.Fatalf("expected lock to be released")
	}
}

func TestLocker_ExpiredLeaseCanBeTaken(t *testing.T) {
	client, mr := newTestRedisClient(t)
	defer mr.Close()

	locker := NewLocker(client)
	ctx := context.Background()

	first, _, _ := locker.TryLock(ctx, "k", time.Second)
	mr.FastForward(2 * time.Second)

	second, ok, err := locker.TryLock(ctx, "k", time.Second)
	if err != nil || !ok {
		t.Fatalf("expected expired lease to be replaced, got ok=%v err=%v", ok, err)
	}

	if err := locker.Unlock(ctx, "k", first); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if got, _ := mr.Get(locker.prefix + "k"); got != second {
		t.Fatalf("stale holder released the new lease")
	}
}
