package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisLock_AcquireRelease(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	lock := NewRedisLock(client, "drainer", time.Minute)

	ok, err := lock.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if !ok {
		t.Fatal("expected first acquire to succeed")
	}

	// A second holder must not get the lock while it is held
	contender := NewRedisLock(client, "drainer", time.Minute)
	ok, err = contender.Acquire(ctx)
	if err != nil {
		t.Fatalf("contender acquire failed: %v", err)
	}
	if ok {
		t.Fatal("expected contender acquire to fail while lock is held")
	}

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	// After release the contender can take it
	ok, err = contender.Acquire(ctx)
	if err != nil {
		t.Fatalf("contender acquire after release failed: %v", err)
	}
	if !ok {
		t.Fatal("expected contender acquire to succeed after release")
	}
}

func TestRedisLock_ReleaseOnlyIfOwned(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	holder := NewRedisLock(client, "drainer", time.Minute)
	if ok, _ := holder.Acquire(ctx); !ok {
		t.Fatal("expected acquire to succeed")
	}

	// Releasing a lock we do not own must be a no-op
	other := NewRedisLock(client, "drainer", time.Minute)
	if err := other.Release(ctx); err != nil {
		t.Fatalf("foreign release errored: %v", err)
	}

	if ok, _ := other.Acquire(ctx); ok {
		t.Fatal("lock should still be held by the original owner")
	}
}

func TestRedisLock_Extend(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	lock := NewRedisLock(client, "drainer", time.Minute)
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("expected acquire to succeed")
	}
	if err := lock.Extend(ctx, 2*time.Minute); err != nil {
		t.Fatalf("extend failed: %v", err)
	}
}

func TestNew_FallsBackToPostgres(t *testing.T) {
	// With no Redis client configured the factory must hand back the
	// advisory-lock implementation.
	lock := New(nil, nil, "drainer", time.Minute)
	if _, ok := lock.(*PGAdvisoryLock); !ok {
		t.Fatalf("expected *PGAdvisoryLock, got %T", lock)
	}
}
