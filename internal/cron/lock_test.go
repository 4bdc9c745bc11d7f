package cron

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeRedisStore struct {
	values map[string]string
}

func newFakeRedisStore() *fakeRedisStore {
	return &fakeRedisStore{values: map[string]string{}}
}

func (s *fakeRedisStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := s.values[key]; ok {
		return false, nil
	}
	s.values[key] = value.(string)
	return true, nil
}

func (s *fakeRedisStore) Get(ctx context.Context, key string) (string, error) {
	value, ok := s.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (s *fakeRedisStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.values, key)
	}
	return nil
}

func TestRedisLockAcquireAndRelease(t *testing.T) {
	ctx := context.Background()
	store := newFakeRedisStore()

	lock, err := NewRedisLock(store, "lz:lock:cron", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}

	ok, err := lock.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("Acquire = (%v, %v), want (true, nil)", ok, err)
	}

	// Second instance must be refused while the lock is held.
	other, err := NewRedisLock(store, "lz:lock:cron", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	ok, err = other.Acquire(ctx)
	if err != nil || ok {
		t.Fatalf("second Acquire = (%v, %v), want (false, nil)", ok, err)
	}

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	ok, err = other.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("Acquire after release = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestRedisLockReleaseOnlyDeletesOwnValue(t *testing.T) {
	ctx := context.Background()
	store := newFakeRedisStore()

	lock, err := NewRedisLock(store, "lz:lock:cron", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	if ok, err := lock.Acquire(ctx); err != nil || !ok {
		t.Fatalf("Acquire = (%v, %v), want (true, nil)", ok, err)
	}

	// Simulate expiry plus takeover by another instance.
	store.values["lz:lock:cron"] = "someone-else"
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if got := store.values["lz:lock:cron"]; got != "someone-else" {
		t.Fatalf("release removed a lock owned by another instance: %q", got)
	}
}

func TestRedisLockReleaseWithoutAcquireIsNoop(t *testing.T) {
	store := newFakeRedisStore()
	lock, err := NewRedisLock(store, "lz:lock:cron", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

func TestNewRedisLockValidation(t *testing.T) {
	if _, err := NewRedisLock(nil, "key", time.Minute); err == nil {
		t.Fatal("expected error without client")
	}
	if _, err := NewRedisLock(newFakeRedisStore(), "", time.Minute); err == nil {
		t.Fatal("expected error without key")
	}
}
