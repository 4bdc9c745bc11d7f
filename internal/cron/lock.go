package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLockTTL = 2 * time.Hour

// Lock coordinates exclusive cron runs across worker instances.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// redisStore is the slice of the redis client the lock needs.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLock holds a SETNX lease under a shared key. Each Acquire writes a
// fresh token so Release never deletes a lease taken over by another worker
// after TTL expiry.
type RedisLock struct {
	store redisStore
	key   string
	ttl   time.Duration
	token string
}

func NewRedisLock(store redisStore, key string, ttl time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

// Acquire attempts to take the lease for the configured TTL.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire cron lock: %w", err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Release drops the lease, but only while this instance still owns it.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	current, err := l.store.Get(ctx, l.key)
	switch {
	case errors.Is(err, redis.Nil):
		l.token = ""
		return nil
	case err != nil:
		return fmt.Errorf("read cron lock owner: %w", err)
	case current != l.token:
		l.token = ""
		return nil
	}
	if err := l.store.Del(ctx, l.key); err != nil {
		return fmt.Errorf("release cron lock: %w", err)
	}
	l.token = ""
	return nil
}
