// Package scanlock serializes drift scans per (framework, old version,
// new version) tuple. The second concurrent caller does not wait; it
// observes the first scan's recorded results.
package scanlock

import (
	"context"
	"fmt"
	"sync"
	"time"

	platformredis "crosswalk/internal/platform/redis"
	id "crosswalk/pkg/domain"
)

// Key builds the lock key for one scan tuple.
func Key(frameworkID id.FrameworkID, oldVersionID, newVersionID id.VersionID) string {
	return fmt.Sprintf("crosswalk:driftscan:%s:%s:%s", frameworkID, oldVersionID, newVersionID)
}

// Lock is a best-effort mutual exclusion primitive for scan tuples.
type Lock interface {
	// TryAcquire returns true when the caller now holds the key.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisLock coordinates across processes with SET NX and a TTL so a
// crashed scanner cannot hold the tuple forever.
type RedisLock struct {
	client *platformredis.Client
}

func NewRedisLock(client *platformredis.Client) *RedisLock {
	return &RedisLock{client: client}
}

func (l *RedisLock) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire scan lock: %w", err)
	}
	return ok, nil
}

func (l *RedisLock) Release(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("release scan lock: %w", err)
	}
	return nil
}

// InMemoryLock covers single-process deployments and tests.
type InMemoryLock struct {
	mu      sync.Mutex
	held    map[string]time.Time
	clockFn func() time.Time
}

func NewInMemoryLock() *InMemoryLock {
	return &InMemoryLock{held: make(map[string]time.Time), clockFn: time.Now}
}

func (l *InMemoryLock) TryAcquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clockFn()
	if expiry, ok := l.held[key]; ok && now.Before(expiry) {
		return false, nil
	}
	l.held[key] = now.Add(ttl)
	return true, nil
}

func (l *InMemoryLock) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}
