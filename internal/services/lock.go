package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"alfredoptarigan/applicant-screener/internal/models"
)

const DefaultLockStaleAfter = 5 * time.Minute

// CycleLocker serializes scoring cycles across processes. Acquire returns
// false when another live holder has the lock; a holder older than the stale
// ceiling is preempted.
type CycleLocker interface {
	Acquire(ctx context.Context, owner string, now time.Time) (bool, error)
	Release(ctx context.Context, owner string) error
	Status(ctx context.Context) (*models.CycleLock, error)
}

// NewLockOwner builds a unique holder id for this process and cycle.
func NewLockOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}

// releaseScript deletes the key only if the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisCycleLocker struct {
	client     redis.UniversalClient
	key        string
	staleAfter time.Duration
}

// NewRedisCycleLocker stores the holder as the key value with a TTL equal to
// the stale ceiling, so an abandoned lock expires on its own.
func NewRedisCycleLocker(client redis.UniversalClient, key string, staleAfter time.Duration) CycleLocker {
	if key == "" {
		key = "screener:cycle-lock"
	}
	if staleAfter <= 0 {
		staleAfter = DefaultLockStaleAfter
	}
	return &redisCycleLocker{client: client, key: key, staleAfter: staleAfter}
}

func (l *redisCycleLocker) Acquire(ctx context.Context, owner string, now time.Time) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, owner, l.staleAfter).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire redis cycle lock: %w", err)
	}
	return ok, nil
}

func (l *redisCycleLocker) Release(ctx context.Context, owner string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, owner).Err(); err != nil {
		return fmt.Errorf("failed to release redis cycle lock: %w", err)
	}
	return nil
}

func (l *redisCycleLocker) Status(ctx context.Context) (*models.CycleLock, error) {
	owner, err := l.client.Get(ctx, l.key).Result()
	if errors.Is(err, redis.Nil) {
		return &models.CycleLock{ID: 1}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read redis cycle lock: %w", err)
	}

	lock := &models.CycleLock{ID: 1, InProgress: true, Owner: owner}
	ttl, err := l.client.PTTL(ctx, l.key).Result()
	if err == nil && ttl > 0 {
		acquired := time.Now().Add(ttl - l.staleAfter).UTC()
		lock.AcquiredAt = &acquired
	}
	return lock, nil
}
