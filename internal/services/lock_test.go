package services

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLockOwnerIsUnique(t *testing.T) {
	a, b := NewLockOwner(), NewLockOwner()
	assert.NotEqual(t, a, b)
	assert.True(t, strings.Contains(a, "-"))
}

// Runs against a real server when SCREENER_TEST_REDIS_ADDR is set.
func TestRedisCycleLocker(t *testing.T) {
	addr := os.Getenv("SCREENER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SCREENER_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	key := "screener-test:" + uuid.NewString()
	t.Cleanup(func() { client.Del(context.Background(), key) })
	locker := NewRedisCycleLocker(client, key, time.Minute)

	ok, err := locker.Acquire(ctx, "a", time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = locker.Acquire(ctx, "b", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	status, err := locker.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.InProgress)
	assert.Equal(t, "a", status.Owner)
	require.NotNil(t, status.AcquiredAt)

	require.NoError(t, locker.Release(ctx, "b"), "releasing someone else's lock is a no-op")
	status, err = locker.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.InProgress)

	require.NoError(t, locker.Release(ctx, "a"))
	status, err = locker.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.InProgress)
}
