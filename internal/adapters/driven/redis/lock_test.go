package redis

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestLock_OwnerID(t *testing.T) {
	client, _ := setupTestRedis(t)

	lock1 := NewLock(client)
	lock2 := NewLock(client)

	assert.NotEmpty(t, lock1.OwnerID())
	assert.NotEqual(t, lock1.OwnerID(), lock2.OwnerID())
}

func TestLock_AcquireExclusive(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	lock1 := NewLock(client)
	lock2 := NewLock(client)

	acquired, err := lock1.Acquire(ctx, "token-refresh", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = lock2.Acquire(ctx, "token-refresh", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, acquired)

	acquired, err = lock1.Acquire(ctx, "token-refresh", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, acquired, "lock is not reentrant")

	value, err := mr.Get("xpost:lock:token-refresh")
	require.NoError(t, err)
	assert.Equal(t, lock1.OwnerID(), value)
	assert.Equal(t, 10*time.Second, mr.TTL("xpost:lock:token-refresh"))
}

func TestLock_ExpiresAfterTTL(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	lock1 := NewLock(client)
	lock2 := NewLock(client)

	_, err := lock1.Acquire(ctx, "flow-sweep", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	acquired, err := lock2.Acquire(ctx, "flow-sweep", time.Second)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestLock_Release(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()
	lock := NewLock(client)

	_, err := lock.Acquire(ctx, "token-refresh", 10*time.Second)
	require.NoError(t, err)
	require.NoError(t, lock.Release(ctx, "token-refresh"))

	acquired, err := lock.Acquire(ctx, "token-refresh", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, acquired, "lock can be taken again after release")
}

func TestLock_ReleaseNotHeld(t *testing.T) {
	client, _ := setupTestRedis(t)
	assert.NoError(t, NewLock(client).Release(context.Background(), "nothing"))
}

func TestLock_ReleaseByDifferentOwner(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	lock1 := NewLock(client)
	lock2 := NewLock(client)

	_, err := lock1.Acquire(ctx, "token-refresh", 10*time.Second)
	require.NoError(t, err)
	require.NoError(t, lock2.Release(ctx, "token-refresh"))

	acquired, err := lock2.Acquire(ctx, "token-refresh", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, acquired, "foreign release must not free the lock")
}

func TestLock_Ping(t *testing.T) {
	client, mr := setupTestRedis(t)
	lock := NewLock(client)

	assert.NoError(t, lock.Ping(context.Background()))
	mr.Close()
	assert.Error(t, lock.Ping(context.Background()))
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer client.Close()

	_, err = Connect(context.Background(), "not-a-url")
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "parse redis url"))
}
