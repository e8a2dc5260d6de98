package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLocker_AcquireAndRelease(t *testing.T) {
	mr, client := newTestClient(t)
	locker := NewRedisLocker(client, 10*time.Second)
	ctx := context.Background()
	key := FileLockKey("f1")

	release, ok, err := locker.Acquire(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists(key))

	_, ok, err = locker.Acquire(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while held")

	release()
	assert.False(t, mr.Exists(key))

	release2, ok, err := locker.Acquire(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	release2()
}

func TestRedisLocker_ExpiredLockIsNotReleasedByOldHolder(t *testing.T) {
	mr, client := newTestClient(t)
	locker := NewRedisLocker(client, time.Second)
	ctx := context.Background()
	key := FileLockKey("f2")

	release, ok, err := locker.Acquire(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	_, ok, err = locker.Acquire(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)

	// stale holder must not delete the new owner's lock
	release()
	assert.True(t, mr.Exists(key))
}

func TestRedisLocker_DefaultTTL(t *testing.T) {
	_, client := newTestClient(t)
	locker := NewRedisLocker(client, 0)
	assert.Equal(t, 30*time.Second, locker.ttl)
}

func TestFileLockKey(t *testing.T) {
	assert.Equal(t, "musync:lock:file:abc", FileLockKey("abc"))
}
