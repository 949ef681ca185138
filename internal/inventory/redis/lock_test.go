package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-settlement/internal/domain"
	"ms-settlement/internal/logger"
)

// setupTestRedis creates a Redis client backed by miniredis, an in-memory
// Redis that doesn't require a real server.
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	require.NoError(t, client.Ping(context.Background()).Err())

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestTryLockAndUnlock(t *testing.T) {
	client, mr := setupTestRedis(t)
	locker := NewLocker(client, time.Minute, time.Second, logger.NewNop())
	ctx := context.Background()

	ok, err := locker.TryLock(ctx, "zone-1", "owner-a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("zone_lock:zone-1"))

	ok, err = locker.TryLock(ctx, "zone-1", "owner-b")
	require.NoError(t, err)
	assert.False(t, ok, "second owner must not acquire a held lock")

	// A foreign token must not release the lock.
	require.NoError(t, locker.Unlock(ctx, "zone-1", "owner-b"))
	owner, err := mr.Get("zone_lock:zone-1")
	require.NoError(t, err)
	assert.Equal(t, "owner-a", owner)

	require.NoError(t, locker.Unlock(ctx, "zone-1", "owner-a"))
	assert.False(t, mr.Exists("zone_lock:zone-1"))
}

func TestLockExpiresAfterTTL(t *testing.T) {
	client, mr := setupTestRedis(t)
	locker := NewLocker(client, 5*time.Second, time.Second, logger.NewNop())
	ctx := context.Background()

	ok, err := locker.TryLock(ctx, "zone-1", "crashed-owner")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(6 * time.Second)

	ok, err = locker.TryLock(ctx, "zone-1", "next-owner")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockTimesOutWhileHeld(t *testing.T) {
	client, _ := setupTestRedis(t)
	locker := NewLocker(client, time.Minute, 50*time.Millisecond, logger.NewNop())
	locker.Poll = 5 * time.Millisecond
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "zone-1")
	require.NoError(t, err)
	defer unlock()

	_, err = locker.Lock(ctx, "zone-1")
	assert.ErrorIs(t, err, domain.ErrLockTimeout)
}

func TestLockSerializesCriticalSection(t *testing.T) {
	client, _ := setupTestRedis(t)
	locker := NewLocker(client, time.Minute, 5*time.Second, logger.NewNop())
	locker.Poll = time.Millisecond
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, "zone-1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}
