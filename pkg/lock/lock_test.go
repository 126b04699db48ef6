package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mcclellann/jdaLoan/pkg/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseMutualExclusion has n goroutines increment a counter under the
// same key and checks no two were ever inside together.
func exerciseMutualExclusion(t *testing.T, l Locker, n int) {
	t.Helper()
	var inside, maxInside, done int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "loan-1")
			if !assert.NoError(t, err) {
				return
			}
			cur := atomic.AddInt32(&inside, 1)
			for {
				old := atomic.LoadInt32(&maxInside)
				if cur <= old || atomic.CompareAndSwapInt32(&maxInside, old, cur) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			atomic.AddInt32(&done, 1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, int32(n), done)
}

func TestKeyedMutex_MutualExclusion(t *testing.T) {
	k := NewKeyedMutex()
	exerciseMutualExclusion(t, k, 20)
	assert.Equal(t, 0, k.size(), "idle keys should be dropped")
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	k := NewKeyedMutex()
	unlockA, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := k.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestKeyedMutex_ContextCancelled(t *testing.T) {
	k := NewKeyedMutex()
	unlock, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // second call is a no-op
	assert.Equal(t, 0, k.size())
}

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisLocker_MutualExclusion(t *testing.T) {
	_, client := newMiniredisClient(t)
	exerciseMutualExclusion(t, NewRedisLocker(client, 5*time.Second), 5)
}

func TestRedisLocker_ReleaseDeletesKey(t *testing.T) {
	mr, client := newMiniredisClient(t)
	l := NewRedisLocker(client, 5*time.Second)

	unlock, err := l.Lock(context.Background(), "loan-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists(keyPrefix+"loan-1"))

	unlock()
	assert.False(t, mr.Exists(keyPrefix+"loan-1"))
}

func TestRedisLocker_DoesNotReleaseForeignLease(t *testing.T) {
	mr, client := newMiniredisClient(t)
	l := NewRedisLocker(client, time.Second)

	unlock, err := l.Lock(context.Background(), "loan-1")
	require.NoError(t, err)

	// Lease expires and another replica takes it over.
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set(keyPrefix+"loan-1", "other-token"))

	unlock()
	val, err := mr.Get(keyPrefix + "loan-1")
	require.NoError(t, err)
	assert.Equal(t, "other-token", val)
}

func TestRedisLocker_RenewsHeldLease(t *testing.T) {
	mr, client := newMiniredisClient(t)
	l := NewRedisLocker(client, 300*time.Millisecond)

	unlock, err := l.Lock(context.Background(), "loan-1")
	require.NoError(t, err)

	// Let twice the ttl pass on the server while the lease is held.
	for i := 0; i < 12; i++ {
		time.Sleep(50 * time.Millisecond)
		mr.FastForward(50 * time.Millisecond)
	}
	assert.True(t, mr.Exists(keyPrefix+"loan-1"), "held lease must not expire")

	unlock()
	assert.False(t, mr.Exists(keyPrefix+"loan-1"))
}

func TestRedisLocker_ContextCancelled(t *testing.T) {
	_, client := newMiniredisClient(t)
	l := NewRedisLocker(client, 5*time.Second)

	unlock, err := l.Lock(context.Background(), "loan-1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "loan-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()

	client, err := Connect(context.Background(), config.RedisConfig{Addr: addr})
	require.NoError(t, err)
	client.Close()

	mr.Close()
	_, err = Connect(context.Background(), config.RedisConfig{Addr: addr})
	assert.Error(t, err)
}
