package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"metarepo/internal/model"
)

func TestLocal_SerialisesSameKey(t *testing.T) {
	l := NewLocal(2 * time.Second)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Lock(context.Background(), "doc-1")
			require.NoError(t, err)
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, l.slots)
}

func TestLocal_IndependentKeys(t *testing.T) {
	l := NewLocal(50 * time.Millisecond)

	r1, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer r1()

	r2, err := l.Lock(context.Background(), "b")
	require.NoError(t, err)
	r2()
}

func TestLocal_TimeoutIsConflict(t *testing.T) {
	l := NewLocal(20 * time.Millisecond)

	release, err := l.Lock(context.Background(), "doc-1")
	require.NoError(t, err)

	_, err = l.Lock(context.Background(), "doc-1")
	assert.ErrorIs(t, err, model.ErrConflict)

	release()
	release()

	again, err := l.Lock(context.Background(), "doc-1")
	require.NoError(t, err)
	again()
	assert.Empty(t, l.slots)
}

func newRedisLock(t *testing.T, ttl, wait time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, "lock:", ttl, wait, zap.NewNop()), mr
}

func TestRedis_AcquireAndRelease(t *testing.T) {
	l, mr := newRedisLock(t, time.Minute, 100*time.Millisecond)

	release, err := l.Lock(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:doc-1"))
	assert.Equal(t, time.Minute, mr.TTL("lock:doc-1"))

	release()
	assert.False(t, mr.Exists("lock:doc-1"))
}

func TestRedis_HeldLockIsConflict(t *testing.T) {
	l, _ := newRedisLock(t, time.Minute, 60*time.Millisecond)

	release, err := l.Lock(context.Background(), "doc-1")
	require.NoError(t, err)
	defer release()

	_, err = l.Lock(context.Background(), "doc-1")
	assert.ErrorIs(t, err, model.ErrConflict)
}

func TestRedis_ReleaseKeepsForeignLease(t *testing.T) {
	l, mr := newRedisLock(t, time.Minute, 60*time.Millisecond)

	release, err := l.Lock(context.Background(), "doc-1")
	require.NoError(t, err)

	// Lease expired and another holder took over.
	require.NoError(t, mr.Set("lock:doc-1", "someone-else"))
	release()

	got, err := mr.Get("lock:doc-1")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedis_ServerDownIsStorage(t *testing.T) {
	l, mr := newRedisLock(t, time.Minute, 60*time.Millisecond)
	mr.Close()

	_, err := l.Lock(context.Background(), "doc-1")
	assert.ErrorIs(t, err, model.ErrStorage)
}
