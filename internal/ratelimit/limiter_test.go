package ratelimit_test

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/pitchjudge/internal/ratelimit"
	"github.com/okian/pitchjudge/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newRedisStore(t *testing.T) (*ratelimit.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return ratelimit.NewRedisStore(client), mr
}

// stores runs fn against every Store implementation.
func stores(t *testing.T, fn func(t *testing.T, store ratelimit.Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, ratelimit.NewMemoryStore()) })
	t.Run("redis", func(t *testing.T) {
		store, _ := newRedisStore(t)
		fn(t, store)
	})
}

func TestLimiter_SlidingWindow(t *testing.T) {
	stores(t, func(t *testing.T, store ratelimit.Store) {
		ctx := context.Background()
		clock := newFakeClock()
		l, err := ratelimit.New(store, ratelimit.WithClock(clock.Now))
		require.NoError(t, err)

		for i := 0; i < ratelimit.DefaultLimit; i++ {
			assert.True(t, l.Admit(ctx, ratelimit.DefaultKey), "admit %d", i+1)
			clock.Advance(time.Second)
		}
		assert.False(t, l.Admit(ctx, ratelimit.DefaultKey), "11th call within the window must be denied")

		// The first entry was recorded 10s ago, so it leaves the window in 50s.
		assert.Equal(t, 50*time.Second, l.WaitTime(ctx, ratelimit.DefaultKey))

		clock.Advance(50 * time.Second)
		assert.True(t, l.Admit(ctx, ratelimit.DefaultKey), "oldest entry has left the window")
		assert.False(t, l.Admit(ctx, ratelimit.DefaultKey))

		clock.Advance(ratelimit.DefaultWindow)
		assert.True(t, l.Admit(ctx, ratelimit.DefaultKey), "whole window elapsed")
	})
}

func TestLimiter_DeniedCallsAreNotRecorded(t *testing.T) {
	stores(t, func(t *testing.T, store ratelimit.Store) {
		ctx := context.Background()
		clock := newFakeClock()
		l, err := ratelimit.New(store,
			ratelimit.WithClock(clock.Now),
			ratelimit.WithWindows(ratelimit.Window{Name: "minute", Size: time.Minute, Limit: 2}),
		)
		require.NoError(t, err)

		require.True(t, l.Admit(ctx, "svc"))
		require.True(t, l.Admit(ctx, "svc"))
		for i := 0; i < 5; i++ {
			require.False(t, l.Admit(ctx, "svc"))
		}

		usage, err := l.Usage(ctx, "svc")
		require.NoError(t, err)
		require.Len(t, usage, 1)
		assert.Equal(t, 2, usage[0].Current)
		assert.Equal(t, 0, usage[0].Remaining)
		assert.Equal(t, time.Minute, usage[0].ResetIn)
	})
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	stores(t, func(t *testing.T, store ratelimit.Store) {
		ctx := context.Background()
		l, err := ratelimit.New(store,
			ratelimit.WithClock(newFakeClock().Now),
			ratelimit.WithWindows(ratelimit.Window{Name: "minute", Size: time.Minute, Limit: 1}),
		)
		require.NoError(t, err)

		assert.True(t, l.Admit(ctx, "gemini"))
		assert.False(t, l.Admit(ctx, "gemini"))
		assert.True(t, l.Admit(ctx, "other"))
	})
}

func TestLimiter_WaitTimeEmpty(t *testing.T) {
	stores(t, func(t *testing.T, store ratelimit.Store) {
		l, err := ratelimit.New(store, ratelimit.WithClock(newFakeClock().Now))
		require.NoError(t, err)
		assert.Zero(t, l.WaitTime(context.Background(), "unused"))
	})
}

func TestLimiter_Reset(t *testing.T) {
	stores(t, func(t *testing.T, store ratelimit.Store) {
		ctx := context.Background()
		l, err := ratelimit.New(store,
			ratelimit.WithClock(newFakeClock().Now),
			ratelimit.WithWindows(ratelimit.Window{Name: "minute", Size: time.Minute, Limit: 1}),
		)
		require.NoError(t, err)

		require.True(t, l.Admit(ctx, "svc"))
		require.False(t, l.Admit(ctx, "svc"))
		require.NoError(t, l.Reset(ctx, "svc"))
		assert.True(t, l.Admit(ctx, "svc"))
	})
}

func TestLimiter_TieredWindows(t *testing.T) {
	stores(t, func(t *testing.T, store ratelimit.Store) {
		ctx := context.Background()
		clock := newFakeClock()
		l, err := ratelimit.New(store,
			ratelimit.WithClock(clock.Now),
			ratelimit.WithWindows(
				ratelimit.Window{Name: "minute", Size: time.Minute, Limit: 2},
				ratelimit.Window{Name: "hour", Size: time.Hour, Limit: 3},
			),
		)
		require.NoError(t, err)

		require.True(t, l.Admit(ctx, "svc"))
		require.True(t, l.Admit(ctx, "svc"))
		require.False(t, l.Admit(ctx, "svc"), "minute window full")

		clock.Advance(time.Minute)
		require.True(t, l.Admit(ctx, "svc"), "minute window drained, hour has room")

		clock.Advance(time.Minute)
		assert.False(t, l.Admit(ctx, "svc"), "hour window full even though minute has room")

		usage, err := l.Usage(ctx, "svc")
		require.NoError(t, err)
		assert.Equal(t, 0, usage[0].Current, "minute window")
		assert.Equal(t, 3, usage[1].Current, "admitted calls are recorded in every window")

		// Hour window is saturated; its oldest entry leaves 58 minutes from now.
		assert.Equal(t, 58*time.Minute, l.WaitTime(ctx, "svc"))
	})
}

func TestLimiter_ConcurrentAdmits(t *testing.T) {
	stores(t, func(t *testing.T, store ratelimit.Store) {
		ctx := context.Background()
		l, err := ratelimit.New(store, ratelimit.WithClock(newFakeClock().Now))
		require.NoError(t, err)

		var (
			wg       sync.WaitGroup
			admitted atomic.Int32
		)
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if l.Admit(ctx, ratelimit.DefaultKey) {
					admitted.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(ratelimit.DefaultLimit), admitted.Load())
	})
}

func TestLimiter_FailsOpen(t *testing.T) {
	store, mr := newRedisStore(t)
	l, err := ratelimit.New(store,
		ratelimit.WithClock(newFakeClock().Now),
		ratelimit.WithWindows(ratelimit.Window{Name: "minute", Size: time.Minute, Limit: 1}),
	)
	require.NoError(t, err)

	mr.Close()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		assert.True(t, l.Admit(ctx, "svc"), "unreachable store must admit")
	}
	assert.Zero(t, l.WaitTime(ctx, "svc"))
}

type brokenStore struct{ ratelimit.Store }

func (brokenStore) Admit(context.Context, string, []ratelimit.Window, time.Time, string) (bool, *ratelimit.Window, error) {
	return false, nil, errors.New("boom")
}

func TestLimiter_FailsOpenOnAnyStoreError(t *testing.T) {
	l, err := ratelimit.New(brokenStore{Store: ratelimit.NewMemoryStore()})
	require.NoError(t, err)
	assert.True(t, l.Admit(context.Background(), "svc"))
}

func TestLimiter_WaitForAvailability(t *testing.T) {
	ctx := context.Background()
	l, err := ratelimit.New(ratelimit.NewMemoryStore(),
		ratelimit.WithWindows(ratelimit.Window{Name: "burst", Size: 200 * time.Millisecond, Limit: 1}),
	)
	require.NoError(t, err)

	require.True(t, l.Admit(ctx, "svc"))
	ok, err := l.WaitForAvailability(ctx, "svc", 2*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.WaitForAvailability(ctx, "svc", 0)
	require.NoError(t, err)
	assert.False(t, ok, "no budget to wait")

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = l.WaitForAvailability(cctx, "svc", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_InvalidWindows(t *testing.T) {
	_, err := ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.WithWindows(ratelimit.Window{Name: "x", Size: 0, Limit: 1}))
	assert.ErrorIs(t, err, ratelimit.ErrInvalidWindow)

	_, err = ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.WithWindows(
		ratelimit.Window{Name: "x", Size: time.Second, Limit: 1},
		ratelimit.Window{Name: "x", Size: time.Minute, Limit: 1},
	))
	assert.ErrorIs(t, err, ratelimit.ErrInvalidWindow)

	assert.Len(t, ratelimit.TieredWindows(), 3)
}

func TestRedisStore_KeyLayout(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)
	l, err := ratelimit.New(store,
		ratelimit.WithClock(newFakeClock().Now),
		ratelimit.WithWindows(
			ratelimit.Window{Name: "minute", Size: time.Minute, Limit: 2},
			ratelimit.Window{Name: "hour", Size: time.Hour, Limit: 3},
		),
	)
	require.NoError(t, err)
	require.True(t, l.Admit(ctx, "svc"))

	sum := md5.Sum([]byte("svc"))
	tag := "pitchjudge:ratelimit:{" + hex.EncodeToString(sum[:]) + "}:"
	assert.ElementsMatch(t, []string{tag + "minute", tag + "hour"}, mr.Keys())
}
