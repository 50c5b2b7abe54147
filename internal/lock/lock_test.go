// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package lock_test

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bayleaf-health/bayleaf-agents/internal/lock"
	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "u1|whatsapp|c-9", lock.Key("u1", "whatsapp", "c-9"))
}

// testLocker runs the shared contract against any Locker.
func testLocker(t *testing.T, l lock.Locker, key string) {
	t.Helper()
	ctx := context.Background()

	t.Run("serializes holders", func(t *testing.T) {
		var active, maxActive atomic.Int32
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				release, err := l.Acquire(ctx, key)
				if !assert.NoError(t, err) {
					return
				}
				n := active.Add(1)
				for {
					m := maxActive.Load()
					if n <= m || maxActive.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				active.Add(-1)
				assert.NoError(t, release(ctx))
			}()
		}
		wg.Wait()
		assert.EqualValues(t, 1, maxActive.Load())
	})

	t.Run("waiter gives up when context ends", func(t *testing.T) {
		release, err := l.Acquire(ctx, key)
		require.NoError(t, err)

		waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()
		_, err = l.Acquire(waitCtx, key)
		require.Error(t, err)
		assert.True(t, bayerr.HasCode(err, bayerr.CodeLockAcquireTimeout))

		require.NoError(t, release(ctx))
		require.NoError(t, release(ctx))

		again, err := l.Acquire(ctx, key)
		require.NoError(t, err)
		require.NoError(t, again(ctx))
	})

	t.Run("different keys do not block", func(t *testing.T) {
		a, err := l.Acquire(ctx, key+"-a")
		require.NoError(t, err)
		defer func() { _ = a(ctx) }()

		waitCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		b, err := l.Acquire(waitCtx, key+"-b")
		require.NoError(t, err)
		require.NoError(t, b(ctx))
	})
}

func TestLocal(t *testing.T) {
	l := lock.NewLocal()
	testLocker(t, l, "u1|bayleaf_app|c1")
	assert.Zero(t, lock.HeldKeys(l))
	require.NoError(t, l.Close())
}

func TestRedis(t *testing.T) {
	url := os.Getenv("BAYLEAF_TEST_REDIS_URL")
	if url == "" {
		t.Skip("BAYLEAF_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	l, err := lock.OpenRedis(ctx, url, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	testLocker(t, l, "test|bayleaf_app|"+time.Now().Format(time.RFC3339Nano))
}

func TestRedisRenewsWhileHeld(t *testing.T) {
	url := os.Getenv("BAYLEAF_TEST_REDIS_URL")
	if url == "" {
		t.Skip("BAYLEAF_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	l, err := lock.OpenRedis(ctx, url, 300*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	key := "renew|bayleaf_app|" + time.Now().Format(time.RFC3339Nano)
	release, err := l.Acquire(ctx, key)
	require.NoError(t, err)

	// Several TTLs pass while the holder is still working.
	time.Sleep(time.Second)

	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(waitCtx, key)
	require.Error(t, err)
	assert.True(t, bayerr.HasCode(err, bayerr.CodeLockAcquireTimeout))

	require.NoError(t, release(ctx))
	again, err := l.Acquire(ctx, key)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestRenewInterval(t *testing.T) {
	assert.Equal(t, 40*time.Second, lock.RenewInterval(2*time.Minute))
	assert.Equal(t, 10*time.Millisecond, lock.RenewInterval(time.Millisecond))
}

func TestOpenRedisRejectsBadURL(t *testing.T) {
	_, err := lock.OpenRedis(context.Background(), "not a url", time.Second)
	require.Error(t, err)
	assert.True(t, bayerr.HasCode(err, bayerr.CodeConfigValidateInvalidValue))
}
