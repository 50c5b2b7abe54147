// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
)

const (
	// DefaultTTL bounds how long a crashed holder can block a conversation.
	// A live holder renews the key every third of the TTL until it releases.
	DefaultTTL = 2 * time.Minute

	keyPrefix    = "bayleaf:lock:"
	pollInterval = 50 * time.Millisecond
)

// releaseScript deletes the key only while it still holds our token, so an
// expired holder cannot release a lock someone else has since taken.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript pushes the expiry forward only while the key holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis is a Locker shared by every replica that talks to the same server.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Locker = (*Redis)(nil)

// OpenRedis connects to the server at url (redis://...) and pings it.
func OpenRedis(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, bayerr.Wrap(err, bayerr.CodeConfigValidateInvalidValue, "parsing lock.redis_url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, bayerr.Wrap(err, bayerr.CodeLockBackendFailure, "connecting to redis")
	}
	return NewRedis(client, ttl), nil
}

// NewRedis wraps an existing client. A non-positive ttl uses DefaultTTL.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Acquire(ctx context.Context, key string) (Release, error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, bayerr.Wrap(err, bayerr.CodeLockBackendFailure, "acquiring conversation lock")
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, bayerr.Wrap(ctx.Err(), bayerr.CodeLockAcquireTimeout, "waiting for conversation lock")
		case <-ticker.C:
		}
	}

	stop := make(chan struct{})
	stopped := make(chan struct{})
	go r.keepAlive(redisKey, token, stop, stopped)

	var once sync.Once
	return func(ctx context.Context) error {
		var err error
		once.Do(func() {
			close(stop)
			<-stopped
			if e := releaseScript.Run(ctx, r.client, []string{redisKey}, token).Err(); e != nil {
				err = bayerr.Wrap(e, bayerr.CodeLockBackendFailure, "releasing conversation lock")
			}
		})
		return err
	}, nil
}

// keepAlive renews the key until stop closes or the key no longer holds
// token. A failed renewal is retried on the next tick.
func (r *Redis) keepAlive(key, token string, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	interval := renewInterval(r.ttl)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), interval)
		n, err := extendScript.Run(ctx, r.client, []string{key}, token, r.ttl.Milliseconds()).Int()
		cancel()
		if err == nil && n == 0 {
			return
		}
	}
}

func renewInterval(ttl time.Duration) time.Duration {
	return max(ttl/3, 10*time.Millisecond)
}

func (r *Redis) Close() error { return r.client.Close() }
