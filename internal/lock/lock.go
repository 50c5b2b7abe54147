// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

// Package lock serializes turns on the same conversation.
package lock

import (
	"context"
	"strings"
	"sync"

	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
)

// Release gives a held lock back. Calling it more than once is a no-op.
type Release func(ctx context.Context) error

// Locker hands out exclusive locks by key. Acquire blocks until the lock is
// free or ctx is done.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
	Close() error
}

// Key builds the lock key for a conversation.
func Key(userID, channel, externalID string) string {
	return strings.Join([]string{userID, channel, externalID}, "|")
}

type entry struct {
	ch   chan struct{}
	refs int
}

// Local is an in-process keyed mutex. Entries are dropped once nobody holds
// or waits on them.
type Local struct {
	mu   sync.Mutex
	keys map[string]*entry
}

var _ Locker = (*Local)(nil)

// NewLocal returns an empty Local locker.
func NewLocal() *Local {
	return &Local{keys: make(map[string]*entry)}
}

func (l *Local) Acquire(ctx context.Context, key string) (Release, error) {
	l.mu.Lock()
	e, ok := l.keys[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.keys[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(key, e)
		return nil, bayerr.Wrap(ctx.Err(), bayerr.CodeLockAcquireTimeout, "waiting for conversation lock")
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-e.ch
			l.drop(key, e)
		})
		return nil
	}, nil
}

func (l *Local) drop(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.keys, key)
	}
}

func (l *Local) Close() error { return nil }
