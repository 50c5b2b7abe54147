// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package lock

// HeldKeys reports how many keys a Local locker is tracking.
func HeldKeys(l *Local) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}

var RenewInterval = renewInterval
