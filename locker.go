// Package lockbox binds a value to the lock that protects it.
//
// The value held by a cell can only be reached through a guard, and a guard can
// only be obtained by acquiring the cell's lock. Releasing the guard releases
// the lock.
//
//	counter := lockbox.NewMutex(0)
//
//	g := counter.Lock()
//	defer g.Unlock()
//	*g.Ptr()++
package lockbox

import (
	"context"
	"sync"

	"github.com/newgrp/lockbox/sema"
)

// Locker is the minimal lock capability a cell needs.
type Locker interface {
	Lock()
	// Reports whether the lock was acquired. Never blocks.
	TryLock() bool
	Unlock()
}

// TimedLocker is a Locker that can give up waiting.
//
// LockContext acquires the lock, or returns a non-nil error once ctx is done.
// The lock is held if and only if the returned error is nil.
type TimedLocker interface {
	Locker
	LockContext(ctx context.Context) error
}

// RWLocker is a Locker that also has a shared (read) mode.
type RWLocker interface {
	Locker
	RLock()
	TryRLock() bool
	RUnlock()
}

// TimedRWLocker is an RWLocker whose both modes can give up waiting.
type TimedRWLocker interface {
	RWLocker
	LockContext(ctx context.Context) error
	RLockContext(ctx context.Context) error
}

var (
	_ Locker        = (*sync.Mutex)(nil)
	_ RWLocker      = (*sync.RWMutex)(nil)
	_ TimedLocker   = (*sema.Mutex)(nil)
	_ TimedRWLocker = (*sema.RWMutex)(nil)
)
