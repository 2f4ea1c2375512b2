package lockbox

import (
	"sync"

	"github.com/newgrp/lockbox/sema"
)

// A Mutex owns a value of type T and the lock L that protects it. The value
// can only be reached through a Guard, and at most one Guard per Mutex is alive
// at any time.
//
// A Mutex must not be copied after first use, and must not be locked again by
// a goroutine that already holds one of its guards.
type Mutex[T any, L Locker] struct {
	lock  L
	value T
}

// Constructs a new mutex cell holding value, protected by a lock that supports
// bounded waits (see TryLockFor, TryLockUntil and LockContext).
func NewMutex[T any](value T) *Mutex[T, *sema.Mutex] {
	return NewMutexWith(sema.NewMutex(), value)
}

// Constructs a new mutex cell holding value, protected by a sync.Mutex.
//
// A sync.Mutex cannot give up waiting, so the resulting cell only supports Lock
// and TryLock.
func NewSyncMutex[T any](value T) *Mutex[T, *sync.Mutex] {
	return NewMutexWith(&sync.Mutex{}, value)
}

// Constructs a new mutex cell holding value, protected by lock. The cell takes
// ownership of lock, which must be unlocked and not used elsewhere.
func NewMutexWith[T any, L Locker](lock L, value T) *Mutex[T, L] {
	return &Mutex[T, L]{lock: lock, value: value}
}

// Blocks until the lock is free, then returns a guard holding it.
func (m *Mutex[T, L]) Lock() *Guard[T] {
	return lockGuard(m.lock, &m.value)
}

// Acquires the lock if it is free. Never blocks.
func (m *Mutex[T, L]) TryLock() (*Guard[T], bool) {
	if !m.lock.TryLock() {
		return nil, false
	}
	return adoptGuard(m.lock.Unlock, &m.value), true
}

// Runs f while holding the lock. The lock is released when f returns or
// panics.
func (m *Mutex[T, L]) With(f func(*Guard[T])) {
	g := m.Lock()
	defer g.Unlock()

	f(g)
}
