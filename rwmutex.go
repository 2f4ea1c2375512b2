package lockbox

import (
	"sync"

	"github.com/newgrp/lockbox/sema"
)

// An RWMutex is a Mutex whose value can also be read by any number of
// goroutines at once. Write guards exclude every other guard; read guards only
// exclude write guards.
//
// Which waiter goes next, reader or writer, is decided by the lock L.
type RWMutex[T any, L RWLocker] struct {
	m Mutex[T, L]
}

// Constructs a new reader/writer cell holding value, protected by a lock that
// supports bounded waits in both modes.
func NewRWMutex[T any](value T) *RWMutex[T, *sema.RWMutex] {
	return NewRWMutexWith(sema.NewRWMutex(), value)
}

// Constructs a new reader/writer cell holding value, protected by a
// sync.RWMutex. The resulting cell has no timed operations.
func NewSyncRWMutex[T any](value T) *RWMutex[T, *sync.RWMutex] {
	return NewRWMutexWith(&sync.RWMutex{}, value)
}

// Constructs a new reader/writer cell holding value, protected by lock.
func NewRWMutexWith[T any, L RWLocker](lock L, value T) *RWMutex[T, L] {
	return &RWMutex[T, L]{m: Mutex[T, L]{lock: lock, value: value}}
}

// Blocks until no writer holds the lock, then returns a read guard.
func (rw *RWMutex[T, L]) RLock() *ReadGuard[T] {
	return rlockGuard(rw.m.lock, &rw.m.value)
}

// Acquires a read guard if no writer holds the lock. Never blocks.
func (rw *RWMutex[T, L]) TryRLock() (*ReadGuard[T], bool) {
	if !rw.m.lock.TryRLock() {
		return nil, false
	}
	return adoptReadGuard(rw.m.lock.RUnlock, &rw.m.value), true
}

// Blocks until no reader or writer holds the lock, then returns a write guard.
func (rw *RWMutex[T, L]) Lock() *Guard[T] {
	return rw.m.Lock()
}

// Acquires a write guard if nobody holds the lock. Never blocks.
func (rw *RWMutex[T, L]) TryLock() (*Guard[T], bool) {
	return rw.m.TryLock()
}

// Runs f while holding the lock in shared mode.
func (rw *RWMutex[T, L]) WithRead(f func(*ReadGuard[T])) {
	g := rw.RLock()
	defer g.Unlock()

	f(g)
}

// Runs f while holding the lock exclusively.
func (rw *RWMutex[T, L]) WithWrite(f func(*Guard[T])) {
	rw.m.With(f)
}
