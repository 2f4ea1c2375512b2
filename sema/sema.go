// Package sema provides mutual exclusion locks that can give up waiting.
//
// Both locks are backed by a weighted semaphore and serve waiters in FIFO
// order: a writer waiting on an RWMutex holds back readers that arrive after
// it.
package sema

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// The weight of an RWMutex. A writer takes all of it, a reader takes one.
const maxReaders = 1 << 30

// A Mutex is a mutual exclusion lock with context-bounded acquisition.
//
// The zero value is not usable; construct with NewMutex.
type Mutex struct {
	sem *semaphore.Weighted
}

// Constructs a new, unlocked mutex.
func NewMutex() *Mutex {
	return &Mutex{sem: semaphore.NewWeighted(1)}
}

// Blocks until the mutex is free, then locks it.
func (m *Mutex) Lock() {
	mustAcquire(m.sem, 1)
}

// Locks the mutex if it is free and nobody is waiting for it.
func (m *Mutex) TryLock() bool {
	return m.sem.TryAcquire(1)
}

// Locks the mutex, or returns ctx.Err() if ctx is done first. A context that
// is already done never acquires the lock.
func (m *Mutex) LockContext(ctx context.Context) error {
	return m.sem.Acquire(ctx, 1)
}

// Unlocks the mutex. Unlocking a mutex that is not locked panics.
func (m *Mutex) Unlock() {
	m.sem.Release(1)
}

// An RWMutex is a reader/writer lock with context-bounded acquisition in both
// modes.
type RWMutex struct {
	sem *semaphore.Weighted
}

// Constructs a new, unlocked reader/writer mutex.
func NewRWMutex() *RWMutex {
	return &RWMutex{sem: semaphore.NewWeighted(maxReaders)}
}

// Locks for writing.
func (rw *RWMutex) Lock() {
	mustAcquire(rw.sem, maxReaders)
}

func (rw *RWMutex) TryLock() bool {
	return rw.sem.TryAcquire(maxReaders)
}

func (rw *RWMutex) LockContext(ctx context.Context) error {
	return rw.sem.Acquire(ctx, maxReaders)
}

func (rw *RWMutex) Unlock() {
	rw.sem.Release(maxReaders)
}

// Locks for reading.
func (rw *RWMutex) RLock() {
	mustAcquire(rw.sem, 1)
}

func (rw *RWMutex) TryRLock() bool {
	return rw.sem.TryAcquire(1)
}

func (rw *RWMutex) RLockContext(ctx context.Context) error {
	return rw.sem.Acquire(ctx, 1)
}

func (rw *RWMutex) RUnlock() {
	rw.sem.Release(1)
}

// Acquires n units without a deadline. Acquire can only fail when its context
// is done, so a failure here means the semaphore itself is broken.
func mustAcquire(sem *semaphore.Weighted, n int64) {
	if err := sem.Acquire(context.Background(), n); err != nil {
		panic(fmt.Sprintf("sema: acquire without deadline failed: %v", err))
	}
}
