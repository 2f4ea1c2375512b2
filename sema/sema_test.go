package sema_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/newgrp/lockbox/sema"
)

func TestMutexTryLock(t *testing.T) {
	m := sema.NewMutex()

	require.True(t, m.TryLock())
	require.False(t, m.TryLock())

	m.Unlock()
	require.True(t, m.TryLock())
	m.Unlock()
}

func TestMutexLockContextTimesOut(t *testing.T) {
	m := sema.NewMutex()
	m.Lock()
	defer m.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := m.LockContext(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMutexLockContextWaitsForUnlock(t *testing.T) {
	m := sema.NewMutex()
	m.Lock()

	go func() {
		time.Sleep(10 * time.Millisecond)
		m.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, m.LockContext(ctx))
	m.Unlock()
}

func TestMutexUnlockUnlockedPanics(t *testing.T) {
	m := sema.NewMutex()
	require.Panics(t, m.Unlock)
}

func TestRWMutexReadersShare(t *testing.T) {
	rw := sema.NewRWMutex()

	require.True(t, rw.TryRLock())
	require.True(t, rw.TryRLock())
	require.False(t, rw.TryLock())

	rw.RUnlock()
	require.False(t, rw.TryLock())
	rw.RUnlock()

	require.True(t, rw.TryLock())
	require.False(t, rw.TryRLock())
	rw.Unlock()
}

func TestRWMutexWriterExcludesReaders(t *testing.T) {
	rw := sema.NewRWMutex()
	rw.Lock()
	defer rw.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, rw.RLockContext(ctx), context.DeadlineExceeded)
}

func TestRWMutexWaitingWriterBlocksNewReaders(t *testing.T) {
	rw := sema.NewRWMutex()
	rw.RLock()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		rw.Lock()
		rw.Unlock()
	}()

	// Once the writer is queued behind the reader, new readers are turned away.
	require.Eventually(t, func() bool {
		if rw.TryRLock() {
			rw.RUnlock()
			return false
		}
		return true
	}, time.Second, time.Millisecond)

	rw.RUnlock()
	wg.Wait()

	require.True(t, rw.TryRLock())
	rw.RUnlock()
}
