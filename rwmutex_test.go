package lockbox_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/newgrp/lockbox"
)

func TestRWMutexLockForRead(t *testing.T) {
	rw := lockbox.NewRWMutex(0)

	g := rw.RLock()
	defer g.Unlock()
	require.Equal(t, 0, g.Get())
}

func TestRWMutexMultipleReaders(t *testing.T) {
	rw := lockbox.NewRWMutex("shared")

	g1 := rw.RLock()
	defer g1.Unlock()
	g2, ok := rw.TryRLock()
	require.True(t, ok)
	defer g2.Unlock()

	require.Equal(t, g1.Get(), g2.Get())
}

func TestRWMutexConcurrentReaders(t *testing.T) {
	const readers = 8
	rw := lockbox.NewRWMutex(5)

	// Every reader holds its guard until all of them have acquired one, so
	// this only finishes if the read guards coexist.
	var acquired, wg sync.WaitGroup
	acquired.Add(readers)
	values := make([]int, readers)
	for i := range readers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g := rw.RLock()
			defer g.Unlock()
			acquired.Done()
			acquired.Wait()
			values[i] = g.Get()
		}()
	}
	wg.Wait()

	for _, v := range values {
		require.Equal(t, 5, v)
	}
}

func TestRWMutexTryWriteWhileWriting(t *testing.T) {
	rw := lockbox.NewRWMutex(0)

	g := rw.Lock()
	defer g.Unlock()

	_, ok := rw.TryLock()
	require.False(t, ok)
}

func TestRWMutexTryWriteWhileReading(t *testing.T) {
	rw := lockbox.NewRWMutex(0)

	g := rw.RLock()
	_, ok := rw.TryLock()
	require.False(t, ok)
	g.Unlock()

	w, ok := rw.TryLock()
	require.True(t, ok)
	w.Unlock()
}

func TestRWMutexTryReadWhileWriting(t *testing.T) {
	rw := lockbox.NewRWMutex(0)

	g := rw.Lock()
	_, ok := rw.TryRLock()
	require.False(t, ok)
	g.Unlock()

	r, ok := rw.TryRLock()
	require.True(t, ok)
	r.Unlock()
}

func TestRWMutexWriteVisibleToReaders(t *testing.T) {
	rw := lockbox.NewRWMutex(map[string]int{})

	rw.WithWrite(func(g *lockbox.Guard[map[string]int]) {
		(*g.Ptr())["a"] = 1
	})

	rw.WithRead(func(g *lockbox.ReadGuard[map[string]int]) {
		require.Equal(t, 1, g.Get()["a"])
	})
}

func TestRWMutexNoLostUpdates(t *testing.T) {
	const workers = 32

	for name, rw := range map[string]interface {
		Lock() *lockbox.Guard[int]
		RLock() *lockbox.ReadGuard[int]
	}{
		"sema": lockbox.NewRWMutex(0),
		"sync": lockbox.NewSyncRWMutex(0),
	} {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for range workers {
				wg.Add(2)
				go func() {
					defer wg.Done()
					g := rw.Lock()
					defer g.Unlock()
					*g.Ptr()++
				}()
				go func() {
					defer wg.Done()
					g := rw.RLock()
					defer g.Unlock()
					_ = g.Get()
				}()
			}
			wg.Wait()

			g := rw.RLock()
			defer g.Unlock()
			require.Equal(t, workers, g.Get())
		})
	}
}

func TestReadGuardApplyAndUnlock(t *testing.T) {
	rw := lockbox.NewRWMutex(3)

	sum := 0
	add := func(g *lockbox.ReadGuard[int]) { sum += g.Get() }

	g := rw.RLock()
	g.Apply(add).Apply(add)
	require.Equal(t, 6, sum)

	_, ok := rw.TryLock()
	require.False(t, ok)

	g.Unlock()
	g.Unlock()
	require.PanicsWithValue(t, lockbox.ErrReleased, func() { g.Get() })

	w, ok := rw.TryLock()
	require.True(t, ok)
	w.Unlock()
}

func TestTimedReadAcquisition(t *testing.T) {
	rw := lockbox.NewRWMutex(1)

	w := rw.Lock()
	_, ok := lockbox.TryRLockFor(rw, 20*time.Millisecond)
	require.False(t, ok)
	_, ok = lockbox.TryRLockUntil(rw, time.Now().Add(20*time.Millisecond))
	require.False(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := lockbox.RLockContext(ctx, rw)
	require.ErrorIs(t, err, lockbox.ErrTimeout)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	go func() {
		time.Sleep(10 * time.Millisecond)
		w.Unlock()
	}()

	r, ok := lockbox.TryRLockFor(rw, 5*time.Second)
	require.True(t, ok)
	defer r.Unlock()
	require.Equal(t, 1, r.Get())

	r2, ok := lockbox.TryRLockUntil(rw, time.Now().Add(time.Second))
	require.True(t, ok)
	r2.Unlock()
}

func TestTimedWriteAcquisition(t *testing.T) {
	rw := lockbox.NewRWMutex(1)

	r := rw.RLock()
	_, ok := lockbox.TryWLockFor(rw, 20*time.Millisecond)
	require.False(t, ok)
	_, ok = lockbox.TryWLockUntil(rw, time.Now().Add(20*time.Millisecond))
	require.False(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := lockbox.WLockContext(ctx, rw)
	require.ErrorIs(t, err, lockbox.ErrTimeout)

	r.Unlock()

	w, err := lockbox.WLockContext(context.Background(), rw)
	require.NoError(t, err)
	w.Set(2)
	w.Unlock()

	w, ok = lockbox.TryWLockUntil(rw, time.Now().Add(time.Second))
	require.True(t, ok)
	defer w.Unlock()
	require.Equal(t, 2, w.Get())
}
