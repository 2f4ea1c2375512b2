package lockbox

import (
	"context"
	"fmt"
	"time"
)

// Bounded acquisition needs a lock that can stop waiting, so these are
// functions constrained on TimedLocker and TimedRWLocker rather than methods:
// calling them on a cell built over a sync.Mutex does not compile.

// Acquires the lock of m, giving up once ctx is done. On failure the returned
// error wraps both ErrTimeout and ctx.Err().
func LockContext[T any, L TimedLocker](ctx context.Context, m *Mutex[T, L]) (*Guard[T], error) {
	if err := m.lock.LockContext(ctx); err != nil {
		return nil, timeoutError(err)
	}
	return adoptGuard(m.lock.Unlock, &m.value), nil
}

// Acquires the lock of m, waiting at most d. A non-positive d behaves like
// TryLock.
func TryLockFor[T any, L TimedLocker](m *Mutex[T, L], d time.Duration) (*Guard[T], bool) {
	if d <= 0 {
		return m.TryLock()
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	g, err := LockContext(ctx, m)
	return g, err == nil
}

// Acquires the lock of m, waiting no later than deadline. A deadline in the
// past behaves like TryLock.
func TryLockUntil[T any, L TimedLocker](m *Mutex[T, L], deadline time.Time) (*Guard[T], bool) {
	return TryLockFor(m, time.Until(deadline))
}

// Acquires a read guard on rw, giving up once ctx is done.
func RLockContext[T any, L TimedRWLocker](ctx context.Context, rw *RWMutex[T, L]) (*ReadGuard[T], error) {
	if err := rw.m.lock.RLockContext(ctx); err != nil {
		return nil, timeoutError(err)
	}
	return adoptReadGuard(rw.m.lock.RUnlock, &rw.m.value), nil
}

// Acquires a read guard on rw, waiting at most d.
func TryRLockFor[T any, L TimedRWLocker](rw *RWMutex[T, L], d time.Duration) (*ReadGuard[T], bool) {
	if d <= 0 {
		return rw.TryRLock()
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	g, err := RLockContext(ctx, rw)
	return g, err == nil
}

// Acquires a read guard on rw, waiting no later than deadline.
func TryRLockUntil[T any, L TimedRWLocker](rw *RWMutex[T, L], deadline time.Time) (*ReadGuard[T], bool) {
	return TryRLockFor(rw, time.Until(deadline))
}

// Acquires a write guard on rw, giving up once ctx is done.
func WLockContext[T any, L TimedRWLocker](ctx context.Context, rw *RWMutex[T, L]) (*Guard[T], error) {
	return LockContext(ctx, &rw.m)
}

// Acquires a write guard on rw, waiting at most d.
func TryWLockFor[T any, L TimedRWLocker](rw *RWMutex[T, L], d time.Duration) (*Guard[T], bool) {
	return TryLockFor(&rw.m, d)
}

// Acquires a write guard on rw, waiting no later than deadline.
func TryWLockUntil[T any, L TimedRWLocker](rw *RWMutex[T, L], deadline time.Time) (*Guard[T], bool) {
	return TryLockUntil(&rw.m, deadline)
}

func timeoutError(err error) error {
	return fmt.Errorf("%w: %w", ErrTimeout, err)
}
