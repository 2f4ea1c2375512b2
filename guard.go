package lockbox

import "sync/atomic"

// A Guard proves that the lock of the cell it came from is held exclusively,
// and gives read/write access to the cell's value until Unlock is called.
//
// Guards are created by a cell's acquisition methods and must not be copied.
// Unlock releases the lock exactly once: further calls do nothing, and any
// access to the value after the first Unlock panics.
type Guard[T any] struct {
	noCopy noCopy

	value    *T
	unlock   func()
	released atomic.Bool
}

// Acquires l, blocking if necessary, and wraps it in a guard over v.
func lockGuard[T any](l Locker, v *T) *Guard[T] {
	l.Lock()
	return adoptGuard(l.Unlock, v)
}

// Wraps a lock that the caller already holds. unlock must release it.
func adoptGuard[T any](unlock func(), v *T) *Guard[T] {
	return &Guard[T]{value: v, unlock: unlock}
}

// Returns a copy of the protected value.
func (g *Guard[T]) Get() T {
	return *g.Ptr()
}

// Replaces the protected value.
func (g *Guard[T]) Set(value T) {
	*g.Ptr() = value
}

// Returns a pointer to the protected value.
//
// The pointer is only valid until Unlock. Retaining it past that point defeats
// the purpose of the cell.
func (g *Guard[T]) Ptr() *T {
	if g.released.Load() {
		panic(ErrReleased)
	}
	return g.value
}

// Calls f with g, then returns g so that calls can be chained within the same
// critical section. Apply does not change the state of the lock.
func (g *Guard[T]) Apply(f func(*Guard[T])) *Guard[T] {
	f(g)
	return g
}

// Releases the lock. Only the first call has an effect.
func (g *Guard[T]) Unlock() {
	if g.released.CompareAndSwap(false, true) {
		g.unlock()
	}
}

// A ReadGuard proves that the lock of an RWMutex is held in shared mode. Any
// number of read guards may be alive at once, but never alongside a Guard for
// the same cell.
//
// A ReadGuard only hands out copies of the value. If T contains pointers, maps
// or slices, the memory they refer to must still be treated as read-only.
type ReadGuard[T any] struct {
	noCopy noCopy

	value    *T
	unlock   func()
	released atomic.Bool
}

// Acquires l in shared mode and wraps it in a read guard over v.
func rlockGuard[T any](l RWLocker, v *T) *ReadGuard[T] {
	l.RLock()
	return adoptReadGuard(l.RUnlock, v)
}

func adoptReadGuard[T any](unlock func(), v *T) *ReadGuard[T] {
	return &ReadGuard[T]{value: v, unlock: unlock}
}

// Returns a copy of the protected value.
func (g *ReadGuard[T]) Get() T {
	if g.released.Load() {
		panic(ErrReleased)
	}
	return *g.value
}

// Calls f with g, then returns g. Apply does not change the state of the lock.
func (g *ReadGuard[T]) Apply(f func(*ReadGuard[T])) *ReadGuard[T] {
	f(g)
	return g
}

// Releases the shared lock. Only the first call has an effect.
func (g *ReadGuard[T]) Unlock() {
	if g.released.CompareAndSwap(false, true) {
		g.unlock()
	}
}

// Makes `go vet` report guards that are copied by value.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
