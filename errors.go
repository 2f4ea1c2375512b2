package lockbox

import "errors"

var (
	// Returned, wrapped together with the context's error, when a bounded
	// acquisition gives up.
	ErrTimeout = errors.New("lockbox: lock acquisition timed out")

	// The panic value for accessing a value through a released guard.
	ErrReleased = errors.New("lockbox: guard used after unlock")
)
