// Package sync provides synchronization primitives that work without a
// scheduler.
package sync

import "sync/atomic"

var (
	// relaxFn is invoked between acquisition attempts. There is no
	// scheduler to yield to, so it is a no-op outside of tests.
	relaxFn = func() {}
)

// Spinlock implements a lock where each hart trying to acquire it busy-waits
// till the lock becomes available. The zero value is an unlocked spinlock.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the current hart. Any
// attempt to re-acquire a lock already held by the current hart will cause a
// deadlock.
func (l *Spinlock) Acquire() {
	for !atomic.CompareAndSwapUint32(&l.state, 0, 1) {
		// Spin on a plain load so that contended harts do not keep
		// bouncing the cache line with failed CAS attempts.
		for atomic.LoadUint32(&l.state) != 0 {
			relaxFn()
		}
	}
}

// TryToAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.CompareAndSwapUint32(&l.state, 0, 1)
}

// Release relinquishes a held lock allowing other harts to acquire it. Calling
// Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

// Held returns true if the lock is currently held by any hart.
func (l *Spinlock) Held() bool {
	return atomic.LoadUint32(&l.state) != 0
}
