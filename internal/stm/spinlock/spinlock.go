// Package spinlock implements the single-bit test-and-set lock used
// throughout the DV-STM region: the segment-id stack top and every
// per-word access-set entry are guarded by one of these.
//
// A spin lock is appropriate here because every critical section it
// guards is a handful of memory accesses (a stack pop, an access-set
// bitmap update) — short enough that parking a goroutine would cost more
// than busy-waiting. There is no fairness guarantee; under heavy
// contention a late-arriving spinner may win repeatedly. The algorithm's
// own progress guarantee comes from the epoch batcher, not from this
// primitive.
package spinlock

import "sync/atomic"

// Lock is a single-slot test-and-set spin lock.
//
// Thread Safety: Acquire/TryAcquire/Release are safe for concurrent calls. The zero value
// is an unlocked Lock, ready to use.
type Lock struct {
	state atomic.Bool
}

// Acquire spins until the lock is obtained.
func (l *Lock) Acquire() {
	for !l.state.CompareAndSwap(false, true) {
		// busy-wait: held intervals are a few memory accesses long.
	}
}

// TryAcquire attempts to obtain the lock without spinning.
//
// Returns true if the lock was obtained.
func (l *Lock) TryAcquire() bool {
	return l.state.CompareAndSwap(false, true)
}

// Release clears the lock.
//
// The caller must hold the lock; releasing an unlocked Lock is a caller
// error (the same contract as sync.Mutex.Unlock).
func (l *Lock) Release() {
	l.state.Store(false)
}
