// Package segalloc implements the segment-id allocator: a fixed stack of
// ids in [addr.FirstSeg, addr.MaxSeg) guarded by a spin lock, giving every
// alloc/free pair O(1) id recycling without ever growing the id space
// beyond MaxSeg.
package segalloc

import (
	"github.com/kolkov/dvstm/internal/stm/addr"
	"github.com/kolkov/dvstm/internal/stm/spinlock"
)

// Allocator hands out and reclaims segment ids in [addr.FirstSeg,
// addr.MaxSeg).
//
// Thread Safety: Alloc/Free are safe for concurrent calls; both are
// guarded by a single spin lock. The critical section is a slice
// pop/append, short enough that a spin lock beats parking a goroutine.
type Allocator struct {
	mu   spinlock.Lock
	free []uint8 // stack of available ids; ids are popped/pushed at the tail.
}

// New creates an Allocator with ids [addr.FirstSeg, addr.MaxSeg) free,
// except that addr.FirstSeg itself is reserved for the region's permanent
// first segment and is never placed in the free stack — callers allocate
// it directly at region creation.
func New() *Allocator {
	a := &Allocator{}
	// Populate in descending order so that Alloc (which pops from the
	// tail) hands out ids in ascending order on a fresh allocator — this
	// keeps the live segment table dense, which matters once it is
	// snapshotted into an immutable map at every epoch boundary.
	a.free = make([]uint8, 0, addr.MaxSeg-addr.FirstSeg-1)
	for id := addr.MaxSeg - 1; id > addr.FirstSeg; id-- {
		a.free = append(a.free, uint8(id))
	}
	return a
}

// Alloc pops a free segment id from the stack.
//
// Returns ok=false if the stack is exhausted (all
// addr.MaxSeg-addr.FirstSeg-1 allocatable ids are live); the caller is
// expected to translate that into
// addr.SegOverflow.
func (a *Allocator) Alloc() (id uint8, ok bool) {
	a.mu.Acquire()
	defer a.mu.Release()

	n := len(a.free)
	if n == 0 {
		return 0, false
	}
	id = a.free[n-1]
	a.free = a.free[:n-1]
	return id, true
}

// Free returns a segment id to the stack, making it available for reuse
// by a subsequent Alloc. The caller must not free addr.FirstSeg or an id
// that is not currently allocated.
func (a *Allocator) Free(id uint8) {
	a.mu.Acquire()
	a.free = append(a.free, id)
	a.mu.Release()
}

// Live returns the number of ids currently allocated (not sitting in the
// free stack). Used only for diagnostics/metrics.
func (a *Allocator) Live() int {
	a.mu.Acquire()
	n := len(a.free)
	a.mu.Release()
	return int(addr.MaxSeg-addr.FirstSeg-1) - n
}
