package region

import (
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/immutable"

	"github.com/kolkov/dvstm/internal/stm/segment"
)

// segTable is the region's table of live segments: an immutable,
// copy-on-write map from segment id to *segment.Segment, published via a
// single atomic pointer swap.
//
// Two paths build a new map and publish it: Alloc registers a new segment
// mid-epoch through insert (serialized by mu), and the last departing
// transaction of an epoch — which already has exclusive access to the
// region for the duration of the batcher's Phase B (see batcher.Leave) —
// publishes the end-of-epoch snapshot. Every reader, including read/write
// transactions mid-epoch and the metrics collector, calls load and never
// touches a mutex to do so. This
// mirrors the "build the next immutable state off to the side, then swap
// one pointer" discipline a write-ahead log applies to its segment index;
// here the published state is the STM's segment directory rather than log
// segments, and the single-writer invariant comes from the epoch boundary
// rather than an explicit rotation lock.
type segTable struct {
	ptr atomic.Pointer[immutable.Map[uint8, *segment.Segment]]

	// mu serializes insert/remove, the structural mutations Alloc makes
	// mid-epoch (arbitrary transactions, not just the exclusive last
	// departer). The last departer's end-of-epoch install pass runs with
	// every transaction of the epoch already departed, so it calls load
	// and publish directly without taking mu. Reads (load, get, len)
	// never touch mu.
	mu sync.Mutex
}

func newSegTable() *segTable {
	t := &segTable{}
	t.ptr.Store(immutable.NewMap[uint8, *segment.Segment](nil))
	return t
}

// load returns the currently published snapshot. Safe for any number of
// concurrent callers; never blocks.
func (t *segTable) load() *immutable.Map[uint8, *segment.Segment] {
	return t.ptr.Load()
}

// publish installs next as the current snapshot. Must only be called by
// the last departer of an epoch.
func (t *segTable) publish(next *immutable.Map[uint8, *segment.Segment]) {
	t.ptr.Store(next)
}

// get looks up a segment by id in the current snapshot.
func (t *segTable) get(id uint8) (*segment.Segment, bool) {
	return t.load().Get(id)
}

// len reports the number of live segments in the current snapshot.
func (t *segTable) len() int {
	return t.load().Len()
}

// insert registers seg under id, serialized against any other concurrent
// insert/remove so two transactions allocating in the same epoch never
// lose one another's entry to a stale base snapshot.
func (t *segTable) insert(id uint8, seg *segment.Segment) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.publish(t.load().Set(id, seg))
}

// remove drops id from the table, serialized the same way as insert.
func (t *segTable) remove(id uint8) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.publish(t.load().Delete(id))
}
