// Package segment implements the dual-versioned segment: the unit of
// shared memory a DV-STM region allocates. Each Segment carries two
// byte-for-byte equal-sized copies — ro, the read-only snapshot visible to
// read-only transactions, and rw, the writable working copy read/write
// transactions observe and mutate — plus one access-set word and one spin
// lock per memory word.
//
// A Segment never moves once allocated: its id, size and backing arrays
// are fixed for its lifetime. Growth or in-place resize is out of scope,
// matching the underlying algorithm (a transaction that needs more space
// allocates a new segment instead).
package segment

import (
	"sync/atomic"

	"github.com/kolkov/dvstm/internal/stm/accessset"
	"github.com/kolkov/dvstm/internal/stm/spinlock"
)

// Segment is one contiguous shared-memory object under dual-version
// control.
//
// Thread Safety:
//   - ro is mutated only by the last departing transaction of an epoch,
//     with exclusive access to the region (see the batcher's leave path);
//     concurrent readers within the epoch only ever read it.
//   - rw is mutated by read/write transactions (writes and rollbacks)
//     under the corresponding word's spin lock; Install only reads it.
//   - aset is guarded per-word by asetLocks[i].
//   - freed/written are plain atomic booleans: multiple transactions may
//     set them concurrently, which is fine since both are monotonic
//     "did this happen at least once this epoch" flags, cleared only by
//     the installer at epoch end.
type Segment struct {
	SegID uint8
	Size  uint64 // byte length of one copy.
	Align uint64 // word size in bytes, copied from the owning region.

	ro []byte
	rw []byte

	aset      []accessset.Word
	asetLocks []spinlock.Lock

	freed   atomic.Bool
	written atomic.Bool
}

// New allocates a zeroed Segment of size bytes, size a positive multiple
// of align. Returns nil if size or align is zero or size is not a multiple
// of align; that is its only failure mode.
func New(segID uint8, size, align uint64) *Segment {
	if size == 0 || align == 0 || size%align != 0 {
		return nil
	}
	numWords := size / align
	return &Segment{
		SegID:     segID,
		Size:      size,
		Align:     align,
		ro:        make([]byte, size),
		rw:        make([]byte, size),
		aset:      make([]accessset.Word, numWords),
		asetLocks: make([]spinlock.Lock, numWords),
	}
}

// NumWords returns size/align, the number of access-set entries.
func (s *Segment) NumWords() uint64 {
	return s.Size / s.Align
}

// WordIndex converts a byte offset in this segment to its word index. The
// caller must ensure offset is align-aligned.
func (s *Segment) WordIndex(offset uint64) uint64 {
	return offset / s.Align
}

// ReadOnlyAt returns the n bytes at offset in the read-only snapshot copy.
// Used by read-only transactions, which take no locks at all.
func (s *Segment) ReadOnlyAt(offset, n uint64) []byte {
	return s.ro[offset : offset+n]
}

// WritableAt returns the n bytes at offset in the writable working copy.
// The caller must already hold every word lock covering [offset,
// offset+n).
func (s *Segment) WritableAt(offset, n uint64) []byte {
	return s.rw[offset : offset+n]
}

// LockWord acquires the spin lock for word i.
func (s *Segment) LockWord(i uint64) {
	s.asetLocks[i].Acquire()
}

// UnlockWord releases the spin lock for word i.
func (s *Segment) UnlockWord(i uint64) {
	s.asetLocks[i].Release()
}

// AccessSet returns the current access-set word for word i. The caller
// must hold asetLocks[i].
func (s *Segment) AccessSet(i uint64) accessset.Word {
	return s.aset[i]
}

// SetAccessSet stores a new access-set word for word i. The caller must
// hold asetLocks[i].
func (s *Segment) SetAccessSet(i uint64, w accessset.Word) {
	s.aset[i] = w
}

// RollbackWord copies the read-only snapshot byte range back over the
// writable copy for word i, undoing an aborted write. The caller must
// hold asetLocks[i]; the access-set entry itself is cleared separately by
// the caller via SetAccessSet.
func (s *Segment) RollbackWord(i uint64) {
	start := i * s.Align
	end := start + s.Align
	copy(s.rw[start:end], s.ro[start:end])
}

// MarkFreed atomically records that some transaction's history says to
// free this segment at the next epoch boundary.
func (s *Segment) MarkFreed() {
	s.freed.Store(true)
}

// IsFreed reports whether MarkFreed has been called this epoch.
func (s *Segment) IsFreed() bool {
	return s.freed.Load()
}

// MarkWritten atomically records that some committed write touched this
// segment this epoch, so the end-of-epoch installer does not skip it.
func (s *Segment) MarkWritten() {
	s.written.Store(true)
}

// IsWritten reports whether MarkWritten has been called this epoch.
func (s *Segment) IsWritten() bool {
	return s.written.Load()
}

// Install copies the writable working copy over the read-only snapshot in
// full and clears the written flag. Called only by the last departing
// transaction of an epoch, which already has exclusive access to the
// region; no per-word locking is needed here.
//
// Copying the full size rather than only the words touched this epoch is
// a deliberate simplification: restricting the copy to a dirty-word list
// is a valid future optimization, not a correctness requirement.
func (s *Segment) Install() {
	copy(s.ro, s.rw)
	s.written.Store(false)
}

// ClearAccessSets zeroes every word's access-set entry. Called only by the
// last departing transaction of an epoch, under the same exclusive-access
// guarantee as Install.
func (s *Segment) ClearAccessSets() {
	for i := range s.aset {
		s.aset[i] = 0
	}
}

// ResetFreed clears the freed flag. A segment that is actually freed is
// destroyed by the region rather than reused. The region's rollback of an
// aborted Free does not call this: a Free marks its segment only on
// commit, so there is no flag to clear.
func (s *Segment) ResetFreed() {
	s.freed.Store(false)
}
