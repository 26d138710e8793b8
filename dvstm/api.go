// Package dvstm provides the public API for the dual-versioned software
// transactional memory runtime.
//
// See doc.go for detailed documentation and examples.
package dvstm

import (
	"fmt"

	"github.com/kolkov/dvstm/internal/stm/addr"
	"github.com/kolkov/dvstm/internal/stm/region"
	"github.com/kolkov/dvstm/internal/stm/txn"
)

// Addr is an opaque handle to a location in a Region: a (segment id,
// offset) pair a caller stores and passes back but never decodes itself.
type Addr = addr.Addr

// Sentinel errors returned by Region and Tx operations, re-exported from
// the runtime's internal region package so callers can errors.Is against
// them without importing an internal path.
var (
	// ErrQuotaExceeded is returned by Begin when a read/write admission
	// would exceed the maximum number of concurrently outstanding
	// read/write transactions. The caller must not call End for the
	// transaction it never received.
	ErrQuotaExceeded = region.ErrQuotaExceeded

	// ErrAborted is returned by Read, Write and Free when another
	// transaction's access conflicts with the caller's.
	ErrAborted = region.ErrAborted

	// ErrSegmentOverflow is returned by Alloc when the segment-id space
	// is exhausted.
	ErrSegmentOverflow = region.ErrSegmentOverflow

	// ErrNoMem is returned by Alloc when allocating a segment's backing
	// storage fails.
	ErrNoMem = region.ErrNoMem

	// ErrFirstSegment is returned by Free when asked to free a Region's
	// permanent first segment.
	ErrFirstSegment = region.ErrFirstSegment

	// ErrActiveTransactions is returned by Close when transactions are
	// still outstanding.
	ErrActiveTransactions = region.ErrActiveTransactions
)

// Option configures a Region at construction time.
type Option = region.Option

// WithRegisterer registers a Region's metrics against reg. Passing nil
// (the default) produces metric objects that are never scraped.
var WithRegisterer = region.WithRegisterer

// WithLogger sets the structured logger a Region emits events to. The
// default is a no-op logger.
var WithLogger = region.WithLogger

// Stats is a point-in-time snapshot of a Region's bookkeeping.
type Stats = region.Stats

// Region is one dvstm shared-memory region: a set of dual-versioned
// segments accessed through transactions batched into epochs.
type Region struct {
	r *region.Region
}

// New creates a Region with one permanent segment of size bytes, aligned
// to align. align must be a power of two of at least 8 bytes; size must
// be a positive multiple of align.
func New(size, align uint64, opts ...Option) (*Region, error) {
	r, err := region.New(size, align, opts...)
	if err != nil {
		return nil, err
	}
	return &Region{r: r}, nil
}

// Close releases the Region. It returns ErrActiveTransactions while any
// transaction is still outstanding.
func (rg *Region) Close() error { return rg.r.Close() }

// Start returns the opaque handle of the Region's permanent first
// segment.
func (rg *Region) Start() Addr { return rg.r.Start() }

// Size returns the byte size of the permanent first segment.
func (rg *Region) Size() uint64 { return rg.r.Size() }

// Align returns the Region's word alignment in bytes. Every Read/Write
// size and every Alloc size must be a positive multiple of this value.
func (rg *Region) Align() uint64 { return rg.r.Align() }

// Stats returns a snapshot of the Region's current epoch, live segment
// count and outstanding transaction count.
func (rg *Region) Stats() Stats { return rg.r.Stats() }

// Begin admits a new transaction, blocking until its epoch has started.
// It returns ErrQuotaExceeded, without blocking, if readOnly is false and
// the read/write admission quota is exhausted.
func (rg *Region) Begin(readOnly bool) (*Tx, error) {
	id, err := rg.r.Begin(readOnly)
	if err != nil {
		return nil, err
	}
	return &Tx{region: rg.r, handle: txn.New(id, readOnly)}, nil
}

// Tx is a single admitted transaction. A Tx must be driven by exactly one
// goroutine at a time, from Begin to End.
type Tx struct {
	region *region.Region
	handle txn.Tx
	ended  bool
}

// ID is this transaction's batcher-assigned identifier, exposed for
// logging and diagnostics.
func (tx *Tx) ID() uint64 { return tx.handle.ID }

// ReadOnly reports whether this transaction may only call Read.
func (tx *Tx) ReadOnly() bool { return tx.handle.ReadOnly }

// End commits tx: its effects are scheduled for installation at the next
// end-of-epoch boundary. End must be called exactly once per transaction
// that has not aborted. An operation that returns ErrAborted,
// ErrSegmentOverflow, ErrNoMem or ErrFirstSegment has already ended the
// transaction, and End must not be called for it.
func (tx *Tx) End() error {
	if tx.ended {
		return fmt.Errorf("dvstm: End called twice on the same transaction")
	}
	tx.ended = true
	return tx.region.End(tx.handle.ID)
}

// Read copies size bytes from src into dst.
func (tx *Tx) Read(src Addr, size uint64, dst []byte) error {
	return tx.region.Read(tx.handle.ID, src, size, dst)
}

// Write copies size bytes from src into the Region's working copy at
// dst. Only a read/write transaction may call Write.
func (tx *Tx) Write(src []byte, size uint64, dst Addr) error {
	return tx.region.Write(tx.handle.ID, src, size, dst)
}

// Alloc creates a new segment of size bytes and returns its handle. Only
// a read/write transaction may call Alloc.
func (tx *Tx) Alloc(size uint64) (Addr, error) {
	return tx.region.Alloc(tx.handle.ID, size)
}

// Free marks target's segment to be reclaimed at the next end-of-epoch
// boundary. Only a read/write transaction may call Free; target may not
// be the Region's permanent first segment.
func (tx *Tx) Free(target Addr) error {
	return tx.region.Free(tx.handle.ID, target)
}
