// Package region implements the Region: the orchestrator that ties the
// epoch batcher, dual-versioned segments, the segment-id allocator and
// per-transaction history logs together into the begin/read/write/
// alloc/free/end operations a client actually calls.
//
// Region itself holds no lock of its own for the steady-state hot path —
// conflict detection is serialized per word by the segment's spin locks,
// and epoch transitions are serialized by the batcher's mutex. The
// Region-level synchronization is the small mutex inside segTable that
// guards mid-epoch Alloc registration (see segtable.go) and touchedMu,
// which guards the set of segment ids departing transactions report.
package region

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/kolkov/dvstm/internal/stm/accessset"
	"github.com/kolkov/dvstm/internal/stm/addr"
	"github.com/kolkov/dvstm/internal/stm/batcher"
	"github.com/kolkov/dvstm/internal/stm/history"
	"github.com/kolkov/dvstm/internal/stm/metrics"
	"github.com/kolkov/dvstm/internal/stm/segalloc"
	"github.com/kolkov/dvstm/internal/stm/segment"
)

// Stats is a point-in-time snapshot of a Region's bookkeeping, useful for
// dashboards and tests that don't want to scrape Prometheus.
type Stats struct {
	Epoch        uint64
	LiveSegments int
	Outstanding  uint64
}

// Region is one DV-STM shared-memory region: a batcher, a table of live
// segments, a segment-id allocator and a per-read/write-transaction
// history table.
type Region struct {
	batcher *batcher.Batcher
	segs    *segTable
	ids     *segalloc.Allocator

	align     uint64
	firstAddr addr.Addr

	// histories is indexed by read/write transaction id, [0, MaxRWTx).
	// A transaction owns its slot exclusively for the duration of its
	// admission — no other goroutine touches histories[tx] while tx is
	// outstanding — so no lock is needed here.
	histories [accessset.MaxRWTx]*history.Log

	// epochStart holds the UnixNano of the moment the current epoch's
	// first transaction was admitted, used to observe
	// EpochDurationSeconds. Best-effort: it is set opportunistically by
	// whichever Begin call happens to observe itself as the epoch's only
	// outstanding transaction, which can race harmlessly with a second
	// admission landing a few instructions later.
	epochStart atomic.Int64

	metrics *metrics.Set
	logger  log.Logger

	closed atomic.Bool

	// touchedMu guards touched: the set of segment ids any transaction's
	// history referenced during the epoch now ending. install consults
	// this instead of scanning every live segment, since an untouched
	// segment can have nothing to install or reclaim.
	touchedMu sync.Mutex
	touched   map[uint8]struct{}
}

// New creates a Region with one permanent segment of size bytes, aligned
// to align. align must be a power of two at least 8 bytes (pointer size);
// size must be a positive multiple of align.
func New(size, align uint64, opts ...Option) (*Region, error) {
	if align == 0 || align&(align-1) != 0 || align < 8 {
		return nil, fmt.Errorf("dvstm: align must be a power of two of at least 8 bytes, got %d", align)
	}
	if size == 0 || size%align != 0 {
		return nil, fmt.Errorf("dvstm: size must be a positive multiple of align (%d), got %d", align, size)
	}

	r := &Region{
		batcher: batcher.New(),
		segs:    newSegTable(),
		ids:     segalloc.New(),
		align:   align,
		metrics: metrics.New(nil),
		logger:  log.NewNopLogger(),
	}

	first := segment.New(addr.FirstSeg, size, align)
	if first == nil {
		return nil, ErrNoMem
	}
	r.segs.insert(addr.FirstSeg, first)
	r.firstAddr = addr.Encode(addr.FirstSeg, 0)

	for _, opt := range opts {
		opt(r)
	}

	r.metrics.SegmentsLive.Set(1)
	return r, nil
}

// Close releases the Region. It refuses while transactions are still
// outstanding; otherwise it is a no-op beyond marking the Region closed,
// since a Region owns no resources beyond Go-managed memory.
func (r *Region) Close() error {
	if r.batcher.Outstanding() != 0 {
		return ErrActiveTransactions
	}
	r.closed.Store(true)
	return nil
}

// Start returns the opaque handle of the permanent first segment.
func (r *Region) Start() addr.Addr { return r.firstAddr }

// Size returns the byte size of the first segment.
func (r *Region) Size() uint64 {
	seg, _ := r.segs.get(addr.FirstSeg)
	return seg.Size
}

// Align returns the region's word alignment in bytes.
func (r *Region) Align() uint64 { return r.align }

// Stats returns a snapshot of the Region's current bookkeeping.
func (r *Region) Stats() Stats {
	return Stats{
		Epoch:        r.batcher.Epoch(),
		LiveSegments: r.segs.len(),
		Outstanding:  r.batcher.Outstanding(),
	}
}

func kindLabel(readOnly bool) string {
	if readOnly {
		return metrics.KindReadOnly
	}
	return metrics.KindReadWrite
}

// Begin admits a new transaction, blocking until its epoch has started.
// It returns ErrQuotaExceeded, without blocking, if readOnly is false and
// the read/write id space is exhausted; the caller must not call End in
// that case.
func (r *Region) Begin(readOnly bool) (uint64, error) {
	tx, ok := r.batcher.Enter(readOnly)
	if !ok {
		r.metrics.TxRefusedTotal.Inc()
		level.Debug(r.logger).Log("msg", "rw quota exhausted")
		return 0, ErrQuotaExceeded
	}
	r.metrics.TxAdmittedTotal.WithLabelValues(kindLabel(readOnly)).Inc()

	if !readOnly {
		if r.histories[tx] == nil {
			r.histories[tx] = history.New()
		} else {
			r.histories[tx].Reset()
		}
	}

	if r.batcher.Outstanding() == 1 {
		r.epochStart.CompareAndSwap(0, time.Now().UnixNano())
	}

	return tx, nil
}

// End commits tx: its effects are scheduled for installation at the next
// end-of-epoch boundary.
func (r *Region) End(tx uint64) error {
	r.leave(tx, true)
	r.metrics.TxCommittedTotal.Inc()
	return nil
}

// Read copies size bytes from src into dst. Read-only transactions read
// the segment's installed snapshot directly; read/write transactions read
// the working copy under the words' spin locks, recording a reader bit
// per word so a later conflicting write aborts them.
func (r *Region) Read(tx uint64, src addr.Addr, size uint64, dst []byte) error {
	if size == 0 || size%r.align != 0 {
		return fmt.Errorf("dvstm: read size %d is not a positive multiple of align (%d)", size, r.align)
	}

	segID, offset := src.Decode()
	seg, ok := r.segs.get(segID)
	if !ok {
		return r.abort(tx, metrics.ReasonConflict, ErrAborted)
	}

	if tx >= accessset.MaxRWTx {
		copy(dst, seg.ReadOnlyAt(offset, size))
		return nil
	}

	bit := accessset.Bit(tx)
	wi := seg.WordIndex(offset)
	n := size / r.align

	for i := wi; i < wi+n; i++ {
		seg.LockWord(i)
		if seg.AccessSet(i).ReadConflict(bit) {
			for j := wi; j <= i; j++ {
				seg.UnlockWord(j)
			}
			return r.abort(tx, metrics.ReasonConflict, ErrAborted)
		}
	}

	copy(dst, seg.WritableAt(offset, size))

	log := r.histories[tx]
	for i := wi; i < wi+n; i++ {
		seg.SetAccessSet(i, seg.AccessSet(i).WithReader(bit))
		seg.UnlockWord(i)
		log.RW(history.Read, segID, i)
	}

	return nil
}

// Write copies size bytes from src into the segment's working copy at
// dst, aborting on a conflicting reader or writer.
func (r *Region) Write(tx uint64, src []byte, size uint64, dst addr.Addr) error {
	if tx >= accessset.MaxRWTx {
		return fmt.Errorf("dvstm: write from a read-only transaction")
	}
	if size == 0 || size%r.align != 0 {
		return fmt.Errorf("dvstm: write size %d is not a positive multiple of align (%d)", size, r.align)
	}

	segID, offset := dst.Decode()
	seg, ok := r.segs.get(segID)
	if !ok {
		return r.abort(tx, metrics.ReasonConflict, ErrAborted)
	}

	bit := accessset.Bit(tx)
	wi := seg.WordIndex(offset)
	n := size / r.align

	for i := wi; i < wi+n; i++ {
		seg.LockWord(i)
		if seg.AccessSet(i).WriteConflict(bit) {
			for j := wi; j <= i; j++ {
				seg.UnlockWord(j)
			}
			return r.abort(tx, metrics.ReasonConflict, ErrAborted)
		}
	}

	copy(seg.WritableAt(offset, size), src[:size])

	log := r.histories[tx]
	for i := wi; i < wi+n; i++ {
		seg.SetAccessSet(i, seg.AccessSet(i).WithWriter(bit))
		seg.UnlockWord(i)
		log.RW(history.Write, segID, i)
	}

	return nil
}

// Alloc creates a new segment of size bytes and returns its handle. A
// failure to find a free segment id or to allocate backing storage aborts
// tx entirely, not just this call.
func (r *Region) Alloc(tx uint64, size uint64) (addr.Addr, error) {
	if tx >= accessset.MaxRWTx {
		return 0, fmt.Errorf("dvstm: alloc from a read-only transaction")
	}
	if size == 0 || size%r.align != 0 {
		return 0, fmt.Errorf("dvstm: alloc size %d is not a positive multiple of align (%d)", size, r.align)
	}

	id, ok := r.ids.Alloc()
	if !ok {
		return addr.SegOverflow, r.abort(tx, metrics.ReasonOverflow, ErrSegmentOverflow)
	}

	seg := segment.New(id, size, r.align)
	if seg == nil {
		r.ids.Free(id)
		return addr.NoMem, r.abort(tx, metrics.ReasonOOM, ErrNoMem)
	}

	r.segs.insert(id, seg)
	r.histories[tx].AF(history.Alloc, id, 0, size)

	return addr.Encode(id, 0), nil
}

// Free marks target's segment to be reclaimed at the next end-of-epoch
// boundary. target may not be the region's permanent first segment.
func (r *Region) Free(tx uint64, target addr.Addr) error {
	if tx >= accessset.MaxRWTx {
		return fmt.Errorf("dvstm: free from a read-only transaction")
	}

	segID, _ := target.Decode()
	if segID == addr.FirstSeg {
		return r.abort(tx, metrics.ReasonFirstSegment, ErrFirstSegment)
	}
	if _, ok := r.segs.get(segID); !ok {
		return r.abort(tx, metrics.ReasonConflict, ErrAborted)
	}

	r.histories[tx].AF(history.Free, segID, 0, 0)
	return nil
}

// abort rolls tx back via leave(committed=false) and reports reason.
func (r *Region) abort(tx uint64, reason string, err error) error {
	r.leave(tx, false)
	r.metrics.TxAbortedTotal.WithLabelValues(reason).Inc()
	level.Debug(r.logger).Log("msg", "transaction aborted", "tx", tx, "reason", reason)
	return err
}

// leave runs history rewind/finalization (Phase A) for read/write
// transactions, then departs the batcher (Phase B), installing the epoch
// if tx turns out to be the last transaction to leave.
func (r *Region) leave(tx uint64, committed bool) {
	if tx < accessset.MaxRWTx {
		if log := r.histories[tx]; log != nil {
			r.rewind(tx, log, committed)
		}
	}

	var didInstall bool
	r.batcher.Leave(func() {
		r.install()
		didInstall = true
	})

	if didInstall {
		level.Info(r.logger).Log("msg", "epoch advanced", "epoch", r.batcher.Epoch(), "admitted", r.batcher.Outstanding())
	}
}

// rewind walks log in LIFO order, undoing aborted effects or finalizing
// committed ones, exactly per the departure table: aborted reads release
// their reader bit; aborted writes roll back bytes from the read-only
// snapshot and clear both the Written bit and the writer's bit; committed
// writes mark their segment written; aborted allocs and committed frees
// mark their segment freed.
func (r *Region) rewind(tx uint64, log *history.Log, committed bool) {
	bit := accessset.Bit(tx)
	touchedIDs := log.TouchedSegments()
	log.Walk(func(rec history.Record) bool {
		seg, ok := r.segs.get(rec.SegID)
		if !ok {
			return true
		}
		switch rec.Kind {
		case history.Read:
			if !committed {
				seg.LockWord(rec.Word)
				seg.SetAccessSet(rec.Word, seg.AccessSet(rec.Word).ClearReader(bit))
				seg.UnlockWord(rec.Word)
			}
		case history.Write:
			if committed {
				seg.MarkWritten()
			} else {
				seg.LockWord(rec.Word)
				seg.RollbackWord(rec.Word)
				seg.SetAccessSet(rec.Word, seg.AccessSet(rec.Word).ClearTx(bit))
				seg.UnlockWord(rec.Word)
			}
		case history.Alloc:
			if !committed {
				seg.MarkFreed()
			}
		case history.Free:
			if committed {
				seg.MarkFreed()
			}
		}
		return true
	})
	log.Reset()

	if len(touchedIDs) == 0 {
		return
	}
	r.touchedMu.Lock()
	if r.touched == nil {
		r.touched = make(map[uint8]struct{}, len(touchedIDs))
	}
	for _, id := range touchedIDs {
		r.touched[id] = struct{}{}
	}
	r.touchedMu.Unlock()
}

// install runs the end-of-epoch pass: called by Leave with the batcher's
// mutex held, exactly once, by whichever transaction turns out to be the
// last to depart the epoch. Every other transaction of the epoch has
// already departed by the time this runs, so the segment table and id
// allocator can be mutated without contending with a concurrent
// Alloc/Free.
//
// Only segments some transaction's history actually referenced this
// epoch (r.touched) need a pass here: an untouched segment's access set
// is already clear and it can hold nothing pending install or reclaim.
func (r *Region) install() {
	next := r.segs.load()

	r.touchedMu.Lock()
	touched := r.touched
	r.touched = nil
	r.touchedMu.Unlock()

	for id := range touched {
		seg, ok := next.Get(id)
		if !ok {
			continue
		}
		if seg.IsFreed() {
			next = next.Delete(id)
			r.ids.Free(id)
			continue
		}
		if seg.IsWritten() {
			seg.Install()
		}
		seg.ClearAccessSets()
	}

	r.segs.publish(next)

	for i := range r.histories {
		if r.histories[i] != nil {
			r.histories[i].Reset()
		}
	}

	if started := r.epochStart.Swap(0); started != 0 {
		r.metrics.EpochDurationSeconds.Observe(time.Since(time.Unix(0, started)).Seconds())
	}
	r.metrics.EpochsTotal.Inc()
	r.metrics.SegmentsLive.Set(float64(next.Len()))
}
