package region

import "errors"

// Sentinel errors returned by Region operations. Every abort path also
// calls the batcher's Leave exactly once, with committed=false, before
// returning one of these to the caller.
var (
	// ErrQuotaExceeded is returned by Begin when a read/write admission
	// would exceed accessset.MaxRWTx. The caller must not call End for
	// the transaction it never received — admission refusal never
	// touches the batcher's remaining/blocked bookkeeping.
	ErrQuotaExceeded = errors.New("dvstm: read/write transaction quota exceeded")

	// ErrAborted is returned by Read/Write/Free when another
	// transaction's access-set entry conflicts with the caller's.
	ErrAborted = errors.New("dvstm: transaction aborted due to a conflicting access")

	// ErrSegmentOverflow is returned by Alloc when the segment-id stack
	// is exhausted (every id in [addr.FirstSeg, addr.MaxSeg) is live).
	ErrSegmentOverflow = errors.New("dvstm: segment id space exhausted")

	// ErrNoMem is returned by Alloc when allocating the segment's backing
	// storage fails.
	ErrNoMem = errors.New("dvstm: out of memory allocating segment")

	// ErrFirstSegment is returned by Free when asked to free the
	// region's permanent first segment.
	ErrFirstSegment = errors.New("dvstm: cannot free the region's permanent first segment")

	// ErrActiveTransactions is returned by Close when transactions are
	// still outstanding.
	ErrActiveTransactions = errors.New("dvstm: region has active transactions")
)
