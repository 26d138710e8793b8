package region

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kolkov/dvstm/internal/stm/accessset"
)

func mustNew(t *testing.T, size, align uint64) *Region {
	t.Helper()
	r, err := New(size, align)
	require.NoError(t, err)
	return r
}

// beginTogether admits n read/write transactions into the same epoch.
// Enter only returns immediately for the very first caller of an idle
// batcher; every later caller queues for the *next* epoch and blocks
// until the current one ends. So to get n transactions running
// concurrently against each other, a leader transaction is opened first
// to hold an epoch open while the n transactions queue behind it, then
// the leader ends, releasing all n together into the epoch that follows.
func beginTogether(t *testing.T, r *Region, n int) []uint64 {
	t.Helper()

	leader, err := r.Begin(false)
	require.NoError(t, err)

	ids := make([]uint64, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			ids[i], errs[i] = r.Begin(false)
		}()
	}

	time.Sleep(50 * time.Millisecond) // let all n queue behind the leader.
	require.NoError(t, r.End(leader))
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	return ids
}

// TestS1SingleReadWriteCommit covers scenario S1: a single read/write
// transaction's write becomes visible to a read-only transaction begun
// after it ends.
func TestS1SingleReadWriteCommit(t *testing.T) {
	r := mustNew(t, 16, 8)
	start := r.Start()

	a, err := r.Begin(false)
	require.NoError(t, err)

	want := []byte{0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18}
	require.NoError(t, r.Write(a, want, 8, start))
	require.NoError(t, r.End(a))

	b, err := r.Begin(true)
	require.NoError(t, err)
	got := make([]byte, 8)
	require.NoError(t, r.Read(b, start, 8, got))
	require.Equal(t, want, got)
	require.NoError(t, r.End(b))
}

// TestS2AbortOnConflict covers scenario S2: two read/write transactions
// writing the same word in the same epoch — the second write aborts the
// whole transaction, and the next epoch's reader sees only the
// committer's value.
func TestS2AbortOnConflict(t *testing.T) {
	r := mustNew(t, 16, 8)
	start := r.Start()

	ids := beginTogether(t, r, 2)
	a, b := ids[0], ids[1]

	want := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	require.NoError(t, r.Write(a, want, 8, start))

	other := []byte{9, 9, 9, 9, 9, 9, 9, 9}
	err := r.Write(b, other, 8, start)
	require.ErrorIs(t, err, ErrAborted)

	require.NoError(t, r.End(a))

	c, err := r.Begin(true)
	require.NoError(t, err)
	got := make([]byte, 8)
	require.NoError(t, r.Read(c, start, 8, got))
	require.Equal(t, want, got)
	require.NoError(t, r.End(c))
}

// TestS3ReadWriteVisibilitySameTx covers scenario S3: a read/write
// transaction observes its own uncommitted write.
func TestS3ReadWriteVisibilitySameTx(t *testing.T) {
	r := mustNew(t, 16, 8)
	start := r.Start()

	a, err := r.Begin(false)
	require.NoError(t, err)

	want := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	require.NoError(t, r.Write(a, want, 8, start))

	got := make([]byte, 8)
	require.NoError(t, r.Read(a, start, 8, got))
	require.Equal(t, want, got)

	require.NoError(t, r.End(a))
}

// TestS4AllocFreeLifecycle covers scenario S4: a freshly allocated
// segment reads as zeros, an aborted write to it leaves it zero, and
// freeing it makes its id reusable by a subsequent alloc.
func TestS4AllocFreeLifecycle(t *testing.T) {
	r := mustNew(t, 16, 8)

	a, err := r.Begin(false)
	require.NoError(t, err)
	h, err := r.Alloc(a, 8)
	require.NoError(t, err)
	require.NoError(t, r.End(a))

	b, err := r.Begin(true)
	require.NoError(t, err)
	zeros := make([]byte, 8)
	got := make([]byte, 8)
	require.NoError(t, r.Read(b, h, 8, got))
	require.Equal(t, zeros, got)
	require.NoError(t, r.End(b))

	ids := beginTogether(t, r, 2)
	c, d := ids[0], ids[1]
	// d reads the word first, leaving a reader bit behind; c's write then
	// conflicts against it and aborts, so nothing is ever installed into H.
	require.NoError(t, r.Read(d, h, 8, got))
	err = r.Write(c, []byte{0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA}, 8, h)
	require.ErrorIs(t, err, ErrAborted)
	require.NoError(t, r.End(d))

	e, err := r.Begin(true)
	require.NoError(t, err)
	require.NoError(t, r.Read(e, h, 8, got))
	require.Equal(t, zeros, got)
	require.NoError(t, r.End(e))

	f, err := r.Begin(false)
	require.NoError(t, err)
	require.NoError(t, r.Free(f, h))
	require.NoError(t, r.End(f))

	g, err := r.Begin(false)
	require.NoError(t, err)
	h2, err := r.Alloc(g, 8)
	require.NoError(t, err)
	require.NoError(t, r.End(g))

	segID, _ := h.Decode()
	seg2ID, _ := h2.Decode()
	require.Equal(t, segID, seg2ID, "freed segment id should be reused by the next alloc")
	require.Equal(t, r.Start(), r.Start(), "the permanent first segment's handle never changes")
}

// TestS5AdmissionCap covers scenario S5: once MaxRWTx read/write
// transactions are reserved for the next epoch, one more read/write
// Begin is refused while read-only admission keeps succeeding.
func TestS5AdmissionCap(t *testing.T) {
	r := mustNew(t, 16, 8)

	// A solo leader holds an epoch open while MaxRWTx more read/write
	// transactions queue behind it; Enter reserves each one's slot the
	// instant it's called, before it blocks, so the next epoch's quota is
	// fully consumed without anyone having to end.
	leader, err := r.Begin(false)
	require.NoError(t, err)

	blocked := int(accessset.MaxRWTx)
	rwErrs := make(chan error, blocked)
	var wg sync.WaitGroup
	wg.Add(blocked)
	for i := 0; i < blocked; i++ {
		go func() {
			defer wg.Done()
			_, err := r.Begin(false)
			rwErrs <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)

	_, err = r.Begin(false)
	require.ErrorIs(t, err, ErrQuotaExceeded, "a rw reservation beyond MaxRWTx must be refused without anyone ending")

	roDone := make(chan error, 1)
	go func() {
		_, err := r.Begin(true)
		roDone <- err
	}()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, r.End(leader))
	wg.Wait()
	close(rwErrs)
	for err := range rwErrs {
		require.NoError(t, err, "read/write admission should have succeeded")
	}
	require.NoError(t, <-roDone, "read-only admission must never be refused by the rw quota")
}

// TestReadSizeMustBeAlignedMultiple exercises the precondition check on
// Read/Write sizes independent of conflict behaviour.
func TestReadSizeMustBeAlignedMultiple(t *testing.T) {
	r := mustNew(t, 16, 8)
	tx, err := r.Begin(true)
	require.NoError(t, err)

	err = r.Read(tx, r.Start(), 3, make([]byte, 3))
	require.Error(t, err)
	require.NoError(t, r.End(tx))
}

// TestFreeFirstSegmentAborted verifies the permanent first segment can
// never be freed.
func TestFreeFirstSegmentAborted(t *testing.T) {
	r := mustNew(t, 16, 8)
	tx, err := r.Begin(false)
	require.NoError(t, err)

	err = r.Free(tx, r.Start())
	require.ErrorIs(t, err, ErrFirstSegment)
}

// TestCloseRefusesWithActiveTransactions exercises the Close precondition.
func TestCloseRefusesWithActiveTransactions(t *testing.T) {
	r := mustNew(t, 16, 8)
	tx, err := r.Begin(true)
	require.NoError(t, err)

	require.ErrorIs(t, r.Close(), ErrActiveTransactions)

	require.NoError(t, r.End(tx))
	require.NoError(t, r.Close())
}

// TestStatsReportsEpochAndSegmentCount is a supplemented-feature check for
// Region.Stats, not part of the literal scenarios.
func TestStatsReportsEpochAndSegmentCount(t *testing.T) {
	r := mustNew(t, 16, 8)
	s0 := r.Stats()
	require.Equal(t, 1, s0.LiveSegments)

	tx, err := r.Begin(false)
	require.NoError(t, err)
	_, err = r.Alloc(tx, 8)
	require.NoError(t, err)
	require.NoError(t, r.End(tx))

	s1 := r.Stats()
	require.Equal(t, 2, s1.LiveSegments)
	require.Equal(t, s0.Epoch+1, s1.Epoch)
	require.Zero(t, s1.Outstanding)
}

// TestNewRejectsInvalidAlignAndSize exercises Region.New's precondition
// checks.
func TestNewRejectsInvalidAlignAndSize(t *testing.T) {
	_, err := New(16, 0)
	require.Error(t, err)

	_, err = New(16, 3)
	require.Error(t, err, "align must be a power of two")

	_, err = New(0, 8)
	require.Error(t, err)

	_, err = New(12, 8)
	require.Error(t, err, "size must be a multiple of align")
}

// TestWriteFromReadOnlyTxRejected exercises the boundary guard in Write.
func TestWriteFromReadOnlyTxRejected(t *testing.T) {
	r := mustNew(t, 16, 8)
	tx, err := r.Begin(true)
	require.NoError(t, err)

	err = r.Write(tx, make([]byte, 8), 8, r.Start())
	require.Error(t, err)
}

