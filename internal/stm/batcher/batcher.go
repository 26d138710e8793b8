// Package batcher implements the epoch batcher: the single synchronization
// point every transaction passes through on admission and departure.
//
// Transactions are grouped into epochs. All transactions active in the
// same epoch run fully concurrently against each other (subject to the
// per-word access-set rules enforced elsewhere); an epoch ends only when
// every transaction admitted to it has departed, at which point the last
// departer performs the end-of-epoch installation and a new epoch begins
// for whichever transactions arrived while the old one was running.
//
// Waiters gate on the epoch counter changing, never on the remaining
// count reaching zero: a waiter that checked remaining instead could wake
// on a transient remaining==0 caused by the very mechanism meant to start
// the next epoch, and race the last departer's own reset of that field.
// Comparing the epoch number it snapshotted on arrival against the
// current one is the only condition that cannot be observed transiently
// true.
package batcher

import (
	"sync"

	"github.com/kolkov/dvstm/internal/stm/accessset"
)

// TxID identifies an admitted transaction. Read/write transactions occupy
// [0, accessset.MaxRWTx); read-only transactions occupy
// [accessset.MaxRWTx, ...).
type TxID = uint64

// Batcher admits transactions into epochs and tracks when an epoch is
// fully vacated.
//
// Thread Safety: every exported method takes mu internally; callers never
// touch the fields directly.
type Batcher struct {
	mu   sync.Mutex
	cond *sync.Cond

	epoch uint64 // bumped each time the last transaction of an epoch departs.

	activeRW  uint64 // read/write transactions admitted to the current epoch.
	activeRO  uint64 // read-only transactions admitted to the current epoch.
	waitingRW uint64 // read/write transactions reserved for the next epoch.
	waitingRO uint64 // read-only transactions reserved for the next epoch.

	remaining uint64 // transactions admitted to the current epoch that have not yet left.
}

// New returns a Batcher with no epoch in progress.
func New() *Batcher {
	b := &Batcher{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Enter admits a transaction, blocking until its epoch has started.
//
// If no epoch is currently running, the caller becomes the sole starter
// of a fresh one and returns immediately. Otherwise the caller reserves a
// transaction id for the next epoch and blocks until the running epoch
// ends.
//
// Returns ok=false, without blocking, if isRO is false and the next
// epoch's read/write reservation (accessset.MaxRWTx ids) is already full.
// This is independent of how many read/write transactions are active in
// the epoch currently running. Read-only admission never refuses.
func (b *Batcher) Enter(isRO bool) (tx TxID, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c0 := b.epoch

	if b.remaining == 0 {
		if isRO {
			tx = accessset.MaxRWTx + b.activeRO
			b.activeRO = 1
		} else {
			tx = b.activeRW
			b.activeRW = 1
		}
		b.remaining = 1
		return tx, true
	}

	if isRO {
		tx = accessset.MaxRWTx + b.activeRO + b.waitingRO
		b.waitingRO++
	} else {
		if b.waitingRW >= accessset.MaxRWTx {
			return 0, false
		}
		tx = b.waitingRW
		b.waitingRW++
	}

	for b.epoch == c0 {
		b.cond.Wait()
	}
	return tx, true
}

// Leave retires a transaction from its epoch. onLastDepart, if non-nil, is
// invoked exactly once, with the batcher's mutex still held, when the
// caller turns out to be the last transaction of the epoch to leave — the
// exclusive window in which the region installs written segments,
// reclaims freed ones, and clears every access set before the next epoch
// is allowed to proceed. onLastDepart must not call back into Enter or
// Leave.
func (b *Batcher) Leave(onLastDepart func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.remaining--
	if b.remaining != 0 {
		return
	}

	if onLastDepart != nil {
		onLastDepart()
	}

	b.activeRW, b.waitingRW = b.waitingRW, 0
	b.activeRO, b.waitingRO = b.waitingRO, 0
	b.remaining = b.activeRW + b.activeRO
	b.epoch++
	b.cond.Broadcast()
}

// Epoch returns the current epoch number. Intended for metrics/logging
// only; never used as a gating condition by a waiter (see package doc).
func (b *Batcher) Epoch() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.epoch
}

// Outstanding returns the number of transactions admitted to the current
// epoch that have not yet left. Diagnostics only.
func (b *Batcher) Outstanding() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}
