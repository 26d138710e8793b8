// Package txn defines the identity of a single transaction as handed to a
// caller: its batcher-assigned id and its read-only/read-write kind.
//
// The region package owns every other piece of a transaction's state
// (its history log, its access-set bit) internally, keyed by this id —
// Tx itself is just the handle a client holds between Begin and End, and
// is exclusively owned by the goroutine that obtained it until End
// returns.
package txn

// Tx identifies one admitted transaction.
type Tx struct {
	// ID is this transaction's batcher-assigned id. Read/write ids are in
	// [0, accessset.MaxRWTx); read-only ids are in
	// [accessset.MaxRWTx, ...).
	ID uint64

	// ReadOnly reports whether this transaction may only call Read.
	ReadOnly bool
}

// New returns the handle for a transaction admitted with the given
// batcher-assigned id and kind.
func New(id uint64, readOnly bool) Tx {
	return Tx{ID: id, ReadOnly: readOnly}
}
