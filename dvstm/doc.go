// Package dvstm implements a dual-versioned software transactional memory
// region: shared memory organized into fixed-size, word-aligned segments,
// accessed through snapshot-isolated transactions batched into epochs.
//
// # Quick Start
//
//	region, err := dvstm.New(4096, 8)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer region.Close()
//
//	tx, err := region.Begin(false) // read/write
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := tx.Write([]byte{1, 2, 3, 4, 5, 6, 7, 8}, 8, region.Start()); err != nil {
//		log.Fatal(err)
//	}
//	if err := tx.End(); err != nil {
//		log.Fatal(err)
//	}
//
// # Model
//
// A Region is created with one permanent segment ([Region.Start]) and
// grows by [Tx.Alloc]. Every segment carries two byte-for-byte
// equal-sized copies: one visible to read-only transactions, one mutated
// by read/write transactions. Transactions are grouped into epochs: every
// transaction admitted to an epoch runs concurrently against every other
// transaction of that epoch, conflicts are resolved per word via a fused
// access-set bitmap, and the last transaction to depart an epoch installs
// every written segment's working copy into its read-only snapshot before
// the next epoch begins.
//
// # API Overview
//
// The package provides:
//   - Region construction and lifecycle: [New], [Region.Close]
//   - Region geometry: [Region.Start], [Region.Size], [Region.Align]
//   - Transaction admission: [Region.Begin]
//   - Transaction operations: [Tx.Read], [Tx.Write], [Tx.Alloc], [Tx.Free], [Tx.End]
//   - Observability: [Region.Stats], [WithRegisterer], [WithLogger]
//   - Version information: [GetInfo], [Version]
//
// # Concurrency limits
//
// At most [GetInfo]().Limits.MaxReadWriteTx read/write transactions may be
// outstanding in a single epoch; a [Region.Begin] call that would exceed
// this returns [ErrQuotaExceeded] immediately rather than blocking.
// Read-only admission is never refused.
//
// # Links
//
// Project repository:
// https://github.com/kolkov/dvstm
//
// Documentation:
// https://pkg.go.dev/github.com/kolkov/dvstm
package dvstm
