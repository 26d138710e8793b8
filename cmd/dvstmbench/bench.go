package main

import (
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	gofuzz "github.com/google/gofuzz"

	"github.com/kolkov/dvstm"
)

// Report summarizes one benchmark run.
type Report struct {
	Duration   time.Duration
	Committed  int64
	Aborted    int64
	Refused    int64
	Failed     int64
	Latency    *hdrhistogram.Histogram
}

// Print writes a human-readable summary of r to w.
func (r Report) Print(w io.Writer) {
	total := r.Committed + r.Aborted + r.Refused + r.Failed
	fmt.Fprintf(w, "dvstmbench: %d transactions in %s (%.0f tx/s)\n",
		total, r.Duration, float64(total)/r.Duration.Seconds())
	fmt.Fprintf(w, "  committed: %d\n", r.Committed)
	fmt.Fprintf(w, "  aborted:   %d\n", r.Aborted)
	fmt.Fprintf(w, "  refused:   %d\n", r.Refused)
	fmt.Fprintf(w, "  failed:    %d\n", r.Failed)
	if r.Latency != nil && r.Latency.TotalCount() > 0 {
		fmt.Fprintf(w, "  latency (us): p50=%d p90=%d p99=%d max=%d\n",
			r.Latency.ValueAtQuantile(50),
			r.Latency.ValueAtQuantile(90),
			r.Latency.ValueAtQuantile(99),
			r.Latency.Max())
	}
}

// run drives cfg.Workers goroutines against a fresh Region for
// cfg.Duration, each picking a read/write or read-only transaction
// according to cfg.WriteRatio, and returns the aggregate Report.
func run(cfg Config) (Report, error) {
	region, err := dvstm.New(cfg.SegmentSize, cfg.Align)
	if err != nil {
		return Report{}, fmt.Errorf("creating region: %w", err)
	}
	defer region.Close()

	var (
		committed, aborted, refused, failed atomic.Int64
		mu                                   sync.Mutex
		merged                               = hdrhistogram.New(1, 10_000_000, 3)
	)

	deadline := time.Now().Add(cfg.Duration)

	var wg sync.WaitGroup
	wg.Add(cfg.Workers)
	for w := 0; w < cfg.Workers; w++ {
		w := w
		go func() {
			defer wg.Done()

			valueSize := int(roundUp(cfg.ValueSize, cfg.Align))
			fz := gofuzz.NewWithSeed(int64(w)).NilChance(0).NumElements(valueSize, valueSize)
			hist := hdrhistogram.New(1, 10_000_000, 3)
			payload := make([]byte, valueSize)

			var coin float64
			for time.Now().Before(deadline) {
				fz.Fuzz(&coin)
				readOnly := math.Mod(math.Abs(coin), 1.0) >= cfg.WriteRatio

				start := time.Now()
				tx, err := region.Begin(readOnly)
				if err != nil {
					refused.Add(1)
					continue
				}

				if readOnly {
					err = tx.Read(region.Start(), uint64(len(payload)), payload)
				} else {
					fz.Fuzz(&payload)
					err = tx.Write(payload, uint64(len(payload)), region.Start())
				}

				if err != nil {
					aborted.Add(1)
					continue
				}

				if err := tx.End(); err != nil {
					failed.Add(1)
					continue
				}

				committed.Add(1)
				hist.RecordValue(time.Since(start).Microseconds())
			}

			mu.Lock()
			merged.Merge(hist)
			mu.Unlock()
		}()
	}
	wg.Wait()

	return Report{
		Duration:  cfg.Duration,
		Committed: committed.Load(),
		Aborted:   aborted.Load(),
		Refused:   refused.Load(),
		Failed:    failed.Load(),
		Latency:   merged,
	}, nil
}

func roundUp(size, align uint64) uint64 {
	if size == 0 {
		return align
	}
	if rem := size % align; rem != 0 {
		size += align - rem
	}
	return size
}
