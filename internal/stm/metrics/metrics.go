// Package metrics defines the Prometheus metric surface a Region exposes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Set holds every counter/gauge/histogram a Region updates. A Set built
// with a nil prometheus.Registerer is fully functional — promauto.With(nil)
// still returns live metric objects, it simply never registers them with a
// collector — so passing metrics through a Region costs nothing when the
// embedder doesn't care to scrape them. The zero Set has nil fields and is
// not usable; build one with New.
type Set struct {
	EpochsTotal          prometheus.Counter
	EpochDurationSeconds prometheus.Histogram
	TxAdmittedTotal      *prometheus.CounterVec
	TxRefusedTotal       prometheus.Counter
	TxAbortedTotal       *prometheus.CounterVec
	TxCommittedTotal     prometheus.Counter
	SegmentsLive         prometheus.Gauge
}

// New builds a Set registered against reg. Pass nil to get metric objects
// that are never scraped.
func New(reg prometheus.Registerer) *Set {
	return &Set{
		EpochsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dvstm_epochs_total",
			Help: "dvstm_epochs_total counts the number of epochs that have completed (every admitted transaction departed).",
		}),
		EpochDurationSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "dvstm_epoch_duration_seconds",
			Help:    "dvstm_epoch_duration_seconds observes the wall-clock time from an epoch's first admission to its last departer's install pass.",
			Buckets: prometheus.DefBuckets,
		}),
		TxAdmittedTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "dvstm_tx_admitted_total",
			Help: "dvstm_tx_admitted_total counts transactions admitted by the batcher, labeled by kind.",
		}, []string{"kind"}),
		TxRefusedTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dvstm_tx_refused_total",
			Help: "dvstm_tx_refused_total counts read/write Begin calls refused because the read/write id quota was exhausted.",
		}),
		TxAbortedTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "dvstm_tx_aborted_total",
			Help: "dvstm_tx_aborted_total counts transactions aborted, labeled by reason.",
		}, []string{"reason"}),
		TxCommittedTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dvstm_tx_committed_total",
			Help: "dvstm_tx_committed_total counts transactions that reached End without aborting.",
		}),
		SegmentsLive: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dvstm_segments_live",
			Help: "dvstm_segments_live reports the number of live segments as of the most recent epoch boundary.",
		}),
	}
}

// Abort reasons used as the "reason" label on TxAbortedTotal.
const (
	ReasonConflict     = "conflict"
	ReasonOOM          = "oom"
	ReasonOverflow     = "overflow"
	ReasonFirstSegment = "first_segment"
)

// Admission kinds used as the "kind" label on TxAdmittedTotal.
const (
	KindReadOnly  = "ro"
	KindReadWrite = "rw"
)
