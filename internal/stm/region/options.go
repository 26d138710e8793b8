package region

import (
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kolkov/dvstm/internal/stm/metrics"
)

// Option configures a Region at construction time. Neither option affects
// the algorithm: a Region built with no options has a fully-functional,
// unregistered metrics.Set and a no-op logger.
type Option func(*Region)

// WithRegisterer registers the Region's metrics against reg. Passing nil
// (the default) produces metric objects that are never scraped.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(r *Region) {
		r.metrics = metrics.New(reg)
	}
}

// WithLogger sets the structured logger events are emitted to. The
// default is log.NewNopLogger().
func WithLogger(logger log.Logger) Option {
	return func(r *Region) {
		r.logger = logger
	}
}
