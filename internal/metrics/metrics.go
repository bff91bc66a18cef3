// Package metrics exposes document activity as Prometheus metrics.
//
// Collectors implements ydoc.Recorder; pass it to ydoc.WithMetrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors holds the document metrics. Create one per registry.
type Collectors struct {
	TransactionsCommitted *prometheus.CounterVec
	IntegrationErrors     *prometheus.CounterVec
	UpdatesApplied        prometheus.Counter
	UpdateBytes           prometheus.Histogram
}

// New creates the collectors without registering them.
func New() *Collectors {
	return &Collectors{
		TransactionsCommitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ydoc_transactions_committed_total",
			Help: "Committed transactions by what triggered the commit",
		}, []string{"trigger"}),
		IntegrationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ydoc_integration_errors_total",
			Help: "Failed container operations by error code",
		}, []string{"code"}),
		UpdatesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ydoc_updates_applied_total",
			Help: "Binary updates applied to documents",
		}),
		UpdateBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ydoc_update_bytes",
			Help:    "Size of applied binary updates in bytes",
			Buckets: prometheus.ExponentialBuckets(16, 4, 10),
		}),
	}
}

// Register registers the collectors on reg (or the default registerer if
// nil). Collectors that are already registered are not an error.
func (c *Collectors) Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, col := range []prometheus.Collector{
		c.TransactionsCommitted,
		c.IntegrationErrors,
		c.UpdatesApplied,
		c.UpdateBytes,
	} {
		if err := reg.Register(col); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

// TransactionCommitted counts a commit.
func (c *Collectors) TransactionCommitted(trigger string) {
	c.TransactionsCommitted.WithLabelValues(trigger).Inc()
}

// IntegrationFailed counts a failed operation.
func (c *Collectors) IntegrationFailed(code string) {
	c.IntegrationErrors.WithLabelValues(code).Inc()
}

// UpdateApplied counts an applied update of size bytes.
func (c *Collectors) UpdateApplied(size int) {
	c.UpdatesApplied.Inc()
	c.UpdateBytes.Observe(float64(size))
}
