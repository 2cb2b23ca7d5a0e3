package metrics

import "github.com/prometheus/client_golang/prometheus"

// AnchorMetrics tracks the health of the external anchoring pipeline.
type AnchorMetrics struct {
	pending        prometheus.Gauge
	degraded       prometheus.Gauge
	publishFailure prometheus.Counter
	anchored       prometheus.Counter
}

// NewAnchorMetrics registers the anchoring metrics on the provided registerer.
func NewAnchorMetrics(reg prometheus.Registerer) *AnchorMetrics {
	if reg == nil {
		return &AnchorMetrics{}
	}
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "anchor_backlog_pending",
		Help: "Ledger records awaiting anchor submission.",
	})
	degraded := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "anchor_degraded",
		Help: "Whether the system is in anchor-degraded mode (1) or not (0).",
	})
	publishFailure := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "anchor_publish_failures_total",
		Help: "Failed anchor submissions.",
	})
	anchored := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "anchor_records_anchored_total",
		Help: "Ledger records successfully anchored.",
	})
	reg.MustRegister(pending, degraded, publishFailure, anchored)
	return &AnchorMetrics{
		pending:        pending,
		degraded:       degraded,
		publishFailure: publishFailure,
		anchored:       anchored,
	}
}

// SetPending records the current backlog depth.
func (a *AnchorMetrics) SetPending(count int64) {
	if a == nil || a.pending == nil {
		return
	}
	a.pending.Set(float64(count))
}

// SetDegraded records whether degraded mode is active.
func (a *AnchorMetrics) SetDegraded(active bool) {
	if a == nil || a.degraded == nil {
		return
	}
	if active {
		a.degraded.Set(1)
		return
	}
	a.degraded.Set(0)
}

// IncPublishFailure counts one failed anchor submission.
func (a *AnchorMetrics) IncPublishFailure() {
	if a == nil || a.publishFailure == nil {
		return
	}
	a.publishFailure.Inc()
}

// IncAnchored counts one successfully anchored record.
func (a *AnchorMetrics) IncAnchored() {
	if a == nil || a.anchored == nil {
		return
	}
	a.anchored.Inc()
}
