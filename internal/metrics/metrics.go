package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the session gate.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Resolutions          *prometheus.CounterVec
	ResolveDuration      prometheus.Histogram
	SignOuts             *prometheus.CounterVec
	DiscardedResolutions prometheus.Counter
}

// New registers the gate metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "horizon_gate_resolutions_total",
			Help: "Session resolutions by resulting status",
		}, []string{"status"}),
		ResolveDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "horizon_gate_resolve_duration_seconds",
			Help:    "Duration of identity provider lookups",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		SignOuts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "horizon_gate_signouts_total",
			Help: "Sign-outs by remote revocation result",
		}, []string{"result"}),
		DiscardedResolutions: f.NewCounter(prometheus.CounterOpts{
			Name: "horizon_gate_discarded_resolutions_total",
			Help: "Resolutions that settled after their view was unmounted or superseded",
		}),
	}
}

// ObserveResolution records one resolution outcome.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveResolution(status string, start time.Time) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(status).Inc()
	m.ResolveDuration.Observe(time.Since(start).Seconds())
}

// IncSignOut records a sign-out; revoked is false when the remote call failed.
func (m *Metrics) IncSignOut(revoked bool) {
	if m == nil {
		return
	}
	result := "revoked"
	if !revoked {
		result = "revoke_failed"
	}
	m.SignOuts.WithLabelValues(result).Inc()
}

// IncDiscarded records a resolution whose result was dropped.
func (m *Metrics) IncDiscarded() {
	if m == nil {
		return
	}
	m.DiscardedResolutions.Inc()
}
