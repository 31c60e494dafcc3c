package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus collectors for the recalculation engine. A nil
// *Metrics is safe to call; services treat metrics as optional.
type Metrics struct {
	sweepDuration   prometheus.Histogram
	limitsEvaluated prometheus.Counter
	limitsSkipped   prometheus.Counter
	breachesOpened  *prometheus.CounterVec
	breachesClosed  prometheus.Counter
	lockContention  prometheus.Counter
	staleLockClaims prometheus.Counter
}

// NewMetrics registers the engine collectors on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		sweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "raf",
			Subsystem: "recalc",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of organization recalculation sweeps.",
			Buckets:   prometheus.DefBuckets,
		}),
		limitsEvaluated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "raf",
			Subsystem: "recalc",
			Name:      "limits_evaluated_total",
			Help:      "Tolerance limits evaluated across all sweeps.",
		}),
		limitsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "raf",
			Subsystem: "recalc",
			Name:      "limits_skipped_total",
			Help:      "Tolerance limits skipped due to isolated per-limit failures.",
		}),
		breachesOpened: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raf",
			Subsystem: "appetite",
			Name:      "breaches_opened_total",
			Help:      "Appetite breaches recorded, by RAG level.",
		}, []string{"level"}),
		breachesClosed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "raf",
			Subsystem: "appetite",
			Name:      "breaches_resolved_total",
			Help:      "Appetite breaches resolved by de-escalation.",
		}),
		lockContention: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "raf",
			Subsystem: "recalc",
			Name:      "lock_contention_total",
			Help:      "Recalculation attempts rejected because the organization lock was held.",
		}),
		staleLockClaims: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "raf",
			Subsystem: "recalc",
			Name:      "stale_lock_reclaims_total",
			Help:      "Locks forcibly reclaimed from abandoned runs.",
		}),
	}
}

func (m *Metrics) ObserveSweep(d time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(d.Seconds())
}

func (m *Metrics) LimitEvaluated() {
	if m == nil {
		return
	}
	m.limitsEvaluated.Inc()
}

func (m *Metrics) LimitSkipped() {
	if m == nil {
		return
	}
	m.limitsSkipped.Inc()
}

func (m *Metrics) BreachOpened(level string) {
	if m == nil {
		return
	}
	m.breachesOpened.WithLabelValues(level).Inc()
}

func (m *Metrics) BreachResolved() {
	if m == nil {
		return
	}
	m.breachesClosed.Inc()
}

func (m *Metrics) LockContended() {
	if m == nil {
		return
	}
	m.lockContention.Inc()
}

func (m *Metrics) StaleLockReclaimed() {
	if m == nil {
		return
	}
	m.staleLockClaims.Inc()
}
