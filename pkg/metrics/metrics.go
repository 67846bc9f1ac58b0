// Package metrics provides Prometheus instrumentation for lock
// acquisition, the joinable byte stream, and global lock admission. A
// nil *Metrics is valid and every method on it is a no-op, so callers
// that don't want metrics can pass nil straight through.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Label values for the outcome dimension shared across several metrics.
const (
	OutcomeAdmitted  = "admitted"
	OutcomeDenied    = "denied"
	OutcomeTimedOut  = "timed_out"
	OutcomeCancelled = "cancelled"
)

// Metrics holds every Prometheus collector partyline reports. A nil
// *Metrics is safe to call methods on.
type Metrics struct {
	lockWaitSeconds       *prometheus.HistogramVec
	lockAttemptsTotal     *prometheus.CounterVec
	holders               *prometheus.GaugeVec
	joinableReaders       prometheus.Gauge
	joinableBytesWritten  prometheus.Counter
	globalLockRetryTotal  *prometheus.CounterVec
	globalLockHeldPaths   prometheus.Gauge

	registered bool
}

// New creates lock, joinable-stream, and global-lock metrics. If
// registry is nil, the collectors are created but never registered,
// which is useful in tests that want typed access without a live
// registry.
func New(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		lockWaitSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "partyline",
				Subsystem: "lock",
				Name:      "wait_seconds",
				Help:      "Time spent waiting for lock admission on a path.",
				Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"level"},
		),
		lockAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "partyline",
				Subsystem: "lock",
				Name:      "attempts_total",
				Help:      "Total lock acquisition attempts by level and outcome.",
			},
			[]string{"level", "outcome"},
		),
		holders: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "partyline",
				Subsystem: "lock",
				Name:      "holders",
				Help:      "Number of reference holders currently admitted on a path's lock.",
			},
			[]string{"level"},
		),
		joinableReaders: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "partyline",
				Subsystem: "joinable",
				Name:      "readers",
				Help:      "Number of readers currently joined to an in-progress write.",
			},
		),
		joinableBytesWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "partyline",
				Subsystem: "joinable",
				Name:      "bytes_written_total",
				Help:      "Total bytes written through joinable output streams.",
			},
		),
		globalLockRetryTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "partyline",
				Subsystem: "global_lock",
				Name:      "retries_total",
				Help:      "Total retry attempts made by the distributed lock manager.",
			},
			[]string{"level"},
		),
		globalLockHeldPaths: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "partyline",
				Subsystem: "global_lock",
				Name:      "held_paths",
				Help:      "Number of distinct paths this node currently holds a global lock on.",
			},
		),
	}

	if registry != nil {
		registry.MustRegister(
			m.lockWaitSeconds,
			m.lockAttemptsTotal,
			m.holders,
			m.joinableReaders,
			m.joinableBytesWritten,
			m.globalLockRetryTotal,
			m.globalLockHeldPaths,
		)
		m.registered = true
	}

	return m
}

// ObserveLockWait records time spent waiting for admission at level.
func (m *Metrics) ObserveLockWait(level string, seconds float64) {
	if m == nil {
		return
	}
	m.lockWaitSeconds.WithLabelValues(level).Observe(seconds)
}

// ObserveLockAttempt records the terminal outcome of one acquisition
// attempt.
func (m *Metrics) ObserveLockAttempt(level, outcome string) {
	if m == nil {
		return
	}
	m.lockAttemptsTotal.WithLabelValues(level, outcome).Inc()
}

// SetHolders reports the current reference count for level on some path.
func (m *Metrics) SetHolders(level string, count float64) {
	if m == nil {
		return
	}
	m.holders.WithLabelValues(level).Set(count)
}

// SetJoinableReaders reports how many readers are joined across all
// currently open joinable files.
func (m *Metrics) SetJoinableReaders(count float64) {
	if m == nil {
		return
	}
	m.joinableReaders.Set(count)
}

// AddJoinableBytesWritten records bytes written through an output
// stream.
func (m *Metrics) AddJoinableBytesWritten(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.joinableBytesWritten.Add(float64(n))
}

// IncGlobalLockRetry records one retried admission attempt against the
// distributed store.
func (m *Metrics) IncGlobalLockRetry(level string) {
	if m == nil {
		return
	}
	m.globalLockRetryTotal.WithLabelValues(level).Inc()
}

// SetGlobalLockHeldPaths reports how many paths this node currently
// holds a global lock on.
func (m *Metrics) SetGlobalLockHeldPaths(count float64) {
	if m == nil {
		return
	}
	m.globalLockHeldPaths.Set(count)
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	if m == nil || !m.registered {
		return
	}
	m.lockWaitSeconds.Describe(ch)
	m.lockAttemptsTotal.Describe(ch)
	m.holders.Describe(ch)
	ch <- m.joinableReaders.Desc()
	ch <- m.joinableBytesWritten.Desc()
	m.globalLockRetryTotal.Describe(ch)
	ch <- m.globalLockHeldPaths.Desc()
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	if m == nil || !m.registered {
		return
	}
	m.lockWaitSeconds.Collect(ch)
	m.lockAttemptsTotal.Collect(ch)
	m.holders.Collect(ch)
	ch <- m.joinableReaders
	ch <- m.joinableBytesWritten
	m.globalLockRetryTotal.Collect(ch)
	ch <- m.globalLockHeldPaths
}
