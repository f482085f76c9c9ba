package sessionstore

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors updated by a Store.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	lockWait   prometheus.Histogram
	reaped     prometheus.Counter
}

// NewMetrics creates unregistered collectors under the given namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_operations_total",
				Help:      "Session store operations by operation and result.",
			},
			[]string{"op", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_operation_duration_seconds",
				Help:      "Time spent in the backing store per operation, lock wait excluded.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		lockWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_lock_wait_seconds",
				Help:      "Time spent waiting for the backing connection.",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
		),
		reaped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_reaped_total",
				Help:      "Expired session records removed by the reaper.",
			},
		),
	}
}

// Collectors returns every collector, for custom registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.operations, m.duration, m.lockWait, m.reaped}
}

// Register registers all collectors with r.
func (m *Metrics) Register(r prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) observeWait(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}

func (m *Metrics) observe(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(op).Observe(d.Seconds())
	m.operations.WithLabelValues(op, resultLabel(err)).Inc()
}

func (m *Metrics) addReaped(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.reaped.Add(float64(n))
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrRecordMissing):
		return "missing"
	case errors.Is(err, ErrKeyExists):
		return "collision"
	default:
		return "error"
	}
}
