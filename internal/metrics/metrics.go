// Package metrics records keystore operation counts, results and latency,
// both as atomic totals and as Prometheus collectors.
package metrics

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	kserr "github.com/mrz1836/keystore/pkg/errors"
)

// DefaultNamespace prefixes every exported metric name.
const DefaultNamespace = "keystore"

// resultOK is the result label of a successful operation.
const resultOK = "ok"

// Metrics holds operation metrics. The zero value records atomic totals
// only; New adds Prometheus collectors.
type Metrics struct {
	opsTotal     atomic.Int64
	opsErrors    atomic.Int64
	latencyNanos atomic.Int64

	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// New creates metrics whose collectors are registered with reg.
// A nil reg leaves the collectors unregistered. Collectors that are already
// registered under the same names are reused.
func New(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Keystore operations by name and result.",
	}, []string{"operation", "result"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "Keystore operation latency.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"operation"})

	if reg != nil {
		var err error
		if operations, err = register(reg, operations); err != nil {
			return nil, err
		}
		if duration, err = register(reg, duration); err != nil {
			return nil, err
		}
	}

	return &Metrics{operations: operations, duration: duration}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Record records one operation with its duration and outcome.
func (m *Metrics) Record(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}

	m.opsTotal.Add(1)
	m.latencyNanos.Add(duration.Nanoseconds())
	if err != nil {
		m.opsErrors.Add(1)
	}

	if m.operations != nil {
		m.operations.WithLabelValues(operation, Result(err)).Inc()
	}
	if m.duration != nil {
		m.duration.WithLabelValues(operation).Observe(duration.Seconds())
	}
}

// Result returns the result label for err: "ok", or the lower-cased error code.
func Result(err error) string {
	if err == nil {
		return resultOK
	}
	return strings.ToLower(kserr.Code(err))
}

// Snapshot is a point-in-time copy of the totals.
type Snapshot struct {
	OpsTotal     int64
	OpsErrors    int64
	LatencyNanos int64
}

// Snapshot returns a point-in-time copy of the totals.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		OpsTotal:     m.opsTotal.Load(),
		OpsErrors:    m.opsErrors.Load(),
		LatencyNanos: m.latencyNanos.Load(),
	}
}

// OpsTotal returns the number of recorded operations.
func (m *Metrics) OpsTotal() int64 {
	return m.opsTotal.Load()
}

// OpsErrors returns the number of recorded operations that failed.
func (m *Metrics) OpsErrors() int64 {
	return m.opsErrors.Load()
}

// LatencyAvgMs returns the average operation latency in milliseconds.
// Returns 0 if nothing has been recorded.
func (m *Metrics) LatencyAvgMs() float64 {
	ops := m.opsTotal.Load()
	if ops == 0 {
		return 0
	}
	return float64(m.latencyNanos.Load()) / float64(ops) / 1e6
}

// Reset zeroes the atomic totals. Prometheus collectors are left as is.
func (m *Metrics) Reset() {
	m.opsTotal.Store(0)
	m.opsErrors.Store(0)
	m.latencyNanos.Store(0)
}
