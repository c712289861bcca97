package keystore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/mrz1836/keystore/internal/metrics"
	"github.com/mrz1836/keystore/internal/ratelimit"
	"github.com/mrz1836/keystore/pkg/wallet"
)

// Option configures a Manager.
type Option func(*options)

type options struct {
	logger           logrus.FieldLogger
	registerer       prometheus.Registerer
	metricsNamespace string
	limiter          *ratelimit.Limiter
	encryption       wallet.Encryption
}

// WithLogger sets the logger. Without it the manager logs nothing.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics registers the manager's Prometheus collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithMetricsNamespace overrides the metric name prefix.
func WithMetricsNamespace(namespace string) Option {
	return func(o *options) {
		o.metricsNamespace = namespace
	}
}

// WithPasswordRateLimit throttles password attempts to perMinute per
// wallet, allowing bursts of burst attempts.
func WithPasswordRateLimit(perMinute float64, burst int) Option {
	return func(o *options) {
		o.limiter = ratelimit.New(perMinute, burst)
	}
}

// WithDefaultEncryption sets the encryption used when an import passes
// the zero Encryption.
func WithDefaultEncryption(enc wallet.Encryption) Option {
	return func(o *options) {
		o.encryption = enc
	}
}

func (o *options) buildMetrics(log logrus.FieldLogger) *metrics.Metrics {
	m, err := metrics.New(o.metricsNamespace, o.registerer)
	if err != nil {
		log.WithError(err).Warn("metrics registration failed, collectors not exported")
		m, _ = metrics.New(o.metricsNamespace, nil)
	}
	return m
}
