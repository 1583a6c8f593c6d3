package keel

import (
	"errors"
	"reflect"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects resolution metrics for one or more registries. Install it
// with WithMetrics; a single Metrics value may be shared across a registry
// tree, with the registry display name as a label.
type Metrics struct {
	Resolutions *prometheus.CounterVec
	Failures    *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
}

// NewMetrics creates the resolution metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "keel",
				Subsystem: "registry",
				Name:      "resolutions_total",
				Help:      "Total number of service resolution requests",
			},
			[]string{"registry"},
		),

		Failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "keel",
				Subsystem: "registry",
				Name:      "failures_total",
				Help:      "Total number of failed resolutions by error code",
			},
			[]string{"registry", "code"},
		),

		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "keel",
				Subsystem: "registry",
				Name:      "resolution_duration_seconds",
				Help:      "Service resolution duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"registry"},
		),
	}
}

// Register registers all collectors with the given registerer.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, collector := range []prometheus.Collector{m.Resolutions, m.Failures, m.Duration} {
		if err := reg.Register(collector); err != nil {
			return err
		}
	}

	return nil
}

// BeforeResolve implements Interceptor.
func (m *Metrics) BeforeResolve(registry string, t reflect.Type) error {
	m.Resolutions.WithLabelValues(registry).Inc()

	return nil
}

// AfterResolve implements Interceptor.
func (m *Metrics) AfterResolve(registry string, t reflect.Type, value any, elapsed time.Duration, err error) {
	m.Duration.WithLabelValues(registry).Observe(elapsed.Seconds())

	if err != nil {
		m.Failures.WithLabelValues(registry, errorCode(err)).Inc()
	}
}

// errorCode classifies an error for the failure counter.
func errorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return "UNKNOWN"
}
