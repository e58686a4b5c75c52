package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	SweepErrorTypeDeadlineExceeded = "deadline_exceeded"
	SweepErrorTypeDB               = "db"
	SweepErrorTypeExternal         = "external"
	SweepErrorTypeUnknown          = "unknown"
)

// Config carries the static labels applied to every sweep metric.
type Config struct {
	ServiceName string
	Environment string
}

func (c Config) withDefaults() Config {
	if c.ServiceName == "" {
		c.ServiceName = "clubgate"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	return c
}

// SweepMetrics captures reconciliation sweep health signals.
type SweepMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	errorsTotal *prometheus.CounterVec
	expired     *prometheus.CounterVec
	revoked     *prometheus.CounterVec
	deferred    *prometheus.CounterVec

	service     string
	environment string
}

var (
	sweepMetricsOnce sync.Once
	sweepMetrics     *SweepMetrics
)

// Sweep returns the singleton sweep metrics registry.
func Sweep() *SweepMetrics {
	return SweepWithConfig(Config{})
}

// SweepWithConfig returns the singleton sweep metrics registry using config labels.
func SweepWithConfig(cfg Config) *SweepMetrics {
	sweepMetricsOnce.Do(func() {
		sweepMetrics = newSweepMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return sweepMetrics
}

// ResetSweepMetricsForTest clears the singleton so tests can swap registries.
func ResetSweepMetricsForTest() {
	sweepMetricsOnce = sync.Once{}
	sweepMetrics = nil
}

func newSweepMetrics(reg prometheus.Registerer, cfg Config) *SweepMetrics {
	cfg = cfg.withDefaults()
	constLabels := prometheus.Labels{
		"service": cfg.ServiceName,
		"env":     cfg.Environment,
	}

	m := &SweepMetrics{
		service:     cfg.ServiceName,
		environment: cfg.Environment,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "clubgate_sweep_runs_total",
			Help:        "Number of sweep invocations.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "clubgate_sweep_duration_seconds",
			Help:        "Duration of sweep passes.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}, []string{"job"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "clubgate_sweep_errors_total",
			Help:        "Sweep errors by type.",
			ConstLabels: constLabels,
		}, []string{"job", "reason"}),
		expired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "clubgate_sweep_subscriptions_expired_total",
			Help:        "Subscriptions transitioned ACTIVE to EXPIRED by the sweep.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		revoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "clubgate_sweep_members_revoked_total",
			Help:        "Group memberships revoked by the sweep.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		deferred: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "clubgate_sweep_revocations_deferred_total",
			Help:        "Candidates expired but not revoked, retried next pass.",
			ConstLabels: constLabels,
		}, []string{"job"}),
	}

	for _, c := range []prometheus.Collector{m.runs, m.duration, m.errorsTotal, m.expired, m.revoked, m.deferred} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				panic(err)
			}
		}
	}

	return m
}

func (m *SweepMetrics) IncRun(job string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(job).Inc()
}

func (m *SweepMetrics) ObserveDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *SweepMetrics) IncError(job string, err error) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(job, classifySweepError(err)).Inc()
}

func (m *SweepMetrics) AddExpired(job string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.expired.WithLabelValues(job).Add(float64(n))
}

func (m *SweepMetrics) AddRevoked(job string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.revoked.WithLabelValues(job).Add(float64(n))
}

func (m *SweepMetrics) AddDeferred(job string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.deferred.WithLabelValues(job).Add(float64(n))
}

func classifySweepError(err error) string {
	switch {
	case err == nil:
		return SweepErrorTypeUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return SweepErrorTypeDeadlineExceeded
	default:
		return SweepErrorTypeUnknown
	}
}
