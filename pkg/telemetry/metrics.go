package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for planning and execution.
type Metrics struct {
	config MetricsConfig

	// Planning metrics
	seriesPlanned    *prometheus.CounterVec
	worklistsPlanned *prometheus.CounterVec

	// Execution metrics
	jobsExecuted       *prometheus.CounterVec
	jobDuration        *prometheus.HistogramVec
	transfersCommitted *prometheus.CounterVec
	transferVolume     *prometheus.HistogramVec

	// Error metrics
	violationsByCode *prometheus.CounterVec
	errorsByClass    *prometheus.CounterVec
	warningsByCode   *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
// A disabled configuration yields a no-op collector.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	durations := cfg.DurationBuckets
	if len(durations) == 0 {
		durations = prometheus.DefBuckets
	}
	volumes := cfg.VolumeBuckets
	if len(volumes) == 0 {
		volumes = prometheus.ExponentialBuckets(1, 2, 11)
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		seriesPlanned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "series_planned_total",
				Help:      "Total number of worklist series generated",
			},
			[]string{"scenario", "status"},
		),
		worklistsPlanned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worklists_planned_total",
				Help:      "Total number of planned worklists",
			},
			[]string{"variant"},
		),
		jobsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_executed_total",
				Help:      "Total number of executor and writer jobs",
			},
			[]string{"variant", "status"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Duration of job execution in seconds",
				Buckets:   durations,
			},
			[]string{"variant"},
		),
		transfersCommitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfers_committed_total",
				Help:      "Total number of committed atomic transfers",
			},
			[]string{"variant"},
		),
		transferVolume: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transfer_volume_microlitres",
				Help:      "Volume of committed atomic transfers in microlitres",
				Buckets:   volumes,
			},
			[]string{"variant"},
		),
		violationsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfer_violations_total",
				Help:      "Total number of transfer violations by code",
			},
			[]string{"code"},
		),
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		warningsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "warnings_total",
				Help:      "Total number of non-blocking warnings by code",
			},
			[]string{"code"},
		),
	}

	registry.MustRegister(
		m.seriesPlanned,
		m.worklistsPlanned,
		m.jobsExecuted,
		m.jobDuration,
		m.transfersCommitted,
		m.transferVolume,
		m.violationsByCode,
		m.errorsByClass,
		m.warningsByCode,
	)

	return m, nil
}

// RecordSeriesPlanned records a generated series and its worklist variants.
func (m *Metrics) RecordSeriesPlanned(scenario, status string, variants []string) {
	if m == nil || m.seriesPlanned == nil {
		return
	}
	m.seriesPlanned.WithLabelValues(scenario, status).Inc()
	for _, v := range variants {
		m.worklistsPlanned.WithLabelValues(v).Inc()
	}
}

// RecordJob records an executed job with its status and duration.
func (m *Metrics) RecordJob(variant, status string, duration time.Duration) {
	if m == nil || m.jobsExecuted == nil {
		return
	}
	m.jobsExecuted.WithLabelValues(variant, status).Inc()
	m.jobDuration.WithLabelValues(variant).Observe(duration.Seconds())
}

// RecordTransfer records a committed atomic transfer.
func (m *Metrics) RecordTransfer(variant string, volume float64) {
	if m == nil || m.transfersCommitted == nil {
		return
	}
	m.transfersCommitted.WithLabelValues(variant).Inc()
	m.transferVolume.WithLabelValues(variant).Observe(volume)
}

// RecordViolation records a transfer violation.
func (m *Metrics) RecordViolation(code string) {
	if m == nil || m.violationsByCode == nil {
		return
	}
	m.violationsByCode.WithLabelValues(code).Inc()
}

// RecordError records an error by class.
func (m *Metrics) RecordError(class string) {
	if m == nil || m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(class).Inc()
}

// RecordWarning records a non-blocking warning.
func (m *Metrics) RecordWarning(code string) {
	if m == nil || m.warningsByCode == nil {
		return
	}
	m.warningsByCode.WithLabelValues(code).Inc()
}

// Registry returns the metrics registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer(logger *Logger) *http.Server {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(fmt.Sprintf("metrics server error: %v", err))
		}
	}()

	return server
}
