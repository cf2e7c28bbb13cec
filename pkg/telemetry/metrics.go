package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for generation passes.
type Metrics struct {
	config MetricsConfig

	// Pass metrics
	passesStarted   prometheus.Counter
	passesCompleted *prometheus.CounterVec
	passDuration    *prometheus.HistogramVec
	stageDuration   *prometheus.HistogramVec

	// Model metrics
	declarations *prometheus.GaugeVec

	// Output metrics
	filesWritten *prometheus.CounterVec

	// Error metrics
	errorsByKind *prometheus.CounterVec

	// Update check metrics
	updateChecks   *prometheus.CounterVec
	updateDuration prometheus.Histogram

	// Policy metrics
	policyFindings *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		passesStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "passes_started_total",
				Help:      "Total number of generation passes started",
			},
		),
		passesCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "passes_completed_total",
				Help:      "Total number of generation passes completed",
			},
			[]string{"status"},
		),
		passDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pass_duration_seconds",
				Help:      "Duration of generation passes in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of each pass stage in seconds",
				Buckets:   buckets,
			},
			[]string{"stage", "status"},
		),
		declarations: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "declarations",
				Help:      "Declarations in the last finalized build, by category",
			},
			[]string{"category"},
		),
		filesWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "output_files_total",
				Help:      "Generated files by outcome (written or unchanged)",
			},
			[]string{"outcome"},
		),
		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of failed passes by error kind",
			},
			[]string{"kind"},
		),
		updateChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "update_checks_total",
				Help:      "Dependency update checks by result",
			},
			[]string{"result"},
		),
		updateDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "update_check_duration_seconds",
				Help:      "Duration of a full update check round in seconds",
				Buckets:   buckets,
			},
		),
		policyFindings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_findings_total",
				Help:      "Lint policy findings by policy and severity",
			},
			[]string{"policy", "severity"},
		),
	}

	registry.MustRegister(
		m.passesStarted,
		m.passesCompleted,
		m.passDuration,
		m.stageDuration,
		m.declarations,
		m.filesWritten,
		m.errorsByKind,
		m.updateChecks,
		m.updateDuration,
		m.policyFindings,
	)

	return m, nil
}

// RecordPassStarted increments the counter for started passes.
func (m *Metrics) RecordPassStarted() {
	if m.passesStarted == nil {
		return
	}
	m.passesStarted.Inc()
}

// RecordPassCompleted records a finished pass with its status and duration.
func (m *Metrics) RecordPassCompleted(status string, duration time.Duration) {
	if m.passesCompleted == nil {
		return
	}
	m.passesCompleted.WithLabelValues(status).Inc()
	m.passDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordStage records the duration of one pass stage.
func (m *Metrics) RecordStage(stage string, duration time.Duration, err error) {
	if m.stageDuration == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.stageDuration.WithLabelValues(stage, status).Observe(duration.Seconds())
}

// SetDeclarations sets the number of declarations in a category.
func (m *Metrics) SetDeclarations(category string, count int) {
	if m.declarations == nil {
		return
	}
	m.declarations.WithLabelValues(category).Set(float64(count))
}

// RecordFileWrite records whether a generated file was rewritten.
func (m *Metrics) RecordFileWrite(changed bool) {
	if m.filesWritten == nil {
		return
	}
	outcome := "unchanged"
	if changed {
		outcome = "written"
	}
	m.filesWritten.WithLabelValues(outcome).Inc()
}

// RecordError records a failed pass by error kind.
func (m *Metrics) RecordError(kind string) {
	if m.errorsByKind == nil {
		return
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
}

// RecordUpdateCheck records the result of one dependency's update check.
func (m *Metrics) RecordUpdateCheck(result string) {
	if m.updateChecks == nil {
		return
	}
	m.updateChecks.WithLabelValues(result).Inc()
}

// ObserveUpdateRound records how long a full update check round took.
func (m *Metrics) ObserveUpdateRound(duration time.Duration) {
	if m.updateDuration == nil {
		return
	}
	m.updateDuration.Observe(duration.Seconds())
}

// RecordPolicyFinding records one lint finding.
func (m *Metrics) RecordPolicyFinding(policy, severity string) {
	if m.policyFindings == nil {
		return
	}
	m.policyFindings.WithLabelValues(policy, severity).Inc()
}

// WriteTextfile writes the registry to the configured textfile path. It is a no-op
// when metrics are disabled or no path is configured.
func (m *Metrics) WriteTextfile() error {
	if m.registry == nil || m.config.TextfilePath == "" {
		return nil
	}
	return prometheus.WriteToTextfile(m.config.TextfilePath, m.registry)
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

// Serve exposes the metrics endpoint on the configured address until ctx is done.
// It returns immediately when no address is configured.
func (m *Metrics) Serve(ctx context.Context) error {
	if m.registry == nil || m.config.ListenAddress == "" {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
