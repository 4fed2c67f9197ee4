package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tessera-run/tessera/pkg/engine"
)

// Metrics provides Prometheus metrics for marker resolution and discovery.
// It implements engine.Observer. A disabled Metrics is a no-op.
type Metrics struct {
	config MetricsConfig

	// Resolution metrics
	resolutions        *prometheus.CounterVec
	resolutionDuration *prometheus.HistogramVec
	resolutionLevels   *prometheus.HistogramVec
	markersSkipped     *prometheus.CounterVec
	policyDefaults     *prometheus.CounterVec

	// Discovery metrics
	discoveryRuns     *prometheus.CounterVec
	discoveryDuration prometheus.Histogram
	testsDiscovered   *prometheus.GaugeVec
	violations        *prometheus.CounterVec

	// Cache metrics
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter

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

		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Total number of marker resolutions",
			},
			[]string{"kind"},
		),
		resolutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolution_duration_seconds",
				Help:      "Duration of marker resolutions in seconds",
				Buckets:   buckets,
			},
			[]string{"kind"},
		),
		resolutionLevels: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolution_levels",
				Help:      "Number of hierarchy levels inspected per resolution",
				Buckets:   prometheus.LinearBuckets(1, 1, engine.MaxInheritanceDepth),
			},
			[]string{"kind"},
		),
		markersSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "markers_skipped_total",
				Help:      "Total number of attribute records that could not be materialized",
			},
			[]string{"code"},
		),
		policyDefaults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "usage_policy_defaults_total",
				Help:      "Total number of usage policy lookups that fell back to allow-multiple",
			},
			[]string{"marker"},
		),

		discoveryRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "discovery_runs_total",
				Help:      "Total number of discovery passes",
			},
			[]string{"status"},
		),
		discoveryDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "discovery_duration_seconds",
				Help:      "Duration of discovery passes in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		testsDiscovered: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tests_discovered",
				Help:      "Number of tests found by the last discovery pass",
			},
			[]string{"assembly"},
		),
		violations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_violations_total",
				Help:      "Total number of lint policy violations",
			},
			[]string{"policy", "severity"},
		),

		cacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolution_cache_hits_total",
				Help:      "Total number of memoized resolutions served from cache",
			},
		),
		cacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolution_cache_misses_total",
				Help:      "Total number of memoized resolutions computed",
			},
		),
	}

	registry.MustRegister(
		m.resolutions,
		m.resolutionDuration,
		m.resolutionLevels,
		m.markersSkipped,
		m.policyDefaults,
		m.discoveryRuns,
		m.discoveryDuration,
		m.testsDiscovered,
		m.violations,
		m.cacheHits,
		m.cacheMisses,
	)

	return m, nil
}

// Resolution Metrics

// ObserveResolution implements engine.Observer.
func (m *Metrics) ObserveResolution(kind engine.Kind, levels, _ int, d time.Duration) {
	if m.resolutions == nil {
		return
	}
	m.resolutions.WithLabelValues(kind.String()).Inc()
	m.resolutionDuration.WithLabelValues(kind.String()).Observe(d.Seconds())
	m.resolutionLevels.WithLabelValues(kind.String()).Observe(float64(levels))
}

// ObserveSkipped implements engine.Observer.
func (m *Metrics) ObserveSkipped(_, code string) {
	if m.markersSkipped == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	m.markersSkipped.WithLabelValues(code).Inc()
}

// ObservePolicyDefault implements engine.Observer.
func (m *Metrics) ObservePolicyDefault(marker string) {
	if m.policyDefaults == nil {
		return
	}
	m.policyDefaults.WithLabelValues(marker).Inc()
}

// Discovery Metrics

// RecordDiscovery records a completed discovery pass.
func (m *Metrics) RecordDiscovery(status string, duration time.Duration) {
	if m.discoveryRuns == nil {
		return
	}
	m.discoveryRuns.WithLabelValues(status).Inc()
	m.discoveryDuration.Observe(duration.Seconds())
}

// SetTestsDiscovered sets the number of tests found in an assembly.
func (m *Metrics) SetTestsDiscovered(assembly string, count int) {
	if m.testsDiscovered == nil {
		return
	}
	m.testsDiscovered.WithLabelValues(assembly).Set(float64(count))
}

// RecordViolation records a lint policy violation.
func (m *Metrics) RecordViolation(policy, severity string) {
	if m.violations == nil {
		return
	}
	m.violations.WithLabelValues(policy, severity).Inc()
}

// RecordCache adds memo hit and miss deltas.
func (m *Metrics) RecordCache(hits, misses int64) {
	if m.cacheHits == nil {
		return
	}
	m.cacheHits.Add(float64(hits))
	m.cacheMisses.Add(float64(misses))
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

// Gatherer exposes the registry for tests and embedding; nil when disabled.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m.registry == nil {
		return nil
	}
	return m.registry
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

// StartMetricsServer serves the metrics endpoint until ctx is cancelled.
func (m *Metrics) StartMetricsServer(ctx context.Context, logger zerolog.Logger) error {
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
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("address", m.config.ListenAddress).Msg("Metrics server stopped")
		}
	}()

	return nil
}

var _ engine.Observer = (*Metrics)(nil)
