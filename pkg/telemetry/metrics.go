package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics provides Prometheus metrics for cdevd. All record methods are
// safe to call on a disabled (no-op) instance.
type Metrics struct {
	config MetricsConfig

	// Event metrics
	eventsProcessed *prometheus.CounterVec
	eventDuration   *prometheus.HistogramVec
	eventsEmitted   *prometheus.CounterVec

	// Rule engine metrics
	rulesetDuration *prometheus.HistogramVec
	parseErrors     *prometheus.CounterVec
	gotoAborts      *prometheus.CounterVec
	loadedRuleSets  *prometheus.GaugeVec
	reloads         *prometheus.CounterVec

	// Device metrics
	coldplugDevices prometheus.Counter
	cgroupUpdates   *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector with the given configuration.
// A disabled configuration yields a no-op instance.
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

		eventsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_processed_total",
				Help:      "Total number of device events processed",
			},
			[]string{"action", "source", "result"},
		),
		eventDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "event_duration_seconds",
				Help:      "Duration of full event processing in seconds",
				Buckets:   buckets,
			},
			[]string{"source"},
		),
		eventsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_emitted_total",
				Help:      "Total number of follow-up events synthesized by rules",
			},
			[]string{"action"},
		),

		rulesetDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ruleset_evaluation_duration_seconds",
				Help:      "Duration of one rule-set evaluation in seconds",
				Buckets:   buckets,
			},
			[]string{"preset"},
		),
		parseErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rule_parse_errors_total",
				Help:      "Total number of rule-file parse errors",
			},
			[]string{"preset"},
		),
		gotoAborts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "goto_aborts_total",
				Help:      "Total number of evaluations aborted by an unresolved goto",
			},
			[]string{"preset"},
		),
		loadedRuleSets: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "loaded_rulesets",
				Help:      "Number of currently loaded rule files",
			},
			[]string{"preset"},
		),
		reloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rules_reloads_total",
				Help:      "Total number of rule reload attempts",
			},
			[]string{"status"},
		),

		coldplugDevices: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "coldplug_devices_total",
				Help:      "Total number of devices enumerated during coldplug scans",
			},
		),
		cgroupUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cgroup_updates_total",
				Help:      "Total number of container cgroup device-rule updates",
			},
			[]string{"manager", "decision"},
		),
	}

	registry.MustRegister(
		m.eventsProcessed,
		m.eventDuration,
		m.eventsEmitted,
		m.rulesetDuration,
		m.parseErrors,
		m.gotoAborts,
		m.loadedRuleSets,
		m.reloads,
		m.coldplugDevices,
		m.cgroupUpdates,
	)

	return m, nil
}

// RecordEvent records a fully processed device event.
func (m *Metrics) RecordEvent(action, source, result string, duration time.Duration) {
	if m.eventsProcessed == nil {
		return
	}
	m.eventsProcessed.WithLabelValues(action, source, result).Inc()
	m.eventDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordEmit records a synthesized follow-up event.
func (m *Metrics) RecordEmit(action string) {
	if m.eventsEmitted == nil {
		return
	}
	m.eventsEmitted.WithLabelValues(action).Inc()
}

// RecordRuleSetEvaluation records the duration of one rule-set run.
func (m *Metrics) RecordRuleSetEvaluation(preset string, duration time.Duration) {
	if m.rulesetDuration == nil {
		return
	}
	m.rulesetDuration.WithLabelValues(preset).Observe(duration.Seconds())
}

// RecordParseError records a rule-file parse failure.
func (m *Metrics) RecordParseError(preset string) {
	if m.parseErrors == nil {
		return
	}
	m.parseErrors.WithLabelValues(preset).Inc()
}

// RecordGotoAbort records an evaluation aborted by an unresolved goto.
func (m *Metrics) RecordGotoAbort(preset string) {
	if m.gotoAborts == nil {
		return
	}
	m.gotoAborts.WithLabelValues(preset).Inc()
}

// SetLoadedRuleSets sets the number of loaded rule files per preset.
func (m *Metrics) SetLoadedRuleSets(preset string, count int) {
	if m.loadedRuleSets == nil {
		return
	}
	m.loadedRuleSets.WithLabelValues(preset).Set(float64(count))
}

// RecordReload records a rule reload attempt.
func (m *Metrics) RecordReload(status string) {
	if m.reloads == nil {
		return
	}
	m.reloads.WithLabelValues(status).Inc()
}

// RecordColdplugDevice counts one device seen during a coldplug scan.
func (m *Metrics) RecordColdplugDevice() {
	if m.coldplugDevices == nil {
		return
	}
	m.coldplugDevices.Inc()
}

// RecordCGroupUpdate records one container device-rule update.
func (m *Metrics) RecordCGroupUpdate(manager, decision string) {
	if m.cgroupUpdates == nil {
		return
	}
	m.cgroupUpdates.WithLabelValues(manager, decision).Inc()
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

// StartMetricsServer starts an HTTP server exposing the metrics endpoint.
// Server failures are logged, never fatal.
func (m *Metrics) StartMetricsServer(logger zerolog.Logger) error {
	if !m.config.Enabled {
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

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Str("addr", m.config.ListenAddress).Msg("metrics server failed")
		}
	}()

	return nil
}
