package instrument

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/datarouter"
	"github.com/vango-dev/datarouter/pkg/boundary"
	"github.com/vango-dev/datarouter/pkg/router"
)

// MetricsConfig configures the Prometheus collectors.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "datarouter").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for handler and run durations.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus collectors.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "datarouter",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics collects handler, run and live session metrics:
//   - datarouter_handler_calls_total{route,kind,outcome}
//   - datarouter_handler_duration_seconds{route,kind}
//   - datarouter_runs_total{kind,status}
//   - datarouter_run_duration_seconds{kind}
//   - datarouter_active_runs{kind}
//   - datarouter_unhandled_errors_total
//   - datarouter_live_sessions
//   - datarouter_websocket_errors_total{type}
//
// Metrics is a datarouter.Observer; its Middleware times handlers.
type Metrics struct {
	handlerCalls    *prometheus.CounterVec
	handlerDuration *prometheus.HistogramVec
	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	activeRuns      *prometheus.GaugeVec
	unhandled       prometheus.Counter
	liveSessions    prometheus.Gauge
	wsErrors        *prometheus.CounterVec
}

var _ datarouter.Observer = (*Metrics)(nil)

// NewMetrics registers the collectors with the configured registry.
// Registering twice with the same registry panics, as promauto does.
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	m := instrument.NewMetrics(instrument.WithRegistry(reg))
//	r, err := datarouter.New(datarouter.Options{
//	    Routes:     routes,
//	    Middleware: []router.Middleware{m.Middleware()},
//	    Observer:   m,
//	})
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		handlerCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "handler_calls_total",
			Help:        "Total number of loader and action calls",
			ConstLabels: config.ConstLabels,
		}, []string{"route", "kind", "outcome"}),

		handlerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "handler_duration_seconds",
			Help:        "Loader and action duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"route", "kind"}),

		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "runs_total",
			Help:        "Total number of navigations, revalidations and fetches by outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"kind", "status"}),

		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "run_duration_seconds",
			Help:        "Run duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"kind"}),

		activeRuns: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_runs",
			Help:        "Number of runs in flight",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		unhandled: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "unhandled_errors_total",
			Help:        "Errors that reached the root without an error boundary",
			ConstLabels: config.ConstLabels,
		}),

		liveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "live_sessions",
			Help:        "Number of open live navigation sessions",
			ConstLabels: config.ConstLabels,
		}),

		wsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "websocket_errors_total",
			Help:        "Total WebSocket errors by type",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),
	}
}

// Middleware times every loader and action and counts them by outcome.
func (m *Metrics) Middleware() router.Middleware {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx context.Context, args router.Args) (any, error) {
			start := time.Now()
			val, err := next(ctx, args)

			kind := args.Kind.String()
			m.handlerDuration.WithLabelValues(args.RouteID, kind).Observe(time.Since(start).Seconds())
			m.handlerCalls.WithLabelValues(args.RouteID, kind, outcome(val, err)).Inc()
			return val, err
		}
	}
}

func (m *Metrics) RunStarted(ev datarouter.Event) {
	m.activeRuns.WithLabelValues(string(ev.Kind)).Inc()
}

func (m *Metrics) RunFinished(ev datarouter.Event) {
	kind := string(ev.Kind)
	m.activeRuns.WithLabelValues(kind).Dec()
	m.runsTotal.WithLabelValues(kind, string(ev.Status)).Inc()
	m.runDuration.WithLabelValues(kind).Observe(ev.Duration.Seconds())
}

func (m *Metrics) UnhandledError(*boundary.UnhandledError) {
	m.unhandled.Inc()
}

// SessionOpened records a live session connecting.
func (m *Metrics) SessionOpened() {
	m.liveSessions.Inc()
}

// SessionClosed records a live session going away.
func (m *Metrics) SessionClosed() {
	m.liveSessions.Dec()
}

// WebSocketError records a WebSocket error of the given type.
func (m *Metrics) WebSocketError(errorType string) {
	m.wsErrors.WithLabelValues(errorType).Inc()
}

// outcome labels a handler result without using error text, which keeps
// label cardinality bounded.
func outcome(val any, err error) string {
	if _, ok := router.AsRedirect(val, err); ok {
		return "redirect"
	}
	if err == nil {
		return "data"
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, datarouter.ErrNavigationInterrupted):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	if er, ok := router.IsErrorResponse(err); ok {
		switch er.Status {
		case http.StatusNotFound:
			return "not_found"
		case http.StatusUnauthorized:
			return "unauthorized"
		case http.StatusForbidden:
			return "forbidden"
		}
		if er.Status < 500 {
			return "client_error"
		}
	}
	return "error"
}
