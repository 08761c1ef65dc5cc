package instrument

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/datarouter"
	"github.com/vango-dev/datarouter/pkg/router"
)

func metricCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	require.NotNil(t, m.Counter, "expected counter metric")
	return m.GetCounter().GetValue()
}

func metricGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	require.NotNil(t, m.Gauge, "expected gauge metric")
	return m.GetGauge().GetValue()
}

func metricHistogramCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	metric, ok := o.(prometheus.Metric)
	require.True(t, ok, "observer %T does not implement prometheus.Metric", o)
	var m dto.Metric
	require.NoError(t, metric.Write(&m))
	require.NotNil(t, m.Histogram, "expected histogram metric")
	return m.GetHistogram().GetSampleCount()
}

func testRoutes() []router.RouteDefinition {
	return []router.RouteDefinition{{
		ID: "root", Path: "/", ErrorBoundary: true,
		Loader: func(ctx context.Context, args router.Args) (any, error) { return "root", nil },
		Children: []router.RouteDefinition{
			{ID: "ok", Path: "ok", Loader: func(ctx context.Context, args router.Args) (any, error) {
				return "ok", nil
			}},
			{ID: "fail", Path: "fail", Loader: func(ctx context.Context, args router.Args) (any, error) {
				return nil, errors.New("boom")
			}},
			{ID: "gone", Path: "gone", Loader: func(ctx context.Context, args router.Args) (any, error) {
				return nil, router.NewErrorResponse(http.StatusNotFound, nil)
			}},
			{ID: "moved", Path: "moved", Loader: func(ctx context.Context, args router.Args) (any, error) {
				return router.Redirect("/ok"), nil
			}},
		},
	}}
}

func TestMetricsRecordsHandlersAndRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(WithRegistry(reg), WithNamespace("test"))

	r, err := datarouter.New(datarouter.Options{
		Routes:     testRoutes(),
		Middleware: []router.Middleware{m.Middleware()},
		Observer:   m,
	})
	require.NoError(t, err)
	defer r.Dispose()
	ctx := context.Background()

	require.NoError(t, r.Initialize(ctx))
	require.NoError(t, r.Navigate(ctx, "/ok"))
	require.NoError(t, r.Navigate(ctx, "/fail"))
	require.NoError(t, r.Navigate(ctx, "/gone"))
	require.NoError(t, r.Navigate(ctx, "/moved"))

	assert.Equal(t, 1.0, metricCounterValue(t, m.handlerCalls.WithLabelValues("fail", "loader", "error")))
	assert.Equal(t, 1.0, metricCounterValue(t, m.handlerCalls.WithLabelValues("gone", "loader", "not_found")))
	assert.Equal(t, 1.0, metricCounterValue(t, m.handlerCalls.WithLabelValues("moved", "loader", "redirect")))
	assert.Equal(t, 2.0, metricCounterValue(t, m.handlerCalls.WithLabelValues("ok", "loader", "data")), "direct and after redirect")
	assert.Equal(t, uint64(2), metricHistogramCount(t, m.handlerDuration.WithLabelValues("ok", "loader")))

	assert.Equal(t, 1.0, metricCounterValue(t, m.runsTotal.WithLabelValues("initialize", "completed")))
	assert.Equal(t, 1.0, metricCounterValue(t, m.runsTotal.WithLabelValues("navigation", "redirected")))
	assert.Equal(t, uint64(1), metricHistogramCount(t, m.runDuration.WithLabelValues("initialize")))
	assert.Zero(t, metricGaugeValue(t, m.activeRuns.WithLabelValues("navigation")))
}

func TestMetricsUnhandledAndSessions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(WithRegistry(reg))

	m.UnhandledError(nil)
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	m.WebSocketError("read")

	assert.Equal(t, 1.0, metricCounterValue(t, m.unhandled))
	assert.Equal(t, 1.0, metricGaugeValue(t, m.liveSessions))
	assert.Equal(t, 1.0, metricCounterValue(t, m.wsErrors.WithLabelValues("read")))
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		name string
		val  any
		err  error
		want string
	}{
		{"data", "x", nil, "data"},
		{"redirect value", router.Redirect("/a"), nil, "redirect"},
		{"redirect error", nil, router.Redirect("/a"), "redirect"},
		{"canceled", nil, context.Canceled, "canceled"},
		{"interrupted", nil, datarouter.ErrNavigationInterrupted, "canceled"},
		{"timeout", nil, context.DeadlineExceeded, "timeout"},
		{"not found", nil, router.NotFound("/x"), "not_found"},
		{"forbidden", nil, router.NewErrorResponse(http.StatusForbidden, nil), "forbidden"},
		{"bad request", nil, router.NewErrorResponse(http.StatusBadRequest, nil), "client_error"},
		{"plain", nil, errors.New("x"), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, outcome(tt.val, tt.err))
		})
	}
}
