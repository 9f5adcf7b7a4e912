package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestHTTPMetrics(t *testing.T) (*HTTPMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := newHTTPMetrics(mp.Meter(httpInstrumentationName))
	require.NoError(t, err)
	return m, reader
}

// sums collects int64 sums keyed by metric name and the value of attr.
func sums(t *testing.T, reader *sdkmetric.ManualReader, name string, attr attribute.Key) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != name {
				continue
			}
			sum, ok := md.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value(attr)
				out[v.AsString()] += dp.Value
			}
		}
	}
	return out
}

func TestHTTPMetrics_Middleware(t *testing.T) {
	m, reader := newTestHTTPMetrics(t)

	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.POST("/api/v1/answer", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "bad")
	})

	for _, r := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/health", nil),
		httptest.NewRequest(http.MethodGet, "/health", nil),
		httptest.NewRequest(http.MethodPost, "/api/v1/answer", nil),
		httptest.NewRequest(http.MethodGet, "/nope", nil),
	} {
		e.ServeHTTP(httptest.NewRecorder(), r)
	}

	byClass := sums(t, reader, "taxrag.http.requests_total", "status_class")
	assert.Equal(t, int64(2), byClass["2xx"])
	assert.Equal(t, int64(2), byClass["4xx"])

	byRoute := sums(t, reader, "taxrag.http.requests_total", "route")
	assert.Equal(t, int64(2), byRoute["/health"])
	assert.Equal(t, int64(1), byRoute["/api/v1/answer"])

	inFlight := sums(t, reader, "taxrag.http.in_flight_requests", "route")
	assert.Equal(t, int64(0), inFlight[""])
}

func TestHTTPMetrics_RecordRejected(t *testing.T) {
	m, reader := newTestHTTPMetrics(t)
	ctx := context.Background()

	m.RecordRejected(ctx, rejectEmptyQuestion)
	m.RecordRejected(ctx, rejectEmptyQuestion)
	m.RecordRejected(ctx, rejectResultsRange)

	got := sums(t, reader, "taxrag.http.answer_rejected_total", "reason")
	assert.Equal(t, map[string]int64{"empty_question": 2, "n_results_range": 1}, got)
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(200))
	assert.Equal(t, "4xx", statusClass(404))
	assert.Equal(t, "5xx", statusClass(503))
	assert.Equal(t, "unknown", statusClass(0))
	assert.Equal(t, "unmatched", routeLabel(""))
}
