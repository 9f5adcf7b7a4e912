package http

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const httpInstrumentationName = "github.com/fyrsmithlabs/taxrag/internal/http"

// Rejection reasons recorded by RecordRejected.
const (
	rejectBadBody       = "bad_body"
	rejectEmptyQuestion = "empty_question"
	rejectResultsRange  = "n_results_range"
)

// HTTPMetrics records request counts, latency and answer request rejections.
type HTTPMetrics struct {
	requests metric.Int64Counter
	latency  metric.Float64Histogram
	inFlight metric.Int64UpDownCounter
	rejected metric.Int64Counter
}

// NewHTTPMetrics builds the instruments on the global meter provider.
func NewHTTPMetrics() (*HTTPMetrics, error) {
	return newHTTPMetrics(otel.Meter(httpInstrumentationName))
}

func newHTTPMetrics(meter metric.Meter) (*HTTPMetrics, error) {
	m := &HTTPMetrics{}
	var errs [4]error
	m.requests, errs[0] = meter.Int64Counter(
		"taxrag.http.requests_total",
		metric.WithDescription("HTTP requests by method, route and status class"),
		metric.WithUnit("{request}"),
	)
	// answer requests are dominated by the model call, hence the long tail
	m.latency, errs[1] = meter.Float64Histogram(
		"taxrag.http.request_duration_seconds",
		metric.WithDescription("HTTP request latency by method, route and status class"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	m.inFlight, errs[2] = meter.Int64UpDownCounter(
		"taxrag.http.in_flight_requests",
		metric.WithDescription("Requests currently being served"),
		metric.WithUnit("{request}"),
	)
	m.rejected, errs[3] = meter.Int64Counter(
		"taxrag.http.answer_rejected_total",
		metric.WithDescription("Answer requests rejected before retrieval, by reason"),
		metric.WithUnit("{request}"),
	)
	if err := errors.Join(errs[:]...); err != nil {
		return nil, err
	}
	return m, nil
}

// Middleware records every request that passes through echo.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			start := time.Now()
			m.inFlight.Add(ctx, 1)
			defer m.inFlight.Add(ctx, -1)

			err := next(c)

			status := c.Response().Status
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
			}
			attrs := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("route", routeLabel(c.Path())),
				attribute.String("status_class", statusClass(status)),
			)
			m.requests.Add(ctx, 1, attrs)
			m.latency.Record(ctx, time.Since(start).Seconds(), attrs)
			return err
		}
	}
}

// RecordRejected counts an answer request refused during validation.
func (m *HTTPMetrics) RecordRejected(ctx context.Context, reason string) {
	m.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// routeLabel collapses unmatched paths into one series.
func routeLabel(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
