package mcp

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fyrsmithlabs/taxrag/internal/llm"
)

const instrumentationName = "github.com/fyrsmithlabs/taxrag/internal/mcp"

// Metrics records tool calls made through the MCP server.
type Metrics struct {
	calls    metric.Int64Counter
	latency  metric.Float64Histogram
	failures metric.Int64Counter
	degraded metric.Int64Counter
	inFlight metric.Int64UpDownCounter
}

// NewMetrics builds the instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return newMetrics(otel.Meter(instrumentationName))
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var errs [5]error
	m.calls, errs[0] = meter.Int64Counter(
		"taxrag.mcp.tool.calls_total",
		metric.WithDescription("MCP tool calls by tool"),
		metric.WithUnit("{call}"),
	)
	m.latency, errs[1] = meter.Float64Histogram(
		"taxrag.mcp.tool.duration_seconds",
		metric.WithDescription("MCP tool call latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	m.failures, errs[2] = meter.Int64Counter(
		"taxrag.mcp.tool.failures_total",
		metric.WithDescription("MCP tool calls that returned an error, by reason"),
		metric.WithUnit("{call}"),
	)
	m.degraded, errs[3] = meter.Int64Counter(
		"taxrag.mcp.answers_degraded_total",
		metric.WithDescription("Answers returned with a generation failure, by error kind"),
		metric.WithUnit("{answer}"),
	)
	m.inFlight, errs[4] = meter.Int64UpDownCounter(
		"taxrag.mcp.tool.in_flight",
		metric.WithDescription("MCP tool calls currently running"),
		metric.WithUnit("{call}"),
	)
	if err := errors.Join(errs[:]...); err != nil {
		return nil, err
	}
	return m, nil
}

// begin marks a call as started and returns the function that records its
// outcome.
func (m *Metrics) begin(ctx context.Context, tool string) func(err error) {
	start := time.Now()
	toolAttr := attribute.String("tool", tool)
	m.inFlight.Add(ctx, 1, metric.WithAttributes(toolAttr))

	return func(err error) {
		m.inFlight.Add(ctx, -1, metric.WithAttributes(toolAttr))
		m.calls.Add(ctx, 1, metric.WithAttributes(toolAttr))
		m.latency.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(toolAttr))
		if err != nil {
			m.failures.Add(ctx, 1, metric.WithAttributes(toolAttr, attribute.String("reason", failureReason(err))))
		}
	}
}

// recordDegraded counts an in-band generation failure.
func (m *Metrics) recordDegraded(ctx context.Context, kind llm.ErrorKind) {
	m.degraded.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
}

// failureReason maps a tool error to a low-cardinality label.
func failureReason(err error) string {
	switch {
	case errors.Is(err, errInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "answer_error"
	}
}
