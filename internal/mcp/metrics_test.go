package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/fyrsmithlabs/taxrag/internal/llm"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := newMetrics(mp.Meter(instrumentationName))
	require.NoError(t, err)
	return m, reader
}

// collect sums every int64 series of name, keyed by the value of attr.
func collect(t *testing.T, reader *sdkmetric.ManualReader, name string, attr attribute.Key) map[string]int64 {
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

func TestMetrics_Begin(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.begin(ctx, answerQuestionTool)(nil)
	m.begin(ctx, answerQuestionTool)(fmt.Errorf("%w: question is blank", errInvalidArgument))
	done := m.begin(ctx, answerQuestionTool)

	assert.Equal(t, map[string]int64{answerQuestionTool: 2}, collect(t, reader, "taxrag.mcp.tool.calls_total", "tool"))
	assert.Equal(t, map[string]int64{"invalid_argument": 1}, collect(t, reader, "taxrag.mcp.tool.failures_total", "reason"))
	assert.Equal(t, int64(1), collect(t, reader, "taxrag.mcp.tool.in_flight", "tool")[answerQuestionTool])

	done(nil)
	assert.Equal(t, int64(0), collect(t, reader, "taxrag.mcp.tool.in_flight", "tool")[answerQuestionTool])
}

func TestMetrics_RecordDegraded(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.recordDegraded(ctx, llm.KindQuota)
	m.recordDegraded(ctx, llm.KindQuota)
	m.recordDegraded(ctx, llm.KindNetwork)

	assert.Equal(t, map[string]int64{"quota": 2, "network": 1},
		collect(t, reader, "taxrag.mcp.answers_degraded_total", "kind"))
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"invalid argument", fmt.Errorf("%w: n_results 11", errInvalidArgument), "invalid_argument"},
		{"deadline", fmt.Errorf("answer: %w", context.DeadlineExceeded), "timeout"},
		{"canceled", context.Canceled, "timeout"},
		{"retrieval", errors.New("retrieving context: boom"), "answer_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, failureReason(tt.err))
		})
	}
}
