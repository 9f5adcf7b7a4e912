package rag

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AnswersTotal counts questions by outcome.
	// Labels: outcome (answered, declined, failed, error)
	AnswersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taxrag",
			Subsystem: "rag",
			Name:      "answers_total",
			Help:      "Total number of questions handled, by outcome",
		},
		[]string{"outcome"},
	)

	// AnswerDuration tracks end-to-end answer latency.
	AnswerDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "taxrag",
			Subsystem: "rag",
			Name:      "answer_duration_seconds",
			Help:      "Duration of retrieval plus generation in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	retrievedChunks = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "taxrag",
			Subsystem: "rag",
			Name:      "retrieved_chunks",
			Help:      "Number of chunks retrieved per question",
			Buckets:   []float64{0, 1, 3, 5, 10},
		},
	)
)

func observeAnswer(ans *Answer, err error, start time.Time) {
	outcome := "answered"
	switch {
	case err != nil:
		outcome = "error"
	case ans == nil:
		return
	case ans.Failed():
		outcome = "failed"
	case len(ans.Sources) == 0:
		outcome = "declined"
	}
	AnswersTotal.WithLabelValues(outcome).Inc()
	AnswerDuration.Observe(time.Since(start).Seconds())
}
