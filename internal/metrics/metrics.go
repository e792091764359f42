package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockinsight_fetch_attempts_total",
			Help: "Market-data fetch attempts by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	pipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockinsight_pipeline_runs_total",
			Help: "Prediction pipeline runs by outcome",
		},
		[]string{"outcome"},
	)

	pipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stockinsight_pipeline_duration_seconds",
			Help:    "Duration of prediction pipeline runs in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
	)

	governorDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockinsight_governor_decisions_total",
			Help: "Rate governor decisions by channel and result",
		},
		[]string{"channel", "result"},
	)

	artifactDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockinsight_artifact_deliveries_total",
			Help: "Chart deliveries to chat by result",
		},
		[]string{"result"},
	)

	commandsHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockinsight_commands_total",
			Help: "Conversational commands handled",
		},
		[]string{"command"},
	)
)

// RecordFetchAttempt counts one attempt against a data source.
func RecordFetchAttempt(source, outcome string) {
	fetchAttempts.WithLabelValues(source, outcome).Inc()
}

// RecordPipelineRun counts a finished run and observes its duration.
func RecordPipelineRun(outcome string, d time.Duration) {
	pipelineRuns.WithLabelValues(outcome).Inc()
	pipelineDuration.Observe(d.Seconds())
}

func RecordGovernorDecision(channel string, admitted bool) {
	result := "admitted"
	if !admitted {
		result = "rejected"
	}
	governorDecisions.WithLabelValues(channel, result).Inc()
}

func RecordDelivery(ok bool) {
	result := "delivered"
	if !ok {
		result = "failed"
	}
	artifactDeliveries.WithLabelValues(result).Inc()
}

func RecordCommand(command string) {
	commandsHandled.WithLabelValues(command).Inc()
}
