package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(messagesProcessedTotal, stageOutcomesTotal, queuePullsTotal, stageLatency)
}

var messagesProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "content_messages_processed_total",
		Help: "Queue messages handled by the worker, labeled by outcome.",
	},
	[]string{"outcome"}, // 'completed', 'failed', 'invalid', 'duplicate', 'retried', 'clarification'
)

var stageOutcomesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "content_stage_outcomes_total",
		Help: "Pipeline stage executions, labeled by stage and result.",
	},
	[]string{"stage", "result"},
)

var queuePullsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "content_queue_pulls_total",
		Help: "Queue pull attempts, labeled by whether messages arrived.",
	},
	[]string{"result"}, // 'messages', 'empty', 'error'
)

var stageLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "content_stage_duration_seconds",
		Help:    "Pipeline stage duration distribution in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	},
	[]string{"stage"},
)

// IncMessage records the final disposition of one queue message.
func IncMessage(outcome string) {
	messagesProcessedTotal.WithLabelValues(outcome).Inc()
}

// IncStage records one stage execution result.
func IncStage(stage, result string) {
	stageOutcomesTotal.WithLabelValues(stage, result).Inc()
}

// IncPull records one queue pull attempt.
func IncPull(result string) {
	queuePullsTotal.WithLabelValues(result).Inc()
}

// ObserveStage records how long a stage took.
func ObserveStage(stage string, seconds float64) {
	stageLatency.WithLabelValues(stage).Observe(seconds)
}
