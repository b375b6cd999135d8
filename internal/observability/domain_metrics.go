package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	jobsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querypilot_jobs_submitted_total",
			Help: "Total number of query jobs submitted, by kind.",
		},
		[]string{"kind"},
	)
	jobsTerminalTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querypilot_jobs_terminal_total",
			Help: "Total number of query jobs reaching a terminal state, by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	jobDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querypilot_job_duration_seconds",
			Help:    "Submit-to-terminal latency of query jobs, by kind.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"kind"},
	)
	pipelineStageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querypilot_pipeline_stage_duration_seconds",
			Help:    "Latency of individual pipeline stages.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"stage"},
	)
	llmRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querypilot_llm_retries_total",
			Help: "Total number of rate-limited LLM calls that were retried.",
		},
	)
	indexedDocumentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querypilot_indexed_documents_total",
			Help: "Total number of schema documents written to the vector store.",
		},
	)
	activeJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "querypilot_active_jobs",
			Help: "Current count of jobs in a non-terminal state.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		jobsSubmittedTotal,
		jobsTerminalTotal,
		jobDurationSeconds,
		pipelineStageDurationSeconds,
		llmRetriesTotal,
		indexedDocumentsTotal,
		activeJobs,
	)
}

func ObserveJobSubmitted(kind string) {
	jobsSubmittedTotal.WithLabelValues(kind).Inc()
	activeJobs.Inc()
}

func ObserveJobTerminal(kind, outcome string, elapsed time.Duration) {
	jobsTerminalTotal.WithLabelValues(kind, outcome).Inc()
	jobDurationSeconds.WithLabelValues(kind).Observe(elapsed.Seconds())
	activeJobs.Dec()
}

func ObservePipelineStage(stage string, elapsed time.Duration) {
	pipelineStageDurationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func IncrementLLMRetry() {
	llmRetriesTotal.Inc()
}

func AddIndexedDocuments(count int) {
	if count > 0 {
		indexedDocumentsTotal.Add(float64(count))
	}
}
