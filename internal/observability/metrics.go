package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects run-execution and API metrics.
//
// All metrics are registered with the given registerer (the Prometheus
// default when nil) and exposed on the /metrics endpoint.
type Metrics struct {
	// RunsSubmitted counts runs accepted by the scheduler.
	RunsSubmitted prometheus.Counter

	// RunsCompleted counts finished runs by final status.
	// Labels: status (completed|failed)
	RunsCompleted *prometheus.CounterVec

	// RunsInFlight is a gauge of currently executing runs.
	RunsInFlight prometheus.Gauge

	// StreamsActive is a gauge of registered run output streams.
	StreamsActive prometheus.Gauge

	// RunDuration measures run execution time in seconds.
	// Labels: status (completed|failed)
	RunDuration *prometheus.HistogramVec

	// LLMRequestCounter counts backend requests.
	// Labels: backend, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: backend, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts pipeline tool invocations.
	// Labels: tool, status (success|error|skipped)
	ToolExecutionCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics. Call once at startup; a nil
// registerer uses the Prometheus default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RunsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "assistantd_runs_submitted_total",
			Help: "Runs accepted by the scheduler.",
		}),
		RunsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assistantd_runs_finished_total",
			Help: "Runs finished, by final status.",
		}, []string{"status"}),
		RunsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "assistantd_runs_in_flight",
			Help: "Currently executing runs.",
		}),
		StreamsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "assistantd_streams_active",
			Help: "Registered run output streams.",
		}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "assistantd_run_duration_seconds",
			Help:    "Run execution time in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"status"}),
		LLMRequestCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assistantd_llm_requests_total",
			Help: "LLM backend requests.",
		}, []string{"backend", "model", "status"}),
		LLMTokensUsed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assistantd_llm_tokens_total",
			Help: "LLM token consumption.",
		}, []string{"backend", "model", "type"}),
		ToolExecutionCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assistantd_tool_executions_total",
			Help: "Pipeline tool invocations.",
		}, []string{"tool", "status"}),
	}
}
