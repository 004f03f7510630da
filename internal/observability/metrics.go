package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting agent-loop metrics:
// iteration counts, LLM request performance, tool execution latency,
// confirmation outcomes, and safety rejections.
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.LoopIteration("completed")
//	defer metrics.RecordLLMRequest("anthropic", "claude-3-opus", "success", elapsed, 100, 500)
type Metrics struct {
	// LoopIterationCounter counts agent loop iterations by outcome.
	// Labels: outcome (final_answer|tool_call|reasoning|max_iterations)
	LoopIterationCounter *prometheus.CounterVec

	// LLMRequestDuration measures LLM API call latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM requests by provider and model.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// ErrorCounter tracks errors by kind.
	// Labels: error_kind
	ErrorCounter *prometheus.CounterVec

	// ConfirmationOutcomeCounter counts how pending confirmations resolve.
	// Labels: tier (simple|typed|admin_approval), outcome (approved|rejected|expired)
	ConfirmationOutcomeCounter *prometheus.CounterVec

	// SafetyRejectionCounter counts statements the safety validator blocked.
	// Labels: level (read_only|balanced|permissive), reason (blacklist|level_block)
	SafetyRejectionCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics. Call once at
// startup; metrics are registered with Prometheus's default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		LoopIterationCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dbagent_loop_iterations_total",
				Help: "Total number of agent loop iterations by outcome",
			},
			[]string{"outcome"},
		),

		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dbagent_llm_request_duration_seconds",
				Help:    "Duration of LLM completion requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dbagent_llm_requests_total",
				Help: "Total number of LLM requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dbagent_llm_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dbagent_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dbagent_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dbagent_errors_total",
				Help: "Total number of errors by error kind",
			},
			[]string{"error_kind"},
		),

		ConfirmationOutcomeCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dbagent_confirmation_outcomes_total",
				Help: "Total number of confirmation requests by tier and outcome",
			},
			[]string{"tier", "outcome"},
		),

		SafetyRejectionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dbagent_safety_rejections_total",
				Help: "Total number of statements rejected by the safety validator",
			},
			[]string{"level", "reason"},
		),
	}
}

// LoopIteration records one agent loop iteration's outcome.
func (m *Metrics) LoopIteration(outcome string) {
	m.LoopIterationCounter.WithLabelValues(outcome).Inc()
}

// RecordLLMRequest records metrics for an LLM completion request.
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordToolExecution records metrics for a tool execution.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordError increments the error counter for a given error kind.
func (m *Metrics) RecordError(errorKind string) {
	m.ErrorCounter.WithLabelValues(errorKind).Inc()
}

// RecordConfirmationOutcome records how a pending confirmation resolved.
func (m *Metrics) RecordConfirmationOutcome(tier, outcome string) {
	m.ConfirmationOutcomeCounter.WithLabelValues(tier, outcome).Inc()
}

// RecordSafetyRejection records a statement blocked by the safety validator.
func (m *Metrics) RecordSafetyRejection(level, reason string) {
	m.SafetyRejectionCounter.WithLabelValues(level, reason).Inc()
}
