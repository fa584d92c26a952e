// Package metrics records Prometheus metrics for agent runs, tool calls,
// supervisor steps, handoff validations and LLM usage.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the collectors. A nil *Recorder is valid and records nothing.
type Recorder struct {
	agentRuns       *prometheus.CounterVec
	toolAttempts    *prometheus.CounterVec
	toolDuration    *prometheus.HistogramVec
	supervisorSteps *prometheus.CounterVec
	validations     *prometheus.CounterVec
	llmRequests     *prometheus.CounterVec
	llmTokens       *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		agentRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskforce_agent_runs_total",
				Help: "Agent runs by agent name and outcome (success, failure, timeout)",
			},
			[]string{"agent", "outcome"},
		),
		toolAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskforce_tool_attempts_total",
				Help: "Individual tool execution attempts by outcome",
			},
			[]string{"tool", "outcome"},
		),
		toolDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskforce_tool_duration_seconds",
				Help:    "Wall time of a tool call including retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		supervisorSteps: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskforce_supervisor_steps_total",
				Help: "Supervisor orchestration steps by kind",
			},
			[]string{"kind"},
		),
		validations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskforce_handoff_validations_total",
				Help: "Handoff contract validations by contract and validity",
			},
			[]string{"contract", "valid"},
		),
		llmRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskforce_llm_requests_total",
				Help: "LLM completion requests by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		llmTokens: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskforce_llm_tokens_total",
				Help: "Tokens consumed by provider and kind (prompt, completion)",
			},
			[]string{"provider", "kind"},
		),
	}
}

// ObserveLLMCall counts one provider request and, when it succeeded, its token usage.
func (r *Recorder) ObserveLLMCall(providerID string, err error, promptTokens, completionTokens int) {
	if r == nil {
		return
	}
	if err != nil {
		r.llmRequests.WithLabelValues(providerID, "failure").Inc()
		return
	}
	r.llmRequests.WithLabelValues(providerID, "success").Inc()
	r.llmTokens.WithLabelValues(providerID, "prompt").Add(float64(promptTokens))
	r.llmTokens.WithLabelValues(providerID, "completion").Add(float64(completionTokens))
}

// ObserveRun counts one finished agent run.
func (r *Recorder) ObserveRun(agent, outcome string) {
	if r == nil {
		return
	}
	r.agentRuns.WithLabelValues(agent, outcome).Inc()
}

// ObserveToolAttempt counts one tool attempt.
func (r *Recorder) ObserveToolAttempt(tool string, success bool) {
	if r == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	r.toolAttempts.WithLabelValues(tool, outcome).Inc()
}

// ObserveToolCall records the total duration of a policy-wrapped tool call.
func (r *Recorder) ObserveToolCall(tool string, d time.Duration) {
	if r == nil {
		return
	}
	r.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// ObserveSupervisorStep counts a supervisor step of the given kind.
func (r *Recorder) ObserveSupervisorStep(kind string) {
	if r == nil {
		return
	}
	r.supervisorSteps.WithLabelValues(kind).Inc()
}

// ObserveValidation counts a handoff validation.
func (r *Recorder) ObserveValidation(contract string, valid bool) {
	if r == nil {
		return
	}
	r.validations.WithLabelValues(contract, strconv.FormatBool(valid)).Inc()
}
