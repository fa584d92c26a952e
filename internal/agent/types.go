package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Step is one think/act/observe iteration of a run.
type Step struct {
	Iteration   int    `json:"iteration"`
	Thought     string `json:"thought"`
	Action      string `json:"action,omitempty"`
	Observation string `json:"observation,omitempty"`
}

// Action is a tool invocation requested by the LLM.
type Action struct {
	Tool  string          `json:"tool"`
	Input json.RawMessage `json:"input"`
}

// Decision is the per-cycle JSON contract the LLM must emit.
type Decision struct {
	Thought     string          `json:"thought"`
	Action      *Action         `json:"action"`
	IsFinal     bool            `json:"is_final"`
	FinalAnswer json.RawMessage `json:"final_answer"`
}

// Answer renders final_answer as text. JSON strings are unquoted, other JSON
// values are pretty-printed, and null or absent yields ok=false.
func (d Decision) Answer() (string, bool) {
	return RenderAnswer(d.FinalAnswer)
}

// RenderAnswer renders a JSON final answer as text.
func RenderAnswer(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s, true
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, trimmed, "", "  "); err != nil {
		return string(trimmed), true
	}
	return buf.String(), true
}

// Outcome discriminates the Response variants.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeTimeout Outcome = "timeout"
)

// Response is the result of a run: exactly one of Success, Failure or Timeout.
// Result is set for Success, Error for Failure and PartialResult for Timeout.
type Response struct {
	Outcome          Outcome           `json:"outcome"`
	Result           string            `json:"result,omitempty"`
	Error            string            `json:"error,omitempty"`
	PartialResult    string            `json:"partial_result,omitempty"`
	Steps            []Step            `json:"steps"`
	Metadata         *OutputMetadata   `json:"metadata,omitempty"`
	CompletionStatus *CompletionStatus `json:"completion_status,omitempty"`
}

// Success builds a Success response.
func Success(result string, steps []Step, meta *OutputMetadata, status *CompletionStatus) Response {
	return Response{Outcome: OutcomeSuccess, Result: result, Steps: steps, Metadata: meta, CompletionStatus: status}
}

// Failure builds a Failure response.
func Failure(err string, steps []Step, meta *OutputMetadata, status *CompletionStatus) Response {
	return Response{Outcome: OutcomeFailure, Error: err, Steps: steps, Metadata: meta, CompletionStatus: status}
}

// Timeout builds a Timeout response.
func Timeout(partial string, steps []Step, meta *OutputMetadata, status *CompletionStatus) Response {
	return Response{Outcome: OutcomeTimeout, PartialResult: partial, Steps: steps, Metadata: meta, CompletionStatus: status}
}

// IsSuccess reports whether the response is the Success variant.
func (r Response) IsSuccess() bool { return r.Outcome == OutcomeSuccess }

// Summary renders the response the way a supervisor feeds it back to its LLM.
func (r Response) Summary() string {
	status := r.CompletionStatus
	switch r.Outcome {
	case OutcomeSuccess:
		info := ""
		if status != nil && status.Kind == CompletionComplete {
			info = fmt.Sprintf(" (confidence: %.2f)", status.Confidence)
		}
		return fmt.Sprintf("SUCCESS%s: %s", info, r.Result)
	case OutcomeFailure:
		info := ""
		if status != nil && status.Kind == CompletionFailed {
			info = " (not recoverable)"
			if status.Recoverable {
				info = " (recoverable)"
			}
		}
		if status != nil && status.Kind == CompletionBlocked {
			info = fmt.Sprintf(" (blocked: %s)", status.Reason)
		}
		return fmt.Sprintf("FAILED%s: %s", info, r.Error)
	case OutcomeTimeout:
		info := ""
		if status != nil && status.Kind == CompletionPartial {
			info = fmt.Sprintf(" (progress: %.0f%%)", status.Progress*100)
		}
		return fmt.Sprintf("TIMEOUT%s: %s", info, r.PartialResult)
	default:
		return "FAILED: " + r.UnknownOutcomeError()
	}
}

// UnknownOutcomeError describes a response that carries no known variant,
// such as the zero value.
func (r Response) UnknownOutcomeError() string {
	if r.Outcome == "" {
		return "agent returned no outcome"
	}
	return fmt.Sprintf("agent returned unknown outcome %q", string(r.Outcome))
}

// CompletionKind discriminates CompletionStatus variants.
type CompletionKind string

const (
	CompletionComplete CompletionKind = "complete"
	CompletionPartial  CompletionKind = "partial"
	CompletionBlocked  CompletionKind = "blocked"
	CompletionFailed   CompletionKind = "failed"
)

// CompletionStatus qualifies how finished a run is.
type CompletionStatus struct {
	Kind        CompletionKind `json:"kind"`
	Confidence  float64        `json:"confidence,omitempty"`
	Progress    float64        `json:"progress,omitempty"`
	NextSteps   []string       `json:"next_steps,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	Needs       []string       `json:"needs,omitempty"`
	Error       string         `json:"error,omitempty"`
	Recoverable bool           `json:"recoverable,omitempty"`
}

func Complete(confidence float64) *CompletionStatus {
	return &CompletionStatus{Kind: CompletionComplete, Confidence: confidence}
}

func Partial(progress float64, nextSteps ...string) *CompletionStatus {
	return &CompletionStatus{Kind: CompletionPartial, Progress: progress, NextSteps: nextSteps}
}

func Blocked(reason string, needs ...string) *CompletionStatus {
	return &CompletionStatus{Kind: CompletionBlocked, Reason: reason, Needs: needs}
}

// NoModel is the outcome of a run started without a chat model.
func NoModel() Response {
	return Failure("No LLM provider configured", nil, nil,
		Blocked("no chat model to reason with", "llm provider"))
}

func Failed(err string, recoverable bool) *CompletionStatus {
	return &CompletionStatus{Kind: CompletionFailed, Error: err, Recoverable: recoverable}
}

// ToolCallMetadata records one tool invocation within a run.
type ToolCallMetadata struct {
	ToolName   string `json:"tool_name"`
	InputSize  int    `json:"input_size"`
	OutputSize int    `json:"output_size"`
	DurationMs int64  `json:"duration_ms"`
	Success    bool   `json:"success"`
}

// OutputMetadata describes how a response was produced.
type OutputMetadata struct {
	Confidence       float64            `json:"confidence"`
	ExecutionTimeMs  int64              `json:"execution_time_ms"`
	ToolCalls        []ToolCallMetadata `json:"tool_calls"`
	AgentName        string             `json:"agent_name,omitempty"`
	SchemaVersion    string             `json:"schema_version,omitempty"`
	ValidationResult *ValidationResult  `json:"validation_result,omitempty"`
}

// ValidationErrorType classifies a handoff validation error.
type ValidationErrorType string

const (
	MissingRequired ValidationErrorType = "MissingRequired"
	TypeMismatch    ValidationErrorType = "TypeMismatch"
	MinLength       ValidationErrorType = "MinLength"
	MaxLength       ValidationErrorType = "MaxLength"
	Pattern         ValidationErrorType = "Pattern"
	Range           ValidationErrorType = "Range"
	Enum            ValidationErrorType = "Enum"
	SchemaNotFound  ValidationErrorType = "SchemaNotFound"
	AgentFailure    ValidationErrorType = "AgentFailure"
	AgentTimeout    ValidationErrorType = "AgentTimeout"
)

// ValidationError is one contract violation.
type ValidationError struct {
	Field     string              `json:"field"`
	ErrorType ValidationErrorType `json:"error_type"`
	Message   string              `json:"message"`
	Expected  string              `json:"expected,omitempty"`
	Actual    string              `json:"actual,omitempty"`
}

// ValidationResult is valid exactly when Errors is empty.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Errors   []ValidationError `json:"errors"`
	Warnings []string          `json:"warnings"`
}

// Messages joins the error messages as "field: message" pairs.
func (v ValidationResult) Messages() string {
	parts := make([]string, 0, len(v.Errors))
	for _, e := range v.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return strings.Join(parts, ", ")
}

// Result is the caller-facing projection of a Response.
type Result struct {
	Success bool   `json:"success"`
	Result  string `json:"result"`
	Steps   []Step `json:"steps"`
	Error   string `json:"error,omitempty"`
}

// ToResult projects a Response for callers.
func ToResult(r Response) Result {
	switch r.Outcome {
	case OutcomeSuccess:
		return Result{Success: true, Result: r.Result, Steps: r.Steps}
	case OutcomeFailure:
		return Result{Success: false, Result: "", Steps: r.Steps, Error: r.Error}
	case OutcomeTimeout:
		return Result{Success: false, Result: r.PartialResult, Steps: r.Steps, Error: "Max iterations reached"}
	default:
		return Result{Success: false, Steps: r.Steps, Error: r.UnknownOutcomeError()}
	}
}
