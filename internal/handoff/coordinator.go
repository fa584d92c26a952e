package handoff

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nidhogg/taskforce/internal/agent"
	"github.com/nidhogg/taskforce/internal/metrics"
	"go.uber.org/zap"
)

// Coordinator holds registered contracts and validates agent responses
// against them. Contracts are registered at startup and read-only afterwards.
type Coordinator struct {
	validator *Validator
	contracts map[string]Contract
	mu        sync.RWMutex
	metrics   *metrics.Recorder
	logger    *zap.Logger
}

// NewCoordinator creates a coordinator with no contracts.
func NewCoordinator(rec *metrics.Recorder, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		validator: NewValidator(),
		contracts: make(map[string]Contract),
		metrics:   rec,
		logger:    logger,
	}
}

// Register adds or replaces the contract called name.
func (c *Coordinator) Register(name string, contract Contract) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.validator.RegisterSchema(name, contract.Schema)
	c.contracts[name] = contract
	c.logger.Info("registered handoff contract",
		zap.String("name", name),
		zap.String("from", contract.FromAgent),
		zap.String("to", contract.ToAgent))
}

// Get returns the contract called name.
func (c *Coordinator) Get(name string) (Contract, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	contract, ok := c.contracts[name]
	return contract, ok
}

// Names lists registered contracts in sorted order.
func (c *Coordinator) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.contracts))
	for n := range c.contracts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate checks resp against the contract called name. Failure and Timeout
// responses are rejected outright; time limits only produce warnings.
func (c *Coordinator) Validate(name string, resp agent.Response) ValidationResult {
	contract, ok := c.Get(name)
	if !ok {
		return failure([]ValidationError{{
			Field:     "contract",
			ErrorType: ContractNotFound,
			Message:   fmt.Sprintf("Handoff contract '%s' not registered", name),
		}}, nil)
	}

	res := c.validate(name, contract, resp)
	c.metrics.ObserveValidation(name, res.Valid)
	if !res.Valid {
		c.logger.Warn("handoff validation failed",
			zap.String("contract", name),
			zap.String("errors", res.Messages()))
	}
	return res
}

func (c *Coordinator) validate(name string, contract Contract, resp agent.Response) ValidationResult {
	switch resp.Outcome {
	case agent.OutcomeSuccess:
	case agent.OutcomeFailure:
		return failure([]ValidationError{{
			Field:     "response",
			ErrorType: agent.AgentFailure,
			Message:   "Agent failed to complete task",
			Expected:  "Success",
			Actual:    "Failure",
		}}, nil)
	case agent.OutcomeTimeout:
		return failure([]ValidationError{{
			Field:     "response",
			ErrorType: agent.AgentTimeout,
			Message:   "Agent timed out before completing task",
			Expected:  "Success",
			Actual:    "Timeout",
		}}, nil)
	default:
		return failure([]ValidationError{{
			Field:     "response",
			ErrorType: agent.AgentFailure,
			Message:   resp.UnknownOutcomeError(),
			Expected:  "Success",
			Actual:    string(resp.Outcome),
		}}, nil)
	}

	var (
		errs     []ValidationError
		warnings []string
	)
	if meta := resp.Metadata; meta != nil {
		if contract.MaxExecutionTimeMs > 0 && meta.ExecutionTimeMs > contract.MaxExecutionTimeMs {
			warnings = append(warnings, fmt.Sprintf("Execution time (%dms) exceeded limit (%dms)",
				meta.ExecutionTimeMs, contract.MaxExecutionTimeMs))
		}
		if prior := meta.ValidationResult; prior != nil && !prior.Valid {
			errs = append(errs, prior.Errors...)
		}
	}

	var output any
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Result)), &output); err != nil {
		if expectsStructured(contract.Schema) {
			warnings = append(warnings, "Result is not valid JSON, but schema expects structured data")
		}
		return result(errs, warnings)
	}

	schemaResult := c.validator.Validate(name, output)
	errs = append(errs, schemaResult.Errors...)
	warnings = append(warnings, schemaResult.Warnings...)
	return result(errs, warnings)
}

func expectsStructured(schema OutputSchema) bool {
	for _, t := range schema.FieldTypes {
		if t != "string" {
			return true
		}
	}
	return false
}
