// Package handoff validates one agent's output against the contract the
// next stage of a pipeline relies on.
package handoff

import "github.com/nidhogg/taskforce/internal/agent"

// Validation results are shared with agent metadata.
type (
	ValidationResult = agent.ValidationResult
	ValidationError  = agent.ValidationError
)

// ContractNotFound is reported when validating against an unknown contract.
const ContractNotFound agent.ValidationErrorType = "ContractNotFound"

// RuleType selects how a ValidationRule constraint is read.
type RuleType string

const (
	RuleMinLength RuleType = "MinLength"
	RuleMaxLength RuleType = "MaxLength"
	RulePattern   RuleType = "Pattern"
	RuleRange     RuleType = "Range"
	RuleEnum      RuleType = "Enum"
	RuleCustom    RuleType = "Custom"
)

// ValidationRule constrains one field. Constraint formats: an integer for
// MinLength and MaxLength, a regular expression for Pattern, "min..max" for
// Range, a comma-separated allow-list for Enum. Custom is never checked.
type ValidationRule struct {
	Field      string   `json:"field" yaml:"field"`
	RuleType   RuleType `json:"rule_type" yaml:"rule_type"`
	Constraint string   `json:"constraint" yaml:"constraint"`
}

// OutputSchema describes the JSON an agent must produce. Field names use
// dot notation for nested objects.
type OutputSchema struct {
	SchemaVersion   string            `json:"schema_version" yaml:"schema_version"`
	RequiredFields  []string          `json:"required_fields" yaml:"required_fields"`
	OptionalFields  []string          `json:"optional_fields" yaml:"optional_fields"`
	FieldTypes      map[string]string `json:"field_types" yaml:"field_types"`
	ValidationRules []ValidationRule  `json:"validation_rules" yaml:"validation_rules"`
}

// Contract is what a downstream stage requires of an agent's output.
type Contract struct {
	FromAgent          string       `json:"from_agent" yaml:"from_agent"`
	ToAgent            string       `json:"to_agent,omitempty" yaml:"to_agent"`
	Schema             OutputSchema `json:"schema" yaml:"schema"`
	MaxExecutionTimeMs int64        `json:"max_execution_time_ms,omitempty" yaml:"max_execution_time_ms"`
}

// ContractName is the key a supervisor looks up for agent's output.
func ContractName(agentName string) string {
	return agentName + "_handoff"
}

func success(warnings []string) ValidationResult {
	if warnings == nil {
		warnings = []string{}
	}
	return ValidationResult{Valid: true, Errors: []ValidationError{}, Warnings: warnings}
}

func failure(errs []ValidationError, warnings []string) ValidationResult {
	if warnings == nil {
		warnings = []string{}
	}
	return ValidationResult{Valid: false, Errors: errs, Warnings: warnings}
}

func result(errs []ValidationError, warnings []string) ValidationResult {
	if len(errs) == 0 {
		return success(warnings)
	}
	return failure(errs, warnings)
}
