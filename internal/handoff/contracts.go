package handoff

import (
	"fmt"
	"os"

	"github.com/nidhogg/taskforce/internal/agent"
	"gopkg.in/yaml.v3"
)

// DatabaseOutputContract is the handoff from a database agent to an analysis agent.
func DatabaseOutputContract() Contract {
	return Contract{
		FromAgent: "database_agent",
		ToAgent:   "analysis_agent",
		Schema: OutputSchema{
			SchemaVersion:  "1.0",
			RequiredFields: []string{"data"},
			OptionalFields: []string{"row_count", "query"},
			FieldTypes: map[string]string{
				"data":      "array",
				"row_count": "number",
			},
			ValidationRules: []ValidationRule{
				{Field: "row_count", RuleType: RuleRange, Constraint: "0..1000000"},
			},
		},
		MaxExecutionTimeMs: 30000,
	}
}

// AnalysisOutputContract is the handoff from an analysis agent to a reporting agent.
func AnalysisOutputContract() Contract {
	return Contract{
		FromAgent: "analysis_agent",
		ToAgent:   "reporting_agent",
		Schema: OutputSchema{
			SchemaVersion:  "1.0",
			RequiredFields: []string{"insights"},
			OptionalFields: []string{"metrics", "recommendations"},
			FieldTypes: map[string]string{
				"insights": "array",
				"metrics":  "object",
			},
			ValidationRules: []ValidationRule{
				{Field: "insights", RuleType: RuleMinLength, Constraint: "1"},
			},
		},
		MaxExecutionTimeMs: 60000,
	}
}

// contractFile is the on-disk layout read by LoadContracts.
type contractFile struct {
	Contracts map[string]Contract `yaml:"contracts"`
}

// LoadContracts reads named contracts from a YAML (or JSON) file.
func LoadContracts(path string) (map[string]Contract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read contracts: %w", err)
	}
	var f contractFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse contracts: %w", err)
	}
	for name, c := range f.Contracts {
		for _, r := range c.Schema.ValidationRules {
			switch r.RuleType {
			case RuleMinLength, RuleMaxLength, RulePattern, RuleRange, RuleEnum, RuleCustom:
			default:
				return nil, fmt.Errorf("contract %s: unknown rule type %q", name, r.RuleType)
			}
		}
	}
	return f.Contracts, nil
}

// RegisterAll registers every contract in m.
func (c *Coordinator) RegisterAll(m map[string]Contract) {
	for name, contract := range m {
		c.Register(name, contract)
	}
}

// EnrichMetadata attaches a validation result and schema version to meta,
// creating metadata when meta is nil.
func EnrichMetadata(meta *agent.OutputMetadata, v ValidationResult, schemaVersion string) *agent.OutputMetadata {
	out := &agent.OutputMetadata{}
	if meta != nil {
		cp := *meta
		out = &cp
	}
	out.ValidationResult = &v
	out.SchemaVersion = schemaVersion
	return out
}
