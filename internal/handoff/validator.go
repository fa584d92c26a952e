package handoff

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/nidhogg/taskforce/internal/agent"
)

// Validator checks decoded JSON values against named schemas.
type Validator struct {
	schemas  map[string]OutputSchema
	patterns sync.Map // constraint -> *regexp.Regexp, nil when invalid
	mu       sync.RWMutex
}

// NewValidator creates a validator with no schemas.
func NewValidator() *Validator {
	return &Validator{schemas: make(map[string]OutputSchema)}
}

// RegisterSchema adds or replaces a schema.
func (v *Validator) RegisterSchema(name string, schema OutputSchema) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.schemas[name] = schema
}

// Validate checks output against the schema registered under name.
func (v *Validator) Validate(name string, output any) ValidationResult {
	v.mu.RLock()
	schema, ok := v.schemas[name]
	v.mu.RUnlock()
	if !ok {
		return failure([]ValidationError{{
			Field:     "schema",
			ErrorType: agent.SchemaNotFound,
			Message:   fmt.Sprintf("Schema '%s' not registered", name),
		}}, nil)
	}
	return v.ValidateSchema(schema, output)
}

// ValidateSchema checks output, a value decoded by encoding/json, against schema.
func (v *Validator) ValidateSchema(schema OutputSchema, output any) ValidationResult {
	var (
		errs     []ValidationError
		warnings []string
	)

	for _, field := range schema.RequiredFields {
		if _, ok := lookup(output, field); !ok {
			errs = append(errs, ValidationError{
				Field:     field,
				ErrorType: agent.MissingRequired,
				Message:   fmt.Sprintf("Required field '%s' is missing", field),
				Expected:  "present",
				Actual:    "missing",
			})
		}
	}

	for _, field := range sortedKeys(schema.FieldTypes) {
		expected := schema.FieldTypes[field]
		value, ok := lookup(output, field)
		if !ok || checkType(value, expected) {
			continue
		}
		actual := valueType(value)
		errs = append(errs, ValidationError{
			Field:     field,
			ErrorType: agent.TypeMismatch,
			Message:   fmt.Sprintf("Field '%s' has wrong type. Expected: %s, Actual: %s", field, expected, actual),
			Expected:  expected,
			Actual:    actual,
		})
	}

	for _, rule := range schema.ValidationRules {
		value, ok := lookup(output, rule.Field)
		if !ok {
			// Missing required fields were already reported above.
			if !slices.Contains(schema.RequiredFields, rule.Field) {
				warnings = append(warnings, fmt.Sprintf("Optional field '%s' not present for validation", rule.Field))
			}
			continue
		}
		if e := v.applyRule(rule, value); e != nil {
			errs = append(errs, *e)
		}
	}

	return result(errs, warnings)
}

func (v *Validator) applyRule(rule ValidationRule, value any) *ValidationError {
	switch rule.RuleType {
	case RuleMinLength, RuleMaxLength:
		s, ok := value.(string)
		if !ok {
			return nil
		}
		limit, err := strconv.Atoi(strings.TrimSpace(rule.Constraint))
		if err != nil {
			return nil
		}
		n := utf8.RuneCountInString(s)
		if rule.RuleType == RuleMinLength && n < limit {
			return &ValidationError{
				Field:     rule.Field,
				ErrorType: agent.MinLength,
				Message:   fmt.Sprintf("Field '%s' is too short. Min: %d, Actual: %d", rule.Field, limit, n),
				Expected:  fmt.Sprintf("length >= %d", limit),
				Actual:    strconv.Itoa(n),
			}
		}
		if rule.RuleType == RuleMaxLength && n > limit {
			return &ValidationError{
				Field:     rule.Field,
				ErrorType: agent.MaxLength,
				Message:   fmt.Sprintf("Field '%s' is too long. Max: %d, Actual: %d", rule.Field, limit, n),
				Expected:  fmt.Sprintf("length <= %d", limit),
				Actual:    strconv.Itoa(n),
			}
		}

	case RulePattern:
		s, ok := value.(string)
		if !ok {
			return nil
		}
		re := v.pattern(rule.Constraint)
		if re != nil && !re.MatchString(s) {
			return &ValidationError{
				Field:     rule.Field,
				ErrorType: agent.Pattern,
				Message:   fmt.Sprintf("Field '%s' does not match pattern: %s", rule.Field, rule.Constraint),
				Expected:  rule.Constraint,
				Actual:    s,
			}
		}

	case RuleRange:
		n, ok := value.(float64)
		if !ok {
			return nil
		}
		lo, hi, ok := parseRange(rule.Constraint)
		if ok && (n < lo || n > hi) {
			actual := strconv.FormatFloat(n, 'f', -1, 64)
			return &ValidationError{
				Field:     rule.Field,
				ErrorType: agent.Range,
				Message:   fmt.Sprintf("Field '%s' out of range. Range: %s, Actual: %s", rule.Field, rule.Constraint, actual),
				Expected:  rule.Constraint,
				Actual:    actual,
			}
		}

	case RuleEnum:
		s, ok := value.(string)
		if !ok {
			return nil
		}
		for _, allowed := range strings.Split(rule.Constraint, ",") {
			if strings.TrimSpace(allowed) == s {
				return nil
			}
		}
		return &ValidationError{
			Field:     rule.Field,
			ErrorType: agent.Enum,
			Message:   fmt.Sprintf("Field '%s' has invalid value. Allowed: [%s], Actual: %s", rule.Field, rule.Constraint, s),
			Expected:  "one of: " + rule.Constraint,
			Actual:    s,
		}

	case RuleCustom:
	}
	return nil
}

func (v *Validator) pattern(expr string) *regexp.Regexp {
	if cached, ok := v.patterns.Load(expr); ok {
		re, _ := cached.(*regexp.Regexp)
		return re
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		re = nil
	}
	v.patterns.Store(expr, re)
	return re
}

func parseRange(constraint string) (float64, float64, bool) {
	loText, hiText, ok := strings.Cut(constraint, "..")
	if !ok {
		return 0, 0, false
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(loText), 64)
	if err != nil {
		return 0, 0, false
	}
	hi, err := strconv.ParseFloat(strings.TrimSpace(hiText), 64)
	if err != nil {
		return 0, 0, false
	}
	return lo, hi, true
}

// lookup resolves a dot-separated path through nested objects.
func lookup(output any, path string) (any, bool) {
	current := output
	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func checkType(value any, expected string) bool {
	switch expected {
	case "string", "number", "boolean", "array", "object", "null":
		return valueType(value) == expected
	default:
		return true
	}
}

func valueType(value any) string {
	switch value.(type) {
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case nil:
		return "null"
	default:
		return "unknown"
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
