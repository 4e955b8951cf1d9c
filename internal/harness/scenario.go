package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// Scenario is a sequence of operations against one database.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is the schema file that opens the database. Relative paths are
	// resolved against the scenario file's directory.
	Schema string `yaml:"schema"`

	// Setup steps run first and must succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow steps run after setup; each may carry an expect clause.
	Flow []Step `yaml:"flow"`

	// Assertions check the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one operation.
type Step struct {
	Op        string           `yaml:"op"`
	Table     string           `yaml:"table,omitempty"`
	Index     string           `yaml:"index,omitempty"`
	Records   []map[string]any `yaml:"records,omitempty"`
	Record    map[string]any   `yaml:"record,omitempty"`
	Key       any              `yaml:"key,omitempty"`
	Patch     map[string]any   `yaml:"patch,omitempty"`
	Range     *RangeSpec       `yaml:"range,omitempty"`
	Limit     int              `yaml:"limit,omitempty"`
	Direction string           `yaml:"direction,omitempty"`
	Database  string           `yaml:"database,omitempty"`

	// Expect validates the step's outcome. Nil means the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// RangeSpec bounds getAll and getOrderedRange.
type RangeSpec struct {
	Only      any  `yaml:"only,omitempty"`
	Lower     any  `yaml:"lower,omitempty"`
	Upper     any  `yaml:"upper,omitempty"`
	LowerOpen bool `yaml:"lower_open,omitempty"`
	UpperOpen bool `yaml:"upper_open,omitempty"`
}

// Expect is the expected outcome of a step.
type Expect struct {
	// Status is SUCCESS or ERROR.
	Status string `yaml:"status"`

	// Error is the expected error kind, e.g. NotFoundError.
	Error string `yaml:"error,omitempty"`

	// Records is the exact, ordered result of a read.
	Records []map[string]any `yaml:"records,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Op is the operation name (trace_contains, trace_count).
	Op string `yaml:"op,omitempty"`

	// Ops is the expected operation order (trace_order).
	Ops []string `yaml:"ops,omitempty"`

	// Table names the table (trace_contains, final_state, record_count).
	Table string `yaml:"table,omitempty"`

	// Where selects records by exact field match (final_state).
	Where map[string]any `yaml:"where,omitempty"`

	// Expect is a subset of fields the selected record must hold
	// (final_state).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number (trace_count, record_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertRecordCount   = "record_count"
)

// Operation names.
const (
	OpOpen            = "open"
	OpInsertMany      = "insertMany"
	OpGetAll          = "getAll"
	OpGetOrderedRange = "getOrderedRange"
	OpUpdateByKey     = "updateByKey"
	OpDeleteByKey     = "deleteByKey"
	OpUpsert          = "upsert"
	OpDropDatabase    = "dropDatabase"
	OpReopen          = "reopen"
)

var stepOps = []string{
	OpInsertMany, OpGetAll, OpGetOrderedRange, OpUpdateByKey,
	OpDeleteByKey, OpUpsert, OpDropDatabase, OpReopen,
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields (typos) and missing required fields are errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) {
		scenario.Schema = filepath.Join(filepath.Dir(path), scenario.Schema)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if _, err := os.Stat(s.Schema); os.IsNotExist(err) {
		return fmt.Errorf("schema file not found: %s", s.Schema)
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(fmt.Sprintf("setup[%d]", i), step); err != nil {
			return err
		}
		if step.Expect != nil {
			return fmt.Errorf("setup[%d]: setup steps cannot carry expect", i)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(fmt.Sprintf("flow[%d]", i), step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(where string, step Step) error {
	if !slices.Contains(stepOps, step.Op) {
		return fmt.Errorf("%s: unknown op %q", where, step.Op)
	}
	switch step.Op {
	case OpDropDatabase, OpReopen:
	default:
		if step.Table == "" {
			return fmt.Errorf("%s: table is required for %s", where, step.Op)
		}
	}
	switch step.Op {
	case OpGetOrderedRange:
		if step.Index == "" {
			return fmt.Errorf("%s: index is required for %s", where, step.Op)
		}
	case OpUpdateByKey, OpDeleteByKey:
		if step.Key == nil {
			return fmt.Errorf("%s: key is required for %s", where, step.Op)
		}
	case OpUpsert:
		if step.Record == nil {
			return fmt.Errorf("%s: record is required for upsert", where)
		}
	}
	if e := step.Expect; e != nil {
		if e.Status != "SUCCESS" && e.Status != "ERROR" {
			return fmt.Errorf("%s.expect: status must be SUCCESS or ERROR", where)
		}
		if e.Error != "" && e.Status != "ERROR" {
			return fmt.Errorf("%s.expect: error requires status ERROR", where)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertRecordCount:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for record_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
