package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a propagation test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files use it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Topology is the directory holding the CUE topology.
	// Relative paths are resolved against the scenario file location.
	Topology string `yaml:"topology"`

	// Steps run in order; the harness waits for the bus to go idle after each.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final values and the journal.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one scenario action. Exactly one field must be set.
type Step struct {
	Set             *SetStep         `yaml:"set,omitempty"`
	Parallel        []SetStep        `yaml:"parallel,omitempty"`
	DestroyEnricher string           `yaml:"destroy_enricher,omitempty"`
	Reconfigure     *ReconfigureStep `yaml:"reconfigure,omitempty"`
}

// Kind names the populated field of the step, or "" when none or several are.
func (s Step) Kind() string {
	var kinds []string
	if s.Set != nil {
		kinds = append(kinds, StepSet)
	}
	if len(s.Parallel) > 0 {
		kinds = append(kinds, StepParallel)
	}
	if s.DestroyEnricher != "" {
		kinds = append(kinds, StepDestroyEnricher)
	}
	if s.Reconfigure != nil {
		kinds = append(kinds, StepReconfigure)
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// SetStep writes one sensor value.
type SetStep struct {
	Entity string `yaml:"entity"`
	Sensor string `yaml:"sensor"`

	// Value is converted with ir.FromAny; floats are rejected.
	Value any `yaml:"value"`

	// ExpectError marks a write that must be rejected (e.g. wrong type).
	ExpectError bool `yaml:"expect_error,omitempty"`
}

// ReconfigureStep changes one option of a running enricher.
type ReconfigureStep struct {
	Enricher string `yaml:"enricher"`

	// Option uses the topology spelling: computing, suppress_duplicates,
	// removing_if_result_is_null or key.
	Option string `yaml:"option"`
	Value  any    `yaml:"value"`

	// ExpectError marks a change that must be rejected.
	ExpectError bool `yaml:"expect_error,omitempty"`
}

// Assertion validates final sensor values or the journal.
type Assertion struct {
	// Type specifies the assertion type:
	// - "final_value": sensor is present with Value
	// - "absent": sensor has no value
	// - "write_count": sensor was written exactly Count times
	// - "trace_count": journal holds exactly Count matching events
	Type string `yaml:"type"`

	Entity string `yaml:"entity,omitempty"`
	Sensor string `yaml:"sensor,omitempty"`

	// Value is the expected value (used by final_value).
	Value any `yaml:"value,omitempty"`

	// Count is the expected number (used by write_count and trace_count).
	Count int `yaml:"count,omitempty"`
}

// Step kinds.
const (
	StepSet             = "set"
	StepParallel        = "parallel"
	StepDestroyEnricher = "destroy_enricher"
	StepReconfigure     = "reconfigure"
)

// Assertion type constants.
const (
	AssertFinalValue = "final_value"
	AssertAbsent     = "absent"
	AssertWriteCount = "write_count"
	AssertTraceCount = "trace_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// The topology path is resolved relative to the file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Topology != "" && !filepath.IsAbs(scenario.Topology) {
		scenario.Topology = filepath.Join(filepath.Dir(path), scenario.Topology)
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if _, err := os.Stat(scenario.Topology); err != nil {
		return nil, fmt.Errorf("invalid scenario: topology not found: %s", scenario.Topology)
	}

	return scenario, nil
}

// ParseScenario decodes scenario YAML without resolving or checking paths.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields and step and assertion shapes.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Topology == "" {
		return fmt.Errorf("topology is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, step Step) error {
	switch step.Kind() {
	case StepSet:
		return validateSet(fmt.Sprintf("steps[%d].set", index), *step.Set)
	case StepParallel:
		for j, set := range step.Parallel {
			if err := validateSet(fmt.Sprintf("steps[%d].parallel[%d]", index, j), set); err != nil {
				return err
			}
		}
	case StepDestroyEnricher:
	case StepReconfigure:
		if step.Reconfigure.Enricher == "" {
			return fmt.Errorf("steps[%d].reconfigure: enricher is required", index)
		}
		if step.Reconfigure.Option == "" {
			return fmt.Errorf("steps[%d].reconfigure: option is required", index)
		}
	default:
		return fmt.Errorf("steps[%d]: exactly one of set, parallel, destroy_enricher or reconfigure is required", index)
	}
	return nil
}

func validateSet(field string, set SetStep) error {
	if set.Entity == "" {
		return fmt.Errorf("%s: entity is required", field)
	}
	if set.Sensor == "" {
		return fmt.Errorf("%s: sensor is required", field)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFinalValue, AssertAbsent, AssertWriteCount:
		if a.Entity == "" || a.Sensor == "" {
			return fmt.Errorf("assertions[%d]: entity and sensor are required for %s", index, a.Type)
		}
	case AssertTraceCount:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if (a.Type == AssertWriteCount || a.Type == AssertTraceCount) && a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
	}

	return nil
}
