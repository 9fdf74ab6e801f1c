package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines an executable engine scenario: a sequence of surface
// operations under a fake clock, followed by assertions over the resulting
// ledger and state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config is CUE source unified with the configuration schema.
	// Empty means the defaults.
	Config string `yaml:"config,omitempty"`

	// Mappings selects the mapping artifacts: "generated" (default) derives
	// a valid cards/lattice mapping, "none" boots with mirroring disabled.
	Mappings string `yaml:"mappings,omitempty"`

	// Steps run in order against one engine.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final ledger and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is a single surface operation.
type Step struct {
	// Op is one of the Op* constants.
	Op string `yaml:"op"`

	// As names the session created by a create step.
	As string `yaml:"as,omitempty"`

	// Session references a session by its As name (consent, resolve, abort).
	Session string `yaml:"session,omitempty"`

	Participants []string `yaml:"participants,omitempty"`
	FusionType   string   `yaml:"fusion_type,omitempty"`
	Reason       string   `yaml:"reason,omitempty"`

	// Duration is a Go duration string for advance steps.
	Duration string `yaml:"duration,omitempty"`

	// ID is the entity for node, card and health steps, and the source of
	// sync and resonance steps.
	ID      string   `yaml:"id,omitempty"`
	Targets []string `yaml:"targets,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect checks a step's outcome. Error is a boundary error code; State is
// the session state after a session step; Severity is the entity severity
// after a health step.
type Expect struct {
	Error    string `yaml:"error,omitempty"`
	State    string `yaml:"state,omitempty"`
	Severity string `yaml:"severity,omitempty"`
}

// Assertion validates the final ledger or state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Actions is the expected audit subsequence (audit_order).
	Actions []string `yaml:"actions,omitempty"`

	// Action and Count check an exact audit count (audit_count).
	Action string `yaml:"action,omitempty"`
	Count  int    `yaml:"count"`

	// Session and State check a session's final state (session_state).
	Session string `yaml:"session,omitempty"`
	State   string `yaml:"state,omitempty"`

	// Min and Max bound overall health (health_between).
	Min float64 `yaml:"min,omitempty"`
	Max float64 `yaml:"max,omitempty"`

	// Features lists the expected disabled features (disabled_features).
	Features []string `yaml:"features,omitempty"`
}

// Step operations.
const (
	OpCreate    = "create"
	OpConsent   = "consent"
	OpResolve   = "resolve"
	OpAbort     = "abort"
	OpAdvance   = "advance"
	OpPass      = "pass"
	OpSync      = "sync"
	OpResonance = "resonance"
	OpNode      = "node"
	OpCard      = "card"
	OpHealth    = "health"
)

// Assertion types.
const (
	AssertAuditOrder       = "audit_order"
	AssertAuditCount       = "audit_count"
	AssertSessionState     = "session_state"
	AssertHealthBetween    = "health_between"
	AssertDisabledFeatures = "disabled_features"
)

// Mapping modes.
const (
	MappingsGenerated = "generated"
	MappingsNone      = "none"
)

// LoadScenario reads and parses a scenario YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML. Unknown fields are rejected so typos
// surface instead of silently skipping a check.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	switch s.Mappings {
	case "", MappingsGenerated, MappingsNone:
	default:
		return fmt.Errorf("unknown mappings mode %q", s.Mappings)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	sessions := make(map[string]bool)
	for i, step := range s.Steps {
		if err := validateStep(i, step, sessions); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, sessions); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step, sessions map[string]bool) error {
	switch step.Op {
	case OpCreate:
		if step.As == "" {
			return fmt.Errorf("steps[%d]: as is required for create", i)
		}
		if sessions[step.As] {
			return fmt.Errorf("steps[%d]: session %q already defined", i, step.As)
		}
		sessions[step.As] = true
	case OpConsent, OpResolve, OpAbort:
		if !sessions[step.Session] {
			return fmt.Errorf("steps[%d]: unknown session %q", i, step.Session)
		}
	case OpAdvance:
		d, err := time.ParseDuration(step.Duration)
		if err != nil {
			return fmt.Errorf("steps[%d]: invalid duration: %w", i, err)
		}
		if d < 0 {
			return fmt.Errorf("steps[%d]: duration must be non-negative", i)
		}
	case OpSync:
		if step.ID == "" {
			return fmt.Errorf("steps[%d]: id is required for sync", i)
		}
	case OpResonance:
		if step.ID == "" || len(step.Targets) != 1 {
			return fmt.Errorf("steps[%d]: resonance needs id and exactly one target", i)
		}
	case OpNode, OpCard, OpHealth:
		if step.ID == "" {
			return fmt.Errorf("steps[%d]: id is required for %s", i, step.Op)
		}
	case OpPass:
	case "":
		return fmt.Errorf("steps[%d]: op is required", i)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
	}
	return nil
}

func validateAssertion(i int, a Assertion, sessions map[string]bool) error {
	switch a.Type {
	case AssertAuditOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for audit_order", i)
		}
	case AssertAuditCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for audit_count", i)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", i)
		}
	case AssertSessionState:
		if !sessions[a.Session] {
			return fmt.Errorf("assertions[%d]: unknown session %q", i, a.Session)
		}
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for session_state", i)
		}
	case AssertHealthBetween:
		if a.Max != 0 && a.Min > a.Max {
			return fmt.Errorf("assertions[%d]: min %g exceeds max %g", i, a.Min, a.Max)
		}
	case AssertDisabledFeatures:
	case "":
		return fmt.Errorf("assertions[%d]: type is required", i)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
	}
	return nil
}
