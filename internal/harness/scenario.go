package harness

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/stateres/internal/eventauth"
)

//go:embed schema.cue
var schemaCUE string

// DefaultVersion is used when a scenario does not name a room version.
const DefaultVersion = eventauth.RoomVersion("10")

// Scenario defines a resolution scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Version is the room version. Defaults to DefaultVersion.
	Version eventauth.RoomVersion `yaml:"version,omitempty"`

	// RoomID overrides the fixture room id.
	RoomID string `yaml:"room_id,omitempty"`

	// Missing lists aliases that may be referenced but are never stored.
	Missing []string `yaml:"missing,omitempty"`

	// Events make up the room DAG, in creation order.
	Events []EventStep `yaml:"events"`

	// StateSets are the forks to resolve, each a list of state event aliases.
	StateSets [][]string `yaml:"state_sets"`

	// Assertions validate the resolution outcome.
	Assertions []Assertion `yaml:"assertions"`
}

// EventStep describes one event of the scenario DAG.
type EventStep struct {
	ID       string         `yaml:"id"`
	Type     string         `yaml:"type"`
	Sender   string         `yaml:"sender"`
	StateKey *string        `yaml:"state_key,omitempty"`
	Content  map[string]any `yaml:"content"`
	Prev     []string       `yaml:"prev,omitempty"`
	Auth     []string       `yaml:"auth,omitempty"`
	TS       int64          `yaml:"ts,omitempty"`
	Redacts  string         `yaml:"redacts,omitempty"`
}

// Assertion validates the resolved state or the resolution error.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Events lists aliases (state_equals, state_contains, state_excludes).
	Events []string `yaml:"events,omitempty"`

	// Code is the expected error code (error).
	Code string `yaml:"code,omitempty"`

	// Event is the alias the error must name (error, optional).
	Event string `yaml:"event,omitempty"`
}

// Assertion type constants.
const (
	AssertStateEquals   = "state_equals"
	AssertStateContains = "state_contains"
	AssertStateExcludes = "state_excludes"
	AssertError         = "error"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields, fails the schema, or references undefined aliases.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateSchema(generic); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	if scenario.Version == "" {
		scenario.Version = DefaultVersion
	}
	return &scenario, nil
}

// validateSchema unifies the decoded document with #Scenario.
func validateSchema(doc any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Scenario"))
	v := def.Unify(ctx.Encode(doc))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema: %s", cueerrors.Details(err, nil))
	}
	return nil
}

// validateScenario checks the cross references the schema cannot express.
func validateScenario(s *Scenario) error {
	known := make(map[string]bool, len(s.Events)+len(s.Missing))
	for _, m := range s.Missing {
		known[m] = true
	}

	for i, ev := range s.Events {
		if known[ev.ID] {
			return fmt.Errorf("events[%d]: duplicate id %q", i, ev.ID)
		}
		known[ev.ID] = true
	}

	// Forward references are allowed so scenarios can describe auth cycles.
	for i, ev := range s.Events {
		for _, ref := range append(append([]string{}, ev.Prev...), ev.Auth...) {
			if !known[ref] {
				return fmt.Errorf("events[%d] (%s): unknown reference %q", i, ev.ID, ref)
			}
		}
		if ev.Redacts != "" && !known[ev.Redacts] {
			return fmt.Errorf("events[%d] (%s): unknown redacts %q", i, ev.ID, ev.Redacts)
		}
	}

	stateEvents := make(map[string]bool, len(s.Events))
	for _, ev := range s.Events {
		if ev.StateKey != nil {
			stateEvents[ev.ID] = true
		}
	}
	for i, set := range s.StateSets {
		for _, alias := range set {
			if !stateEvents[alias] {
				return fmt.Errorf("state_sets[%d]: %q is not a state event", i, alias)
			}
		}
	}

	for i, a := range s.Assertions {
		for _, alias := range a.Events {
			if !known[alias] {
				return fmt.Errorf("assertions[%d]: unknown event %q", i, alias)
			}
		}
		if a.Event != "" && !known[a.Event] {
			return fmt.Errorf("assertions[%d]: unknown event %q", i, a.Event)
		}
	}

	return nil
}
