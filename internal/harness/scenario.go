package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fieldsync/internal/mutation"
)

// Scenario defines one sync scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Connected is the engine's initial connectivity. Default: true.
	Connected *bool `yaml:"connected,omitempty"`

	// Responses are scripted transport replies, consumed in order.
	Responses []Response `yaml:"responses,omitempty"`

	// DefaultResponse answers once Responses is exhausted.
	DefaultResponse *Response `yaml:"default_response,omitempty"`

	// Steps drive the engine.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and final queue.
	Assertions []Assertion `yaml:"assertions"`
}

// Response is one scripted transport reply. A non-empty Error simulates a
// network failure.
type Response struct {
	Status int    `yaml:"status,omitempty"`
	Body   any    `yaml:"body,omitempty"`
	Error  string `yaml:"error,omitempty"`
}

// Step is one engine operation.
type Step struct {
	// Action is one of enqueue, connect, disconnect, drain.
	Action string `yaml:"action"`

	// Method, URL, Body and TempID are used by enqueue.
	Method string `yaml:"method,omitempty"`
	URL    string `yaml:"url,omitempty"`
	Body   any    `yaml:"body,omitempty"`
	TempID *int64 `yaml:"temp_id,omitempty"`
}

// Step action constants.
const (
	StepEnqueue    = "enqueue"
	StepConnect    = "connect"
	StepDisconnect = "disconnect"
	StepDrain      = "drain"
)

// Assertion validates the trace or the final queue.
type Assertion struct {
	// Type is one of call_count, call, pending_count, status_sequence.
	Type string `yaml:"type"`

	// Count is used by call_count and pending_count.
	Count int `yaml:"count,omitempty"`

	// Index (1-based), Method, URL and Body are used by call. Empty fields
	// are not checked; Body is compared as JSON.
	Index  int    `yaml:"index,omitempty"`
	Method string `yaml:"method,omitempty"`
	URL    string `yaml:"url,omitempty"`
	Body   any    `yaml:"body,omitempty"`

	// Statuses is used by status_sequence.
	Statuses []string `yaml:"statuses,omitempty"`
}

// Assertion type constants.
const (
	AssertCallCount      = "call_count"
	AssertCall           = "call"
	AssertPendingCount   = "pending_count"
	AssertStatusSequence = "status_sequence"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
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

// LoadScenarios loads every *.yaml and *.yml file in dir whose base name
// matches filter (a filepath.Match pattern; empty matches all), sorted by
// file name.
func LoadScenarios(dir, filter string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenarios dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if filter != "" {
			ok, err := filepath.Match(filter, e.Name())
			if err != nil {
				return nil, fmt.Errorf("bad filter %q: %w", filter, err)
			}
			if !ok {
				continue
			}
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	scenarios := make([]*Scenario, 0, len(names))
	for _, name := range names {
		s, err := LoadScenario(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, r := range s.Responses {
		if err := validateResponse(fmt.Sprintf("responses[%d]", i), r); err != nil {
			return err
		}
	}
	if s.DefaultResponse != nil {
		if err := validateResponse("default_response", *s.DefaultResponse); err != nil {
			return err
		}
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

func validateResponse(where string, r Response) error {
	if r.Error != "" {
		return nil
	}
	if r.Status < 100 || r.Status > 599 {
		return fmt.Errorf("%s: status must be an HTTP status code, got %d", where, r.Status)
	}
	if _, err := toJSON(r.Body); err != nil {
		return fmt.Errorf("%s: body: %w", where, err)
	}
	return nil
}

func validateStep(index int, step Step) error {
	switch step.Action {
	case StepEnqueue:
		if _, err := mutation.ParseMethod(step.Method); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
		if step.URL == "" {
			return fmt.Errorf("steps[%d]: url is required for enqueue", index)
		}
		if _, err := toJSON(step.Body); err != nil {
			return fmt.Errorf("steps[%d]: body: %w", index, err)
		}
	case StepConnect, StepDisconnect, StepDrain:
		if step.Method != "" || step.URL != "" || step.Body != nil || step.TempID != nil {
			return fmt.Errorf("steps[%d]: %s takes no arguments", index, step.Action)
		}
	case "":
		return fmt.Errorf("steps[%d]: action is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", index, step.Action)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertCallCount, AssertPendingCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertCall:
		if a.Index < 1 {
			return fmt.Errorf("assertions[%d]: index (1-based) is required for call", index)
		}
	case AssertStatusSequence:
		if len(a.Statuses) == 0 {
			return fmt.Errorf("assertions[%d]: statuses list is required for status_sequence", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

// toJSON renders a YAML body as JSON text. Strings pass through verbatim
// and must already be valid JSON; nil means no body.
func toJSON(v any) (json.RawMessage, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case string:
		if !json.Valid([]byte(b)) {
			return nil, fmt.Errorf("not valid JSON: %q", b)
		}
		return json.RawMessage(b), nil
	default:
		out, err := json.Marshal(b)
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}
