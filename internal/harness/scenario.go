package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/opqueue/internal/config"
	"github.com/roach88/opqueue/internal/op"
)

// Scenario is a scripted sequence of scheduler calls with assertions on
// the resulting event trace.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario demonstrates.
	Description string `yaml:"description"`

	// Config overrides scheduler settings, in configuration file form.
	Config *config.File `yaml:"config,omitempty"`

	Steps []Step `yaml:"steps"`

	Assertions []Assertion `yaml:"assertions"`
}

// Step kinds.
const (
	StepQueue          = "queue"
	StepTick           = "tick"
	StepWait           = "wait"
	StepEnterBatch     = "enter_batch"
	StepExitBatch      = "exit_batch"
	StepCancel         = "cancel"
	StepCancelCategory = "cancel_category"
	StepPause          = "pause"
	StepResume         = "resume"
	StepClear          = "clear"
	StepRelease        = "release"
	StepAwaitRunning   = "await_running"
	StepAwaitProgress  = "await_progress"
)

// Step is one scenario action. In YAML a step without arguments is a bare
// string ("- tick"); any other step is a single-key mapping
// ("- cancel: a").
type Step struct {
	Kind string

	// Queue is set for queue steps.
	Queue *QueueStep

	// Target is the operation label for cancel, await_running and
	// await_progress, the category for cancel_category and the gate name
	// for release.
	Target string

	// Percent is the threshold for await_progress.
	Percent float64
}

// QueueStep admits one scripted operation.
type QueueStep struct {
	// Label names the operation in the trace. Defaults to "op<id>".
	Label       string `yaml:"label"`
	Category    string `yaml:"category"`
	Description string `yaml:"description"`

	// Progress is reported in order once the operation starts.
	Progress []ProgressStep `yaml:"progress"`

	// Gate, if set, blocks the operation after its progress steps until a
	// release step names the same gate.
	Gate string `yaml:"gate"`

	// Fail makes the operation return an error with this message.
	Fail string `yaml:"fail"`

	// Async admits through QueueOperationAsync and records the outcome.
	Async bool `yaml:"async"`

	Obsoletes       []string `yaml:"obsoletes"`
	SkipRunning     *bool    `yaml:"skip_running"`
	RespectProgress *bool    `yaml:"respect_progress"`
	Cascading       bool     `yaml:"cascading"`
	SkipTriggers    bool     `yaml:"skip_triggers"`
	Selectors       []string `yaml:"selectors"`

	// ObsoleteSelectors obsoletes live operations sharing any of these
	// selectors.
	ObsoleteSelectors []string `yaml:"obsolete_selectors"`
}

// ProgressStep is one progress report.
type ProgressStep struct {
	Percent float64 `yaml:"percent"`
	Message string  `yaml:"message"`
	Phase   string  `yaml:"phase"`
}

var bareSteps = map[string]bool{
	StepTick:       true,
	StepWait:       true,
	StepEnterBatch: true,
	StepExitBatch:  true,
	StepPause:      true,
	StepResume:     true,
	StepClear:      true,
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if !bareSteps[node.Value] {
			return fmt.Errorf("line %d: step %q needs an argument or is unknown", node.Line, node.Value)
		}
		s.Kind = node.Value
		return nil

	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return fmt.Errorf("line %d: a step must have exactly one key", node.Line)
		}
		key, value := node.Content[0].Value, node.Content[1]
		s.Kind = key

		switch key {
		case StepQueue:
			var q QueueStep
			if err := value.Decode(&q); err != nil {
				return err
			}
			s.Queue = &q
		case StepCancel, StepCancelCategory, StepRelease, StepAwaitRunning:
			return value.Decode(&s.Target)
		case StepAwaitProgress:
			var p struct {
				Label   string  `yaml:"label"`
				Percent float64 `yaml:"percent"`
			}
			if err := value.Decode(&p); err != nil {
				return err
			}
			s.Target, s.Percent = p.Label, p.Percent
		default:
			if bareSteps[key] {
				return nil
			}
			return fmt.Errorf("line %d: unknown step %q", node.Line, key)
		}
		return nil
	}
	return fmt.Errorf("line %d: a step must be a string or a mapping", node.Line)
}

// Assertion types.
const (
	AssertStartOrder     = "start_order"
	AssertNeverObsoleted = "never_obsoleted"
	AssertCompletedCount = "completed_count"
	AssertMaxCompleted   = "max_completed"
	AssertStats          = "stats"
	AssertOutcome        = "outcome"
)

// Assertion checks the trace or the final scheduler state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Labels is the expected start order (start_order) or the operations
	// that must not be obsoleted (never_obsoleted).
	Labels []string `yaml:"labels,omitempty"`

	// Category and Count are used by completed_count and max_completed.
	Category string `yaml:"category,omitempty"`
	Count    int    `yaml:"count,omitempty"`

	// Expect is the final op.Stats (stats).
	Expect *StatsExpect `yaml:"expect,omitempty"`

	// Outcomes maps async operation labels to outcome kinds (outcome).
	Outcomes map[string]string `yaml:"outcomes,omitempty"`
}

// StatsExpect is the subset of op.Stats checked by a stats assertion.
type StatsExpect struct {
	Pending *int  `yaml:"pending"`
	Size    *int  `yaml:"size"`
	Running *int  `yaml:"running"`
	Paused  *bool `yaml:"paused"`
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates a scenario document.
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
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	labels := make(map[string]bool)
	for i, step := range s.Steps {
		switch step.Kind {
		case StepQueue:
			q := step.Queue
			if _, err := op.ParseCategory(q.Category); err != nil {
				return fmt.Errorf("steps[%d]: %w", i, err)
			}
			if _, err := op.ParseCategories(q.Obsoletes); err != nil {
				return fmt.Errorf("steps[%d].obsoletes: %w", i, err)
			}
			if q.Label != "" {
				if labels[q.Label] {
					return fmt.Errorf("steps[%d]: duplicate label %q", i, q.Label)
				}
				labels[q.Label] = true
			}
		case StepCancel, StepAwaitRunning, StepAwaitProgress:
			if !labels[step.Target] {
				return fmt.Errorf("steps[%d]: %s refers to unknown label %q", i, step.Kind, step.Target)
			}
		case StepCancelCategory:
			if _, err := op.ParseCategory(step.Target); err != nil {
				return fmt.Errorf("steps[%d]: %w", i, err)
			}
		case StepRelease:
			if step.Target == "" {
				return fmt.Errorf("steps[%d]: release needs a gate name", i)
			}
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], labels); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion, labels map[string]bool) error {
	switch a.Type {
	case AssertStartOrder, AssertNeverObsoleted:
		if len(a.Labels) == 0 {
			return fmt.Errorf("assertions[%d]: labels are required for %s", index, a.Type)
		}
		for _, l := range a.Labels {
			if !labels[l] {
				return fmt.Errorf("assertions[%d]: unknown label %q", index, l)
			}
		}
	case AssertCompletedCount, AssertMaxCompleted:
		if _, err := op.ParseCategory(a.Category); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertStats:
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for stats", index)
		}
	case AssertOutcome:
		if len(a.Outcomes) == 0 {
			return fmt.Errorf("assertions[%d]: outcomes are required for outcome", index)
		}
		for l := range a.Outcomes {
			if !labels[l] {
				return fmt.Errorf("assertions[%d]: unknown label %q", index, l)
			}
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
