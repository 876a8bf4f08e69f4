package harness

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/opqueue/internal/op"
)

// AssertionError is returned when an assertion fails. It carries the
// trace to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for i, line := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s\n", i+1, line)
	}
	return buf.String()
}

// assertStartOrder checks that the listed operations started in exactly
// the listed order, ignoring every other start.
func assertStartOrder(result *Result, a Assertion) error {
	want := make(map[string]bool, len(a.Labels))
	for _, l := range a.Labels {
		want[l] = true
	}

	var got []string
	for _, e := range result.Events {
		if e.Type != op.EventStart {
			continue
		}
		if l := result.Label(e.ID); want[l] {
			got = append(got, l)
		}
	}

	if !slices.Equal(got, a.Labels) {
		return &AssertionError{
			Type:     AssertStartOrder,
			Expected: strings.Join(a.Labels, " -> "),
			Actual:   strings.Join(got, " -> "),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertNeverObsoleted(result *Result, a Assertion) error {
	var hit []string
	for _, e := range result.Events {
		if e.Type != op.EventObsoleted {
			continue
		}
		if l := result.Label(e.ID); slices.Contains(a.Labels, l) {
			hit = append(hit, l)
		}
	}
	if len(hit) > 0 {
		return &AssertionError{
			Type:     AssertNeverObsoleted,
			Expected: "none of [" + strings.Join(a.Labels, " ") + "] obsoleted",
			Actual:   "obsoleted: " + strings.Join(hit, " "),
			Trace:    result.Trace,
		}
	}
	return nil
}

func completedCount(result *Result, c op.Category) int {
	n := 0
	for _, e := range result.Events {
		if e.Type == op.EventComplete && e.Category == c {
			n++
		}
	}
	return n
}

func assertCompleted(result *Result, a Assertion) error {
	c, err := op.ParseCategory(a.Category)
	if err != nil {
		return err
	}
	got := completedCount(result, c)

	ok := got == a.Count
	expected := fmt.Sprintf("%d %s completions", a.Count, c)
	if a.Type == AssertMaxCompleted {
		ok = got <= a.Count
		expected = fmt.Sprintf("at most %d %s completions", a.Count, c)
	}
	if !ok {
		return &AssertionError{
			Type:     a.Type,
			Expected: expected,
			Actual:   fmt.Sprintf("%d", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertStats(result *Result, a Assertion) error {
	var diffs []string
	check := func(name string, want *int, got int) {
		if want != nil && *want != got {
			diffs = append(diffs, fmt.Sprintf("%s=%d (want %d)", name, got, *want))
		}
	}
	check("pending", a.Expect.Pending, result.Stats.Pending)
	check("size", a.Expect.Size, result.Stats.Size)
	check("running", a.Expect.Running, result.Stats.Running)
	if a.Expect.Paused != nil && *a.Expect.Paused != result.Stats.IsPaused {
		diffs = append(diffs, fmt.Sprintf("paused=%t (want %t)", result.Stats.IsPaused, *a.Expect.Paused))
	}

	if len(diffs) > 0 {
		return &AssertionError{
			Type:     AssertStats,
			Expected: "stats as listed",
			Actual:   strings.Join(diffs, ", "),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertOutcome(result *Result, a Assertion) error {
	labels := make([]string, 0, len(a.Outcomes))
	for l := range a.Outcomes {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	var diffs []string
	for _, l := range labels {
		got, ok := result.Outcomes[l]
		if !ok {
			got = "none"
		}
		if got != a.Outcomes[l] {
			diffs = append(diffs, fmt.Sprintf("%s=%s (want %s)", l, got, a.Outcomes[l]))
		}
	}
	if len(diffs) > 0 {
		return &AssertionError{
			Type:     AssertOutcome,
			Expected: "outcomes as listed",
			Actual:   strings.Join(diffs, ", "),
			Trace:    result.Trace,
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertStartOrder:
			err = assertStartOrder(result, assertion)
		case AssertNeverObsoleted:
			err = assertNeverObsoleted(result, assertion)
		case AssertCompletedCount, AssertMaxCompleted:
			err = assertCompleted(result, assertion)
		case AssertStats:
			if assertion.Expect == nil {
				err = fmt.Errorf("assertion[%d]: stats requires expect", i)
			} else {
				err = assertStats(result, assertion)
			}
		case AssertOutcome:
			err = assertOutcome(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
