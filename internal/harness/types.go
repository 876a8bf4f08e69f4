package harness

import "github.com/roach88/opqueue/internal/op"

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace holds one line per delivered event, with operations named by
	// label. Lines carry no times or durations.
	Trace []string `json:"trace"`

	// Errors lists failed assertions.
	Errors []string `json:"errors,omitempty"`

	// Stats is the scheduler snapshot taken after the last step.
	Stats op.Stats `json:"stats"`

	// Outcomes maps async operation labels to their outcome kind.
	Outcomes map[string]string `json:"outcomes,omitempty"`

	// Events are the raw events behind Trace.
	Events []op.Event `json:"-"`

	labels map[op.OperationID]string
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []string{},
		Errors:   []string{},
		Outcomes: make(map[string]string),
		labels:   make(map[op.OperationID]string),
	}
}

// AddError records a failed assertion and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Label returns the scenario label of id.
func (r *Result) Label(id op.OperationID) string {
	if l, ok := r.labels[id]; ok {
		return l
	}
	return defaultLabel(id)
}
