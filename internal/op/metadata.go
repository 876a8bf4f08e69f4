package op

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// OperationID identifies an admitted operation. IDs are issued in strictly
// increasing order and never reused within a scheduler.
type OperationID int64

// Metadata describes an operation at admission time.
//
// Pointer-valued flags distinguish "not specified" (nil, the category rule
// applies) from an explicit override.
type Metadata struct {
	// Description is a human-readable label carried in events.
	Description string

	// Timestamp is the admission time, set by the scheduler.
	Timestamp time.Time

	// Obsoletes overrides the category rule's obsoletes set when non-nil.
	// An empty non-nil slice disables category-based obsolescence.
	Obsoletes []Category

	// Predicate selects additional candidates to obsolete.
	Predicate Predicate

	SkipRunning     *bool
	RespectProgress *bool

	// Cascading widens Obsoletes with all transitive dependents.
	Cascading bool

	// SkipTriggers is carried to consumers, which skip their post-operation
	// hooks for this operation.
	SkipTriggers bool

	// Selectors are opaque selector strings, compared in NFC form.
	Selectors []string
}

// Clone returns a copy that shares no slices with m.
func (m Metadata) Clone() Metadata {
	m.Obsoletes = cloneCategories(m.Obsoletes)
	if m.Selectors != nil {
		m.Selectors = append([]string{}, m.Selectors...)
	}
	if m.SkipRunning != nil {
		m.SkipRunning = Bool(*m.SkipRunning)
	}
	if m.RespectProgress != nil {
		m.RespectProgress = Bool(*m.RespectProgress)
	}
	return m
}

func cloneCategories(in []Category) []Category {
	if in == nil {
		return nil
	}
	return append([]Category{}, in...)
}

// Bool returns a pointer to b, for the optional Metadata flags.
func Bool(b bool) *bool {
	return &b
}

// Candidate is the read-only view of a live operation handed to a
// Predicate during obsolescence evaluation.
type Candidate struct {
	ID       OperationID
	Category Category
	State    State
	Progress float64
	Metadata Metadata
}

// Predicate decides whether a candidate should be obsoleted by a newly
// admitted operation.
//
// Implementations must be pure: no side effects, no calls back into the
// scheduler, and the same answer for the same candidate. They are invoked
// while the scheduler holds its lock.
type Predicate interface {
	ShouldObsolete(c Candidate) bool
}

// PredicateFunc adapts a function to the Predicate interface.
type PredicateFunc func(Candidate) bool

// ShouldObsolete calls f(c).
func (f PredicateFunc) ShouldObsolete(c Candidate) bool {
	return f(c)
}

// SelectorPredicate returns a Predicate matching candidates that share at
// least one selector with selectors. Selectors are compared after trimming
// and Unicode NFC normalization, so visually identical selectors match.
func SelectorPredicate(selectors ...string) Predicate {
	want := make(map[string]bool, len(selectors))
	for _, s := range selectors {
		if n := NormalizeSelector(s); n != "" {
			want[n] = true
		}
	}
	return PredicateFunc(func(c Candidate) bool {
		for _, s := range c.Metadata.Selectors {
			if want[NormalizeSelector(s)] {
				return true
			}
		}
		return false
	})
}

// NormalizeSelector returns the canonical form of a selector string.
func NormalizeSelector(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
