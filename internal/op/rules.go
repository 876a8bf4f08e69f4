package op

import (
	"fmt"
	"slices"
)

// Rule is a category's default obsolescence behaviour.
type Rule struct {
	// Obsoletes lists the categories a newly admitted operation supersedes.
	Obsoletes []Category

	// SkipRunning exempts running candidates from obsolescence.
	SkipRunning bool

	// RespectProgress exempts running candidates whose progress is above
	// ProgressGuardPercent.
	RespectProgress bool
}

// ProgressGuardPercent is the progress above which a running operation is
// spared by respect-progress rules.
const ProgressGuardPercent = 90.0

// RuleTable maps a category to its default obsolescence rule.
type RuleTable map[Category]Rule

// DefaultRules returns the built-in obsolescence rules.
//
// A newer layout selection makes pending layout updates moot, and style,
// layout, camera and render operations supersede their own older instances.
// Render and layout updates never interrupt an instance that is already
// running.
func DefaultRules() RuleTable {
	return RuleTable{
		StyleInit:    {Obsoletes: []Category{StyleInit}, RespectProgress: true},
		StyleApply:   {Obsoletes: []Category{StyleApply}, RespectProgress: true},
		LayoutSet:    {Obsoletes: []Category{LayoutSet, LayoutUpdate}, RespectProgress: true},
		LayoutUpdate: {Obsoletes: []Category{LayoutUpdate}, SkipRunning: true, RespectProgress: true},
		CameraUpdate: {Obsoletes: []Category{CameraUpdate}, RespectProgress: true},
		RenderUpdate: {Obsoletes: []Category{RenderUpdate}, SkipRunning: true, RespectProgress: true},
	}
}

// Clone returns a deep copy of the table.
func (t RuleTable) Clone() RuleTable {
	out := make(RuleTable, len(t))
	for c, r := range t {
		r.Obsoletes = append([]Category(nil), r.Obsoletes...)
		out[c] = r
	}
	return out
}

// Validate checks that every category mentioned by the table is known.
func (t RuleTable) Validate() error {
	for c, r := range t {
		if !c.Valid() {
			return fmt.Errorf("obsolescence rules: unknown category %q", c)
		}
		for _, target := range r.Obsoletes {
			if !target.Valid() {
				return fmt.Errorf("obsolescence rules: %s obsoletes unknown category %q", c, target)
			}
		}
	}
	return nil
}

// EffectiveRule is the merge of a category's default rule with the
// per-call metadata of one admission.
type EffectiveRule struct {
	Obsoletes       []Category
	Predicate       Predicate
	SkipRunning     bool
	RespectProgress bool
}

// Matches reports whether a candidate is selected by the obsoletes set or
// by the predicate.
func (r EffectiveRule) Matches(c Candidate) bool {
	if slices.Contains(r.Obsoletes, c.Category) {
		return true
	}
	return r.Predicate != nil && r.Predicate.ShouldObsolete(c)
}

// Resolve merges the default rule for c with meta. Explicit metadata fields
// win over the default rule. When Cascading is set, the obsoletes set is
// widened with every category that transitively depends on it.
//
// The boolean result is false when neither source asks for any obsoleting
// behaviour; callers skip evaluation entirely in that case.
func (t RuleTable) Resolve(c Category, meta Metadata, deps DependencyTable) (EffectiveRule, bool) {
	rule, hasRule := t[c]

	eff := EffectiveRule{
		Obsoletes:       rule.Obsoletes,
		Predicate:       meta.Predicate,
		SkipRunning:     rule.SkipRunning,
		RespectProgress: rule.RespectProgress || !hasRule,
	}
	if meta.Obsoletes != nil {
		eff.Obsoletes = meta.Obsoletes
	}
	if meta.SkipRunning != nil {
		eff.SkipRunning = *meta.SkipRunning
	}
	if meta.RespectProgress != nil {
		eff.RespectProgress = *meta.RespectProgress
	}

	eff.Obsoletes = append([]Category(nil), eff.Obsoletes...)
	if meta.Cascading && len(eff.Obsoletes) > 0 {
		for _, dependent := range deps.Dependents(eff.Obsoletes...) {
			if !slices.Contains(eff.Obsoletes, dependent) {
				eff.Obsoletes = append(eff.Obsoletes, dependent)
			}
		}
	}

	if len(eff.Obsoletes) == 0 && eff.Predicate == nil {
		return EffectiveRule{}, false
	}
	return eff, true
}
