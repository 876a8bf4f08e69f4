package config

import (
	_ "embed"
	"fmt"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaCUE string

// ParseCUE compiles data, unifies it with the embedded #Config schema and
// decodes the result. filename is attached to reported positions.
func ParseCUE(data []byte, filename string) (*File, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile embedded schema: %w", err)
	}

	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fromCUE(ErrCodeParse, err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fromCUE(ErrCodeSchema, err)
	}

	return decodeCUE(unified)
}

func decodeCUE(v cue.Value) (*File, error) {
	f := &File{}
	var err error

	if f.Concurrency, err = lookupInt(v, "concurrency"); err != nil {
		return nil, err
	}
	if f.IntervalCap, err = lookupInt(v, "interval_cap"); err != nil {
		return nil, err
	}
	if f.Interval, err = lookupDuration(v, "interval"); err != nil {
		return nil, err
	}
	if f.BatchWindow, err = lookupDuration(v, "batch_window"); err != nil {
		return nil, err
	}
	if f.CleanupDelay, err = lookupDuration(v, "cleanup_delay"); err != nil {
		return nil, err
	}
	if b := v.LookupPath(cue.ParsePath("disable_batching")); b.Exists() {
		disable, err := b.Bool()
		if err != nil {
			return nil, fromCUE(ErrCodeSchema, err)
		}
		f.DisableBatching = &disable
	}

	if deps := v.LookupPath(cue.ParsePath("dependencies")); deps.Exists() {
		f.Dependencies = make(map[string][]string)
		iter, err := deps.Fields()
		if err != nil {
			return nil, fromCUE(ErrCodeSchema, err)
		}
		for iter.Next() {
			targets, err := stringList(iter.Value())
			if err != nil {
				return nil, err
			}
			f.Dependencies[iter.Label()] = targets
		}
	}

	if rules := v.LookupPath(cue.ParsePath("rules")); rules.Exists() {
		f.Rules = make(map[string]RuleFile)
		iter, err := rules.Fields()
		if err != nil {
			return nil, fromCUE(ErrCodeSchema, err)
		}
		for iter.Next() {
			rule, err := decodeRule(iter.Value())
			if err != nil {
				return nil, err
			}
			f.Rules[iter.Label()] = rule
		}
	}

	return f, nil
}

func decodeRule(v cue.Value) (RuleFile, error) {
	var rf RuleFile
	if obs := v.LookupPath(cue.ParsePath("obsoletes")); obs.Exists() {
		targets, err := stringList(obs)
		if err != nil {
			return rf, err
		}
		rf.Obsoletes = targets
	}
	if skip := v.LookupPath(cue.ParsePath("skip_running")); skip.Exists() {
		b, err := skip.Bool()
		if err != nil {
			return rf, fromCUE(ErrCodeSchema, err)
		}
		rf.SkipRunning = b
	}
	if respect := v.LookupPath(cue.ParsePath("respect_progress")); respect.Exists() {
		b, err := respect.Bool()
		if err != nil {
			return rf, fromCUE(ErrCodeSchema, err)
		}
		rf.RespectProgress = &b
	}
	return rf, nil
}

func lookupInt(v cue.Value, field string) (*int, error) {
	val := v.LookupPath(cue.ParsePath(field))
	if !val.Exists() || !val.IsConcrete() {
		return nil, nil
	}
	n, err := val.Int64()
	if err != nil {
		return nil, fromCUE(ErrCodeSchema, err)
	}
	out := int(n)
	return &out, nil
}

func lookupDuration(v cue.Value, field string) (*Duration, error) {
	val := v.LookupPath(cue.ParsePath(field))
	if !val.Exists() || !val.IsConcrete() {
		return nil, nil
	}
	s, err := val.String()
	if err != nil {
		return nil, fromCUE(ErrCodeSchema, err)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeInvalid, Message: fmt.Sprintf("%s: %v", field, err), Pos: val.Pos(), Err: err}
	}
	out := Duration(d)
	return &out, nil
}

func stringList(v cue.Value) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, fromCUE(ErrCodeSchema, err)
	}
	out := []string{}
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, fromCUE(ErrCodeSchema, err)
		}
		out = append(out, s)
	}
	return out, nil
}
