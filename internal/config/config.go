// Package config loads scheduler settings from YAML or CUE files.
//
// Both formats carry the same keys:
//
//	concurrency: 1
//	interval: 100ms
//	interval_cap: 4
//	batch_window: 1ms
//	cleanup_delay: 1s
//	disable_batching: false
//	dependencies:
//	  render-update: [style-apply, data-add, layout-update]
//	rules:
//	  layout-update: {obsoletes: [layout-update], skip_running: true}
//
// Omitted scalars keep their queue.DefaultConfig values. A dependencies or
// rules key replaces the corresponding built-in table as a whole; an empty
// map yields an empty table.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/opqueue/internal/op"
	"github.com/roach88/opqueue/internal/queue"
)

// File is a configuration as written, before defaults are applied.
type File struct {
	Concurrency     *int                `yaml:"concurrency" json:"concurrency,omitempty"`
	Interval        *Duration           `yaml:"interval" json:"interval,omitempty"`
	IntervalCap     *int                `yaml:"interval_cap" json:"interval_cap,omitempty"`
	BatchWindow     *Duration           `yaml:"batch_window" json:"batch_window,omitempty"`
	CleanupDelay    *Duration           `yaml:"cleanup_delay" json:"cleanup_delay,omitempty"`
	DisableBatching *bool               `yaml:"disable_batching" json:"disable_batching,omitempty"`
	Dependencies    map[string][]string `yaml:"dependencies" json:"dependencies,omitempty"`
	Rules           map[string]RuleFile `yaml:"rules" json:"rules,omitempty"`
}

// RuleFile is one obsolescence rule. RespectProgress defaults to true.
type RuleFile struct {
	Obsoletes       []string `yaml:"obsoletes" json:"obsoletes"`
	SkipRunning     bool     `yaml:"skip_running" json:"skip_running"`
	RespectProgress *bool    `yaml:"respect_progress" json:"respect_progress,omitempty"`
}

// Duration is a time.Duration written as a Go duration string ("250ms").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Format identifies a configuration syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatCUE  Format = "cue"
)

// FormatOf infers the format from a file extension.
func FormatOf(path string) (Format, bool) {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".cue":
		return FormatCUE, true
	}
	return "", false
}

// Load reads path and returns the resulting scheduler settings.
func Load(path string) (queue.Config, error) {
	format, ok := FormatOf(path)
	if !ok {
		return queue.Config{}, &LoadError{
			Code:    ErrCodeFormat,
			Message: fmt.Sprintf("unsupported config extension %q (want .yaml, .yml or .cue)", filepath.Ext(path)),
			Path:    path,
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return queue.Config{}, &LoadError{Code: ErrCodeNotFound, Message: err.Error(), Path: path, Err: err}
	}

	cfg, err := Parse(data, format, path)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) && le.Path == "" {
			le.Path = path
		}
		return queue.Config{}, err
	}
	return cfg, nil
}

// Parse decodes data in the given format. name is used for CUE positions.
func Parse(data []byte, format Format, name string) (queue.Config, error) {
	var (
		f   *File
		err error
	)
	switch format {
	case FormatYAML:
		f, err = ParseYAML(data)
	case FormatCUE:
		f, err = ParseCUE(data, name)
	default:
		return queue.Config{}, &LoadError{Code: ErrCodeFormat, Message: fmt.Sprintf("unsupported format %q", format)}
	}
	if err != nil {
		return queue.Config{}, err
	}
	return f.Config()
}

// ParseYAML decodes a YAML document. Unknown keys are rejected.
func ParseYAML(data []byte) (*File, error) {
	f := &File{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
		return nil, &LoadError{Code: ErrCodeParse, Message: err.Error(), Err: err}
	}
	return f, nil
}

// Config applies f over queue.DefaultConfig and validates the result.
func (f *File) Config() (queue.Config, error) {
	cfg := queue.DefaultConfig()
	if f.Concurrency != nil {
		cfg.Concurrency = *f.Concurrency
	}
	if f.Interval != nil {
		cfg.Interval = time.Duration(*f.Interval)
	}
	if f.IntervalCap != nil {
		cfg.IntervalCap = *f.IntervalCap
	}
	if f.BatchWindow != nil {
		cfg.BatchWindow = time.Duration(*f.BatchWindow)
	}
	if f.CleanupDelay != nil {
		cfg.CleanupDelay = time.Duration(*f.CleanupDelay)
	}
	if f.DisableBatching != nil {
		cfg.DisableBatching = *f.DisableBatching
	}

	if f.Dependencies != nil {
		deps, err := dependencyTable(f.Dependencies)
		if err != nil {
			return queue.Config{}, err
		}
		cfg.Dependencies = deps
	}
	if f.Rules != nil {
		rules, err := ruleTable(f.Rules)
		if err != nil {
			return queue.Config{}, err
		}
		cfg.Rules = rules
	}

	if err := cfg.Validate(); err != nil {
		code := ErrCodeInvalid
		if op.IsCycleError(err) {
			code = ErrCodeCycle
		}
		return queue.Config{}, &LoadError{Code: code, Message: err.Error(), Err: err}
	}
	return cfg, nil
}

func dependencyTable(raw map[string][]string) (op.DependencyTable, error) {
	deps := make(op.DependencyTable, len(raw))
	for name, targets := range raw {
		dependent, err := op.ParseCategory(name)
		if err != nil {
			return nil, invalid("dependencies", err)
		}
		cats, err := op.ParseCategories(targets)
		if err != nil {
			return nil, invalid("dependencies."+name, err)
		}
		deps[dependent] = cats
	}
	return deps, nil
}

func ruleTable(raw map[string]RuleFile) (op.RuleTable, error) {
	rules := make(op.RuleTable, len(raw))
	for name, rf := range raw {
		c, err := op.ParseCategory(name)
		if err != nil {
			return nil, invalid("rules", err)
		}
		targets, err := op.ParseCategories(rf.Obsoletes)
		if err != nil {
			return nil, invalid("rules."+name, err)
		}
		rule := op.Rule{Obsoletes: targets, SkipRunning: rf.SkipRunning, RespectProgress: true}
		if rf.RespectProgress != nil {
			rule.RespectProgress = *rf.RespectProgress
		}
		rules[c] = rule
	}
	return rules, nil
}

func invalid(field string, err error) *LoadError {
	return &LoadError{Code: ErrCodeInvalid, Message: fmt.Sprintf("%s: %v", field, err), Err: err}
}

// Summarize renders cfg back into File form with every field set.
func Summarize(cfg queue.Config) File {
	interval := Duration(cfg.Interval)
	window := Duration(cfg.BatchWindow)
	cleanup := Duration(cfg.CleanupDelay)
	concurrency, intervalCap, disable := cfg.Concurrency, cfg.IntervalCap, cfg.DisableBatching

	out := File{
		Concurrency:     &concurrency,
		Interval:        &interval,
		IntervalCap:     &intervalCap,
		BatchWindow:     &window,
		CleanupDelay:    &cleanup,
		DisableBatching: &disable,
		Dependencies:    make(map[string][]string, len(cfg.Dependencies)),
		Rules:           make(map[string]RuleFile, len(cfg.Rules)),
	}
	for c, deps := range cfg.Dependencies {
		out.Dependencies[c.String()] = names(deps)
	}
	for c, r := range cfg.Rules {
		respect := r.RespectProgress
		out.Rules[c.String()] = RuleFile{
			Obsoletes:       names(r.Obsoletes),
			SkipRunning:     r.SkipRunning,
			RespectProgress: &respect,
		}
	}
	return out
}

func names(cats []op.Category) []string {
	out := make([]string, 0, len(cats))
	for _, c := range cats {
		out = append(out, c.String())
	}
	return out
}
