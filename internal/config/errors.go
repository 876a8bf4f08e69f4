package config

import (
	"fmt"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Error codes reported by LoadError.
const (
	ErrCodeNotFound = "E101" // Config file missing or unreadable
	ErrCodeFormat   = "E102" // Unsupported file extension
	ErrCodeParse    = "E103" // YAML or CUE syntax error
	ErrCodeSchema   = "E104" // Value rejected by the settings schema
	ErrCodeInvalid  = "E105" // Out of range value or unknown category
	ErrCodeCycle    = "E106" // Dependency table has a cycle
)

// LoadError describes why a configuration could not be loaded.
type LoadError struct {
	Code    string
	Message string
	Path    string
	Pos     token.Pos // CUE position if available
	Err     error
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// fromCUE converts the first CUE error into a LoadError carrying its
// source position.
func fromCUE(code string, err error) *LoadError {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: code, Message: err.Error(), Err: err}
	}
	first := errs[0]
	le := &LoadError{Code: code, Message: first.Error(), Err: err}
	if positions := errors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}
