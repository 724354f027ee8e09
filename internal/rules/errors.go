package rules

import (
	"errors"
	"strings"
)

// Common errors
var (
	ErrNotFound           = errors.New("rule set not found")
	ErrNotConfigured      = errors.New("no resolvable rule set for domain")
	ErrNoMatchingTier     = errors.New("no scoring tier covers participant count")
	ErrNoMatchingBranch   = errors.New("no placement branch covers correct count")
	ErrActivationConflict = errors.New("rule set is active")
	ErrAlreadyExists      = errors.New("rule set already exists")
	ErrInvalid            = errors.New("invalid input")
)

// Problem is a single write-time validation failure
type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every problem found in a request or rule set.
// It unwraps to ErrInvalid.
type ValidationError struct {
	Problems []Problem
}

// Add records a problem
func (e *ValidationError) Add(field, message string) {
	e.Problems = append(e.Problems, Problem{Field: field, Message: message})
}

// Err returns nil when no problem was recorded
func (e *ValidationError) Err() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, p.Field+": "+p.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalid
}
