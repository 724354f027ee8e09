package models

import "github.com/terra-clan/ruleset-engine/internal/rules"

// Phase is a stage of the adaptive placement test
type Phase string

const (
	PhaseInitial  Phase = "initial"
	PhaseFollowup Phase = "followup"
	PhaseFinal    Phase = "final"
)

// Valid returns true for one of the three named phases
func (p Phase) Valid() bool {
	return p.Order() > 0
}

// Order returns the position of the phase (1-based), or 0 for unknown values
func (p Phase) Order() int {
	switch p {
	case PhaseInitial:
		return 1
	case PhaseFollowup:
		return 2
	case PhaseFinal:
		return 3
	}
	return 0
}

// QuestionSpec asks the question bank for Count questions of Level
type QuestionSpec struct {
	Level int `json:"level" yaml:"level"`
	Count int `json:"count" yaml:"count"`
}

// TotalQuestions sums the counts of a question spec list
func TotalQuestions(specs []QuestionSpec) int {
	total := 0
	for _, s := range specs {
		total += s.Count
	}
	return total
}

// PlacementRules drives the multi-phase placement test
type PlacementRules struct {
	Cost             int            `json:"cost" yaml:"cost"`
	InitialQuestions []QuestionSpec `json:"initial_questions" yaml:"initial_questions"`
	Branches         []Branch       `json:"branches" yaml:"branches"`
}

// Branch is one conditional transition out of a phase
type Branch struct {
	Name          string          `json:"name" yaml:"name"`
	Condition     BranchCondition `json:"condition" yaml:"condition"`
	NextQuestions []QuestionSpec  `json:"next_questions,omitempty" yaml:"next_questions"`
	ResultLevel   *int            `json:"result_level,omitempty" yaml:"result_level"`
	NextPhase     Phase           `json:"next_phase,omitempty" yaml:"next_phase"`
}

// BranchCondition matches the correct-answer count of the phase just completed
type BranchCondition struct {
	CorrectRange rules.Range `json:"correct_range" yaml:"correct_range"`
	FromPhase    Phase       `json:"from_phase" yaml:"from_phase"`
}

// Terminal reports whether the branch ends the test.
// A result level wins over any continuation fields set alongside it.
func (b Branch) Terminal() bool {
	return b.ResultLevel != nil
}

// Clone returns a deep copy
func (p *PlacementRules) Clone() *PlacementRules {
	if p == nil {
		return nil
	}
	c := &PlacementRules{
		Cost:             p.Cost,
		InitialQuestions: append([]QuestionSpec(nil), p.InitialQuestions...),
	}
	for _, b := range p.Branches {
		b.NextQuestions = append([]QuestionSpec(nil), b.NextQuestions...)
		if b.ResultLevel != nil {
			level := *b.ResultLevel
			b.ResultLevel = &level
		}
		c.Branches = append(c.Branches, b)
	}
	return c
}
