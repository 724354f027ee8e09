package placement

import (
	"errors"
	"time"

	"github.com/terra-clan/ruleset-engine/internal/models"
)

var (
	ErrSessionNotFound     = errors.New("placement session not found")
	ErrPhaseConflict       = errors.New("phase conflicts with session state")
	ErrSessionClosed       = errors.New("placement session is closed")
	ErrInvalidCorrectCount = errors.New("invalid correct-answer count")
)

// Status is the lifecycle state of a placement session
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusTerminated Status = "terminated"
	StatusFailed     Status = "failed"
)

// OutcomeKind tells whether an advance ended the test
type OutcomeKind string

const (
	OutcomeTerminal     OutcomeKind = "terminal"
	OutcomeContinuation OutcomeKind = "continuation"
)

// Outcome is the result of completing one phase
type Outcome struct {
	Kind        OutcomeKind           `json:"kind"`
	ResultLevel *int                  `json:"result_level,omitempty"`
	NextPhase   models.Phase          `json:"next_phase,omitempty"`
	Questions   []models.QuestionSpec `json:"questions,omitempty"`
	Branch      string                `json:"branch"`
	BranchIndex int                   `json:"branch_index"`
}

// Transition records one advance call so that retries are answered from history
type Transition struct {
	Phase        models.Phase `json:"phase"`
	CorrectCount int          `json:"correct_count"`
	Outcome      *Outcome     `json:"outcome,omitempty"`
	Failed       bool         `json:"failed,omitempty"`
	At           time.Time    `json:"at"`
}

// Session is one candidate's walk through the placement test.
// Rules is the snapshot taken at start; later activations do not affect it.
type Session struct {
	ID                string                 `json:"id"`
	CandidateID       string                 `json:"candidate_id"`
	RuleSetID         string                 `json:"rule_set_id"`
	RuleSetVersion    int                    `json:"rule_set_version"`
	Cost              int                    `json:"cost"`
	Rules             *models.PlacementRules `json:"rules"`
	CurrentPhase      models.Phase           `json:"current_phase"`
	Status            Status                 `json:"status"`
	CorrectCounts     map[models.Phase]int   `json:"correct_counts"`
	QuestionsAnswered int                    `json:"questions_answered"`
	PendingQuestions  []models.QuestionSpec  `json:"pending_questions,omitempty"`
	ResultLevel       *int                   `json:"result_level,omitempty"`
	Transitions       []Transition           `json:"transitions"`
	StartedAt         time.Time              `json:"started_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
	ExpiresAt         *time.Time             `json:"expires_at,omitempty"`
}

// Closed reports whether the session accepts no further input
func (s *Session) Closed() bool {
	return s.Status != StatusInProgress
}

// Expired reports whether the session has passed its expiry at now
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}

// Clone returns a deep copy
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Rules = s.Rules.Clone()
	c.PendingQuestions = append([]models.QuestionSpec(nil), s.PendingQuestions...)
	c.ResultLevel = cloneInt(s.ResultLevel)
	if s.ExpiresAt != nil {
		t := *s.ExpiresAt
		c.ExpiresAt = &t
	}
	if s.CorrectCounts != nil {
		c.CorrectCounts = make(map[models.Phase]int, len(s.CorrectCounts))
		for k, v := range s.CorrectCounts {
			c.CorrectCounts[k] = v
		}
	}
	c.Transitions = nil
	for _, t := range s.Transitions {
		t.Outcome = t.Outcome.clone()
		c.Transitions = append(c.Transitions, t)
	}
	return &c
}

func (o *Outcome) clone() *Outcome {
	if o == nil {
		return nil
	}
	c := *o
	c.ResultLevel = cloneInt(o.ResultLevel)
	c.Questions = append([]models.QuestionSpec(nil), o.Questions...)
	return &c
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
