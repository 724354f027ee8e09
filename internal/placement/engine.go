// Package placement runs the adaptive placement test: a candidate moves
// through initial, followup and final phases, and after each phase the first
// branch whose range covers the correct-answer count decides what comes next.
package placement

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/ruleset-engine/internal/models"
	"github.com/terra-clan/ruleset-engine/internal/rules"
)

// Engine is the placement state machine. It holds no session state itself.
type Engine struct {
	ttl time.Duration
}

// NewEngine creates an engine; sessions expire ttl after they start (0 = never)
func NewEngine(ttl time.Duration) *Engine {
	return &Engine{ttl: ttl}
}

// StartSession seeds a session at the initial phase with the initial question spec
func (e *Engine) StartSession(rs *models.RuleSet, candidateID string, now time.Time) (*Session, error) {
	if strings.TrimSpace(candidateID) == "" {
		verr := &rules.ValidationError{}
		verr.Add("candidate_id", "is required")
		return nil, verr
	}
	if rs.Domain != models.DomainPlacement || rs.Placement == nil {
		return nil, fmt.Errorf("rule set %s is not a placement rule set: %w", rs.ID, rules.ErrInvalid)
	}
	if err := rs.Validate(models.ValidateOptions{}); err != nil {
		return nil, err
	}

	snapshot := rs.Placement.Clone()
	s := &Session{
		ID:               uuid.New().String(),
		CandidateID:      candidateID,
		RuleSetID:        rs.ID,
		RuleSetVersion:   rs.Version,
		Cost:             snapshot.Cost,
		Rules:            snapshot,
		CurrentPhase:     models.PhaseInitial,
		Status:           StatusInProgress,
		CorrectCounts:    make(map[models.Phase]int),
		PendingQuestions: append([]models.QuestionSpec(nil), snapshot.InitialQuestions...),
		StartedAt:        now,
		UpdatedAt:        now,
	}
	if e.ttl > 0 {
		expires := now.Add(e.ttl)
		s.ExpiresAt = &expires
	}
	return s, nil
}

// Advance scores the completed phase and moves the session on.
//
// Repeating an earlier call with the same phase and count returns the recorded
// outcome (or the same error) and leaves the session untouched. A failed match
// marks the session failed; the session is still modified in that case.
func (e *Engine) Advance(s *Session, phase models.Phase, correctCount int, now time.Time) (*Outcome, error) {
	for _, t := range s.Transitions {
		if t.Phase != phase {
			continue
		}
		if t.CorrectCount != correctCount {
			return nil, fmt.Errorf("phase %s already scored with %d correct: %w", phase, t.CorrectCount, ErrPhaseConflict)
		}
		if t.Failed {
			return nil, noMatch(phase, correctCount)
		}
		return t.Outcome.clone(), nil
	}

	if s.Closed() {
		return nil, fmt.Errorf("session %s is %s: %w", s.ID, s.Status, ErrSessionClosed)
	}
	if phase != s.CurrentPhase {
		return nil, fmt.Errorf("session is at %s, got %s: %w", s.CurrentPhase, phase, ErrPhaseConflict)
	}
	if correctCount < 0 {
		return nil, fmt.Errorf("%d: %w", correctCount, ErrInvalidCorrectCount)
	}
	if total := models.TotalQuestions(s.PendingQuestions); total > 0 && correctCount > total {
		return nil, fmt.Errorf("%d correct out of %d questions: %w", correctCount, total, ErrInvalidCorrectCount)
	}

	idx := matchBranch(s.Rules.Branches, phase, correctCount)
	if idx < 0 {
		s.Status = StatusFailed
		s.UpdatedAt = now
		s.Transitions = append(s.Transitions, Transition{
			Phase:        phase,
			CorrectCount: correctCount,
			Failed:       true,
			At:           now,
		})
		slog.Warn("placement rule set has no branch for result",
			"session_id", s.ID,
			"rule_set_id", s.RuleSetID,
			"version", s.RuleSetVersion,
			"phase", phase,
			"correct", correctCount,
		)
		return nil, noMatch(phase, correctCount)
	}

	branch := s.Rules.Branches[idx]
	s.CorrectCounts[phase] = correctCount
	s.QuestionsAnswered += models.TotalQuestions(s.PendingQuestions)
	s.UpdatedAt = now

	outcome := &Outcome{Branch: branch.Name, BranchIndex: idx}
	if branch.Terminal() {
		outcome.Kind = OutcomeTerminal
		outcome.ResultLevel = cloneInt(branch.ResultLevel)
		s.Status = StatusTerminated
		s.ResultLevel = cloneInt(branch.ResultLevel)
		s.PendingQuestions = nil
	} else {
		outcome.Kind = OutcomeContinuation
		outcome.NextPhase = branch.NextPhase
		outcome.Questions = append([]models.QuestionSpec(nil), branch.NextQuestions...)
		s.CurrentPhase = branch.NextPhase
		s.PendingQuestions = append([]models.QuestionSpec(nil), branch.NextQuestions...)
	}

	s.Transitions = append(s.Transitions, Transition{
		Phase:        phase,
		CorrectCount: correctCount,
		Outcome:      outcome.clone(),
		At:           now,
	})

	return outcome, nil
}

// matchBranch returns the index of the first branch leaving phase whose
// correct range contains count, or -1
func matchBranch(branches []models.Branch, phase models.Phase, count int) int {
	for i, b := range branches {
		if b.Condition.FromPhase == phase && rules.Matches(count, b.Condition.CorrectRange) {
			return i
		}
	}
	return -1
}

func noMatch(phase models.Phase, count int) error {
	return fmt.Errorf("phase %s with %d correct: %w", phase, count, rules.ErrNoMatchingBranch)
}
