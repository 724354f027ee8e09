package placement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/terra-clan/ruleset-engine/internal/models"
	"github.com/terra-clan/ruleset-engine/internal/rules"
)

// ActiveSource returns the active rule set of a domain at a point in time
type ActiveSource interface {
	ResolveActive(ctx context.Context, domain models.Domain, asOf time.Time) (*models.RuleSet, error)
}

// Service binds the engine to the active placement rule set and a session store
type Service struct {
	source ActiveSource
	engine *Engine
	store  Store
	now    func() time.Time
}

// NewService creates a placement service
func NewService(source ActiveSource, engine *Engine, store Store) *Service {
	return &Service{
		source: source,
		engine: engine,
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Start opens a session for candidateID under the rule set active at asOf
func (s *Service) Start(ctx context.Context, candidateID string, asOf time.Time) (*Session, error) {
	rs, err := s.source.ResolveActive(ctx, models.DomainPlacement, asOf)
	if err != nil {
		return nil, err
	}

	session, err := s.engine.StartSession(rs, candidateID, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	slog.Info("placement session started",
		"session_id", session.ID,
		"candidate_id", candidateID,
		"rule_set_id", session.RuleSetID,
		"version", session.RuleSetVersion,
		"cost", session.Cost,
	)

	return session, nil
}

// Advance reports the correct count for phase and returns the updated session
// with the outcome. A failed match is persisted before its error is returned.
func (s *Service) Advance(ctx context.Context, id string, phase models.Phase, correctCount int) (*Session, *Outcome, error) {
	if !phase.Valid() {
		verr := &rules.ValidationError{}
		verr.Add("phase", fmt.Sprintf("unknown phase %q", phase))
		return nil, nil, verr
	}

	var outcome *Outcome
	var advanceErr error
	session, err := s.store.Update(ctx, id, func(sess *Session) error {
		outcome, advanceErr = s.engine.Advance(sess, phase, correctCount, s.now())
		if advanceErr != nil && !errors.Is(advanceErr, rules.ErrNoMatchingBranch) {
			return advanceErr
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if advanceErr != nil {
		return session, nil, advanceErr
	}

	if outcome.Kind == OutcomeTerminal {
		slog.Info("placement session finished",
			"session_id", session.ID,
			"candidate_id", session.CandidateID,
			"result_level", *outcome.ResultLevel,
		)
	}

	return session, outcome, nil
}

// Get returns a session by ID
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	return s.store.Get(ctx, id)
}
