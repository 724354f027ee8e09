// Package grading pays out a whole competition from one snapshot of the
// scoring and rewards rule sets.
package grading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/terra-clan/ruleset-engine/internal/models"
	"github.com/terra-clan/ruleset-engine/internal/rewards"
	"github.com/terra-clan/ruleset-engine/internal/rules"
	"github.com/terra-clan/ruleset-engine/internal/scoring"
)

// ErrEmptyStandings is returned when there is nobody to grade
var ErrEmptyStandings = errors.New("standings are empty")

// ActiveSource returns the active rule set of a domain at a point in time
type ActiveSource interface {
	ResolveActive(ctx context.Context, domain models.Domain, asOf time.Time) (*models.RuleSet, error)
}

// Award is what one participant receives
type Award struct {
	ParticipantID string `json:"participant_id"`
	Rank          int    `json:"rank"`
	Points        int    `json:"points"`
	Coins         int    `json:"coins"`
	Rewarded      bool   `json:"rewarded"`
}

// Report is the graded competition
type Report struct {
	Participants          int       `json:"participants"`
	TierIndex             int       `json:"tier_index"`
	ScoringRuleSetID      string    `json:"scoring_rule_set_id"`
	ScoringRuleSetVersion int       `json:"scoring_rule_set_version"`
	RewardsRuleSetID      string    `json:"rewards_rule_set_id"`
	RewardsRuleSetVersion int       `json:"rewards_rule_set_version"`
	AsOf                  time.Time `json:"as_of"`
	Awards                []Award   `json:"awards"`
}

// Grader turns standings into awards
type Grader struct {
	source ActiveSource
}

// NewGrader creates a Grader
func NewGrader(source ActiveSource) *Grader {
	return &Grader{source: source}
}

// Grade resolves points and coins for every standing. The participant count is
// the number of standings. Any resolution error aborts the whole grading so
// that no partial payout is produced.
func (g *Grader) Grade(ctx context.Context, standings []models.Standing, asOf time.Time) (*Report, error) {
	if len(standings) == 0 {
		return nil, ErrEmptyStandings
	}
	var verr rules.ValidationError
	seen := make(map[string]bool, len(standings))
	for i, s := range standings {
		if s.ParticipantID == "" {
			verr.Add(fmt.Sprintf("standings[%d].participant_id", i), "is required")
		} else if seen[s.ParticipantID] {
			verr.Add(fmt.Sprintf("standings[%d].participant_id", i), fmt.Sprintf("duplicate participant %q", s.ParticipantID))
		}
		seen[s.ParticipantID] = true
		if s.Rank < 1 {
			verr.Add(fmt.Sprintf("standings[%d].rank", i), "must be >= 1")
		}
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	var scoringSet, rewardsSet *models.RuleSet
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		rs, err := g.source.ResolveActive(egCtx, models.DomainScoring, asOf)
		if err != nil {
			return fmt.Errorf("scoring: %w", err)
		}
		scoringSet = rs
		return nil
	})
	eg.Go(func() error {
		rs, err := g.source.ResolveActive(egCtx, models.DomainRewards, asOf)
		if err != nil {
			return fmt.Errorf("rewards: %w", err)
		}
		rewardsSet = rs
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	report := &Report{
		Participants:          len(standings),
		ScoringRuleSetID:      scoringSet.ID,
		ScoringRuleSetVersion: scoringSet.Version,
		RewardsRuleSetID:      rewardsSet.ID,
		RewardsRuleSetVersion: rewardsSet.Version,
		AsOf:                  asOf,
		Awards:                make([]Award, 0, len(standings)),
	}

	for _, s := range standings {
		pts, err := scoring.Apply(scoringSet, len(standings), s.Rank)
		if err != nil {
			return nil, err
		}
		coins, err := rewards.Apply(rewardsSet, s.Rank)
		if err != nil {
			return nil, err
		}
		report.TierIndex = pts.TierIndex
		report.Awards = append(report.Awards, Award{
			ParticipantID: s.ParticipantID,
			Rank:          s.Rank,
			Points:        pts.Points,
			Coins:         coins.Coins,
			Rewarded:      coins.Rewarded,
		})
	}

	slog.Info("competition graded",
		"participants", report.Participants,
		"scoring_rule_set", report.ScoringRuleSetID,
		"rewards_rule_set", report.RewardsRuleSetID,
	)

	return report, nil
}
