// Package scoring converts a competition rank into points.
package scoring

import (
	"context"
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

// Result is the outcome of a points resolution
type Result struct {
	Points         int    `json:"points"`
	TierIndex      int    `json:"tier_index"`
	RuleSetID      string `json:"rule_set_id"`
	RuleSetVersion int    `json:"rule_set_version"`
}

// Resolver resolves points against the active scoring rule set
type Resolver struct {
	source ActiveSource
}

// NewResolver creates a scoring resolver
func NewResolver(source ActiveSource) *Resolver {
	return &Resolver{source: source}
}

// ResolvePoints returns the points awarded for rank in a competition of
// participantCount participants, using the rule set active at asOf.
func (r *Resolver) ResolvePoints(ctx context.Context, participantCount, rank int, asOf time.Time) (*Result, error) {
	rs, err := r.source.ResolveActive(ctx, models.DomainScoring, asOf)
	if err != nil {
		return nil, err
	}

	return Apply(rs, participantCount, rank)
}

// Apply resolves points against a specific scoring rule set.
// Callers that grade many ranks reuse one snapshot through Apply.
func Apply(rs *models.RuleSet, participantCount, rank int) (*Result, error) {
	if rs.Scoring == nil {
		return nil, fmt.Errorf("rule set %s has no scoring rules: %w", rs.ID, rules.ErrNotConfigured)
	}

	points, tier, err := PointsFor(rs.Scoring, participantCount, rank)
	if err != nil {
		slog.Error("scoring rule set has no tier for participant count",
			"rule_set_id", rs.ID,
			"version", rs.Version,
			"participants", participantCount,
		)
		return nil, fmt.Errorf("rule set %s: %w", rs.ID, err)
	}

	return &Result{
		Points:         points,
		TierIndex:      tier,
		RuleSetID:      rs.ID,
		RuleSetVersion: rs.Version,
	}, nil
}

// PointsFor picks the first tier whose participant bucket contains
// participantCount, then the exact rank inside it. A rank without an entry
// earns 0 points. It returns the points and the index of the matched tier.
func PointsFor(sr *models.ScoringRules, participantCount, rank int) (int, int, error) {
	tier := rules.FirstMatch(sr.Tiers, participantCount, models.ScoringTier.Participants)
	if tier < 0 {
		return 0, -1, fmt.Errorf("%d participants: %w", participantCount, rules.ErrNoMatchingTier)
	}

	entries := sr.Tiers[tier].RankPoints
	i := rules.FirstExact(entries, rank, func(rp models.RankPoints) int { return rp.Rank })
	if i < 0 {
		return 0, tier, nil
	}
	return entries[i].Points, tier, nil
}
