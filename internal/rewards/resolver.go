// Package rewards converts a competition rank into coins.
package rewards

import (
	"context"
	"fmt"
	"time"

	"github.com/terra-clan/ruleset-engine/internal/models"
	"github.com/terra-clan/ruleset-engine/internal/rules"
)

// ActiveSource returns the active rule set of a domain at a point in time
type ActiveSource interface {
	ResolveActive(ctx context.Context, domain models.Domain, asOf time.Time) (*models.RuleSet, error)
}

// Result is the outcome of a coin resolution.
// Rewarded is false when the rank has no entry and Coins is 0.
type Result struct {
	Coins          int    `json:"coins"`
	Rewarded       bool   `json:"rewarded"`
	RuleSetID      string `json:"rule_set_id"`
	RuleSetVersion int    `json:"rule_set_version"`
}

// Resolver resolves coins against the active rewards rule set
type Resolver struct {
	source ActiveSource
}

// NewResolver creates a reward resolver
func NewResolver(source ActiveSource) *Resolver {
	return &Resolver{source: source}
}

// ResolveCoins returns the coins awarded for rank under the rule set active at asOf
func (r *Resolver) ResolveCoins(ctx context.Context, rank int, asOf time.Time) (*Result, error) {
	rs, err := r.source.ResolveActive(ctx, models.DomainRewards, asOf)
	if err != nil {
		return nil, err
	}
	return Apply(rs, rank)
}

// Apply resolves coins against a specific rewards rule set
func Apply(rs *models.RuleSet, rank int) (*Result, error) {
	if rs.Rewards == nil {
		return nil, fmt.Errorf("rule set %s has no reward rules: %w", rs.ID, rules.ErrNotConfigured)
	}

	coins, ok := CoinsFor(rs.Rewards, rank)
	return &Result{
		Coins:          coins,
		Rewarded:       ok,
		RuleSetID:      rs.ID,
		RuleSetVersion: rs.Version,
	}, nil
}

// CoinsFor returns the coins of the first entry for rank
func CoinsFor(rr *models.RewardRules, rank int) (int, bool) {
	i := rules.FirstExact(rr.Rewards, rank, func(rw models.RankReward) int { return rw.Rank })
	if i < 0 {
		return 0, false
	}
	return rr.Rewards[i].Coins, true
}
