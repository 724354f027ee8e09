package grading

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/ruleset-engine/internal/models"
	"github.com/terra-clan/ruleset-engine/internal/rules"
)

type mapSource map[models.Domain]*models.RuleSet

func (m mapSource) ResolveActive(ctx context.Context, domain models.Domain, asOf time.Time) (*models.RuleSet, error) {
	rs, ok := m[domain]
	if !ok {
		return nil, rules.ErrNotConfigured
	}
	return rs, nil
}

func fullSource() mapSource {
	return mapSource{
		models.DomainScoring: {
			ID: "sc", Domain: models.DomainScoring, Version: 1,
			Scoring: &models.ScoringRules{Tiers: []models.ScoringTier{
				{MinParticipants: 1, MaxParticipants: 3, RankPoints: []models.RankPoints{{Rank: 1, Points: 10}, {Rank: 2, Points: 5}}},
				{MinParticipants: 4, MaxParticipants: 100, RankPoints: []models.RankPoints{{Rank: 1, Points: 20}}},
			}},
		},
		models.DomainRewards: {
			ID: "rw", Domain: models.DomainRewards, Version: 4,
			Rewards: &models.RewardRules{Rewards: []models.RankReward{{Rank: 1, Coins: 100}}},
		},
	}
}

func TestGrade(t *testing.T) {
	g := NewGrader(fullSource())
	asOf := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	report, err := g.Grade(context.Background(), []models.Standing{
		{ParticipantID: "alice", Rank: 1},
		{ParticipantID: "bob", Rank: 2},
		{ParticipantID: "carol", Rank: 3},
	}, asOf)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Participants)
	assert.Equal(t, 0, report.TierIndex)
	assert.Equal(t, "sc", report.ScoringRuleSetID)
	assert.Equal(t, 4, report.RewardsRuleSetVersion)

	want := []Award{
		{ParticipantID: "alice", Rank: 1, Points: 10, Coins: 100, Rewarded: true},
		{ParticipantID: "bob", Rank: 2, Points: 5},
		{ParticipantID: "carol", Rank: 3},
	}
	if diff := cmp.Diff(want, report.Awards); diff != "" {
		t.Errorf("awards mismatch (-want +got):\n%s", diff)
	}
}

func TestGrade_ParticipantCountSelectsTier(t *testing.T) {
	g := NewGrader(fullSource())
	standings := []models.Standing{
		{ParticipantID: "a", Rank: 1},
		{ParticipantID: "b", Rank: 2},
		{ParticipantID: "c", Rank: 3},
		{ParticipantID: "d", Rank: 4},
	}
	report, err := g.Grade(context.Background(), standings, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, report.TierIndex)
	assert.Equal(t, 20, report.Awards[0].Points)
}

func TestGrade_AbortsWhenADomainIsNotConfigured(t *testing.T) {
	src := fullSource()
	delete(src, models.DomainRewards)

	report, err := NewGrader(src).Grade(context.Background(), []models.Standing{{ParticipantID: "a", Rank: 1}}, time.Now())
	assert.Nil(t, report)
	assert.True(t, errors.Is(err, rules.ErrNotConfigured))
}

func TestGrade_AbortsOnNoMatchingTier(t *testing.T) {
	src := fullSource()
	src[models.DomainScoring].Scoring.Tiers = src[models.DomainScoring].Scoring.Tiers[1:]

	_, err := NewGrader(src).Grade(context.Background(), []models.Standing{{ParticipantID: "a", Rank: 1}}, time.Now())
	assert.True(t, errors.Is(err, rules.ErrNoMatchingTier))
}

func TestGrade_RejectsBadStandings(t *testing.T) {
	g := NewGrader(fullSource())

	_, err := g.Grade(context.Background(), nil, time.Now())
	assert.True(t, errors.Is(err, ErrEmptyStandings))

	_, err = g.Grade(context.Background(), []models.Standing{
		{ParticipantID: "a", Rank: 1},
		{ParticipantID: "a", Rank: 0},
	}, time.Now())
	var verr *rules.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Problems, 2)
	assert.True(t, errors.Is(err, rules.ErrInvalid))
}
