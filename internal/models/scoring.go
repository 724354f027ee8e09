package models

import "github.com/terra-clan/ruleset-engine/internal/rules"

// ScoringRules maps participant-count buckets to rank points
type ScoringRules struct {
	Tiers []ScoringTier `json:"tiers" yaml:"tiers"`
}

// ScoringTier awards points by rank when the participant count falls in its bucket
type ScoringTier struct {
	MinParticipants int          `json:"min_participants" yaml:"min_participants"`
	MaxParticipants int          `json:"max_participants" yaml:"max_participants"`
	RankPoints      []RankPoints `json:"rank_points" yaml:"rank_points"`
}

// RankPoints is the point value of one finishing rank
type RankPoints struct {
	Rank   int `json:"rank" yaml:"rank"`
	Points int `json:"points" yaml:"points"`
}

// Participants returns the tier bucket as a range
func (t ScoringTier) Participants() rules.Range {
	return rules.NewRange(t.MinParticipants, t.MaxParticipants)
}

// Clone returns a deep copy
func (s *ScoringRules) Clone() *ScoringRules {
	if s == nil {
		return nil
	}
	c := &ScoringRules{}
	for _, tier := range s.Tiers {
		tier.RankPoints = append([]RankPoints(nil), tier.RankPoints...)
		c.Tiers = append(c.Tiers, tier)
	}
	return c
}
