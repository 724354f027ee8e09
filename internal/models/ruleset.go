package models

import (
	"time"
)

// Domain names one of the rule-resolution domains
type Domain string

const (
	DomainScoring   Domain = "scoring"
	DomainRewards   Domain = "rewards"
	DomainPlacement Domain = "placement"
)

// Domains lists every known domain in a stable order
var Domains = []Domain{DomainScoring, DomainRewards, DomainPlacement}

// ParseDomain converts a raw string into a known Domain
func ParseDomain(s string) (Domain, bool) {
	d := Domain(s)
	return d, d.Valid()
}

// Valid returns true for a known domain
func (d Domain) Valid() bool {
	switch d {
	case DomainScoring, DomainRewards, DomainPlacement:
		return true
	}
	return false
}

// RuleSet is a named, versioned configuration for one domain.
// Exactly one of Scoring, Rewards or Placement is set, matching Domain.
type RuleSet struct {
	ID            string     `json:"id" yaml:"id"`
	Domain        Domain     `json:"domain" yaml:"domain"`
	Name          string     `json:"name" yaml:"name"`
	Description   string     `json:"description,omitempty" yaml:"description"`
	IsActive      bool       `json:"is_active" yaml:"active"`
	EffectiveFrom *time.Time `json:"effective_from,omitempty" yaml:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty" yaml:"effective_to"`
	Version       int        `json:"version" yaml:"-"`
	CreatedAt     time.Time  `json:"created_at" yaml:"-"`
	UpdatedAt     time.Time  `json:"updated_at" yaml:"-"`

	Scoring   *ScoringRules   `json:"scoring,omitempty" yaml:"scoring"`
	Rewards   *RewardRules    `json:"rewards,omitempty" yaml:"rewards"`
	Placement *PlacementRules `json:"placement,omitempty" yaml:"placement"`
}

// InWindow reports whether t falls inside the effective window.
// A missing bound is open-ended.
func (rs *RuleSet) InWindow(t time.Time) bool {
	if rs.EffectiveFrom != nil && t.Before(*rs.EffectiveFrom) {
		return false
	}
	if rs.EffectiveTo != nil && t.After(*rs.EffectiveTo) {
		return false
	}
	return true
}

// Resolvable reports whether the rule set may serve resolution at t
func (rs *RuleSet) Resolvable(t time.Time) bool {
	return rs.IsActive && rs.InWindow(t)
}

// Clone returns a deep copy
func (rs *RuleSet) Clone() *RuleSet {
	if rs == nil {
		return nil
	}
	c := *rs
	c.EffectiveFrom = cloneTime(rs.EffectiveFrom)
	c.EffectiveTo = cloneTime(rs.EffectiveTo)
	c.Scoring = rs.Scoring.Clone()
	c.Rewards = rs.Rewards.Clone()
	c.Placement = rs.Placement.Clone()
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// WindowState describes where a rule set's window sits relative to a point in time
type WindowState string

const (
	WindowOpen    WindowState = "open"
	WindowPending WindowState = "pending"
	WindowLapsed  WindowState = "lapsed"
)

// WindowAt classifies t against the effective window
func (rs *RuleSet) WindowAt(t time.Time) WindowState {
	if rs.EffectiveFrom != nil && t.Before(*rs.EffectiveFrom) {
		return WindowPending
	}
	if rs.EffectiveTo != nil && t.After(*rs.EffectiveTo) {
		return WindowLapsed
	}
	return WindowOpen
}
