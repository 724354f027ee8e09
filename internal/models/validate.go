package models

import (
	"fmt"
	"strings"

	"github.com/terra-clan/ruleset-engine/internal/rules"
)

// ValidateOptions tunes write-time validation
type ValidateOptions struct {
	// Strict rejects overlapping ranges and duplicate ranks instead of
	// relying on first-match resolution.
	Strict bool
}

// Validate checks a rule set before it is persisted.
// All problems are reported at once as a *rules.ValidationError.
func (rs *RuleSet) Validate(opts ValidateOptions) error {
	var verr rules.ValidationError

	if strings.TrimSpace(rs.Name) == "" {
		verr.Add("name", "is required")
	}
	if !rs.Domain.Valid() {
		verr.Add("domain", fmt.Sprintf("unknown domain %q", rs.Domain))
	}
	if rs.EffectiveFrom != nil && rs.EffectiveTo != nil && rs.EffectiveFrom.After(*rs.EffectiveTo) {
		verr.Add("effective_from", "must not be after effective_to")
	}

	payloads := 0
	if rs.Scoring != nil {
		payloads++
	}
	if rs.Rewards != nil {
		payloads++
	}
	if rs.Placement != nil {
		payloads++
	}
	if payloads > 1 {
		verr.Add("rules", "only one domain payload may be set")
	}

	switch rs.Domain {
	case DomainScoring:
		if rs.Scoring == nil {
			verr.Add("scoring", "is required for the scoring domain")
		} else {
			rs.Scoring.validate(&verr, opts)
		}
	case DomainRewards:
		if rs.Rewards == nil {
			verr.Add("rewards", "is required for the rewards domain")
		} else {
			rs.Rewards.validate(&verr, opts)
		}
	case DomainPlacement:
		if rs.Placement == nil {
			verr.Add("placement", "is required for the placement domain")
		} else {
			rs.Placement.validate(&verr, opts)
		}
	}

	return verr.Err()
}

func (s *ScoringRules) validate(verr *rules.ValidationError, opts ValidateOptions) {
	if len(s.Tiers) == 0 {
		verr.Add("scoring.tiers", "at least one tier is required")
	}
	for i, tier := range s.Tiers {
		field := fmt.Sprintf("scoring.tiers[%d]", i)
		if tier.MinParticipants < 0 {
			verr.Add(field+".min_participants", "must be >= 0")
		}
		if !tier.Participants().Valid() {
			verr.Add(field, "min_participants must not exceed max_participants")
		}
		seen := make(map[int]bool)
		for j, rp := range tier.RankPoints {
			rpField := fmt.Sprintf("%s.rank_points[%d]", field, j)
			if rp.Rank < 1 {
				verr.Add(rpField+".rank", "must be >= 1")
			}
			if rp.Points < 0 {
				verr.Add(rpField+".points", "must be >= 0")
			}
			if opts.Strict && seen[rp.Rank] {
				verr.Add(rpField+".rank", fmt.Sprintf("duplicate rank %d", rp.Rank))
			}
			seen[rp.Rank] = true
		}
		if opts.Strict {
			for k := 0; k < i; k++ {
				if rules.Overlaps(s.Tiers[k].Participants(), tier.Participants()) {
					verr.Add(field, fmt.Sprintf("participant bucket %s overlaps tiers[%d]", tier.Participants(), k))
				}
			}
		}
	}
}

func (r *RewardRules) validate(verr *rules.ValidationError, opts ValidateOptions) {
	seen := make(map[int]bool)
	for i, rw := range r.Rewards {
		field := fmt.Sprintf("rewards.rewards[%d]", i)
		if rw.Rank < 1 {
			verr.Add(field+".rank", "must be >= 1")
		}
		if rw.Coins < 0 {
			verr.Add(field+".coins", "must be >= 0")
		}
		if opts.Strict && seen[rw.Rank] {
			verr.Add(field+".rank", fmt.Sprintf("duplicate rank %d", rw.Rank))
		}
		seen[rw.Rank] = true
	}
}

func (p *PlacementRules) validate(verr *rules.ValidationError, opts ValidateOptions) {
	if p.Cost < 0 {
		verr.Add("placement.cost", "must be >= 0")
	}
	if len(p.InitialQuestions) == 0 {
		verr.Add("placement.initial_questions", "at least one entry is required")
	}
	validateQuestions(verr, "placement.initial_questions", p.InitialQuestions)

	for i, b := range p.Branches {
		field := fmt.Sprintf("placement.branches[%d]", i)
		from := b.Condition.FromPhase
		if !from.Valid() {
			verr.Add(field+".condition.from_phase", fmt.Sprintf("unknown phase %q", from))
		}
		cr := b.Condition.CorrectRange
		if cr.Min < 0 {
			verr.Add(field+".condition.correct_range", "min must be >= 0")
		}
		if !cr.Valid() {
			verr.Add(field+".condition.correct_range", "min must not exceed max")
		}

		if b.Terminal() {
			if *b.ResultLevel < 0 {
				verr.Add(field+".result_level", "must be >= 0")
			}
		} else {
			switch {
			case b.NextPhase == "":
				verr.Add(field, "requires result_level or next_phase with next_questions")
			case b.NextPhase != PhaseFollowup && b.NextPhase != PhaseFinal:
				verr.Add(field+".next_phase", fmt.Sprintf("must be %q or %q", PhaseFollowup, PhaseFinal))
			case from.Valid() && b.NextPhase.Order() <= from.Order():
				verr.Add(field+".next_phase", fmt.Sprintf("must come after %q", from))
			}
			if b.NextPhase != "" && len(b.NextQuestions) == 0 {
				verr.Add(field+".next_questions", "required when next_phase is set")
			}
		}
		validateQuestions(verr, field+".next_questions", b.NextQuestions)

		if opts.Strict {
			for k := 0; k < i; k++ {
				prev := p.Branches[k].Condition
				if prev.FromPhase == from && rules.Overlaps(prev.CorrectRange, cr) {
					verr.Add(field+".condition.correct_range",
						fmt.Sprintf("%s overlaps branches[%d] from phase %q", cr, k, from))
				}
			}
		}
	}
}

func validateQuestions(verr *rules.ValidationError, field string, specs []QuestionSpec) {
	for i, q := range specs {
		if q.Level < 0 {
			verr.Add(fmt.Sprintf("%s[%d].level", field, i), "must be >= 0")
		}
		if q.Count < 1 {
			verr.Add(fmt.Sprintf("%s[%d].count", field, i), "must be >= 1")
		}
	}
}
