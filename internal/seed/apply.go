package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/terra-clan/ruleset-engine/internal/models"
	"github.com/terra-clan/ruleset-engine/internal/registry"
	"github.com/terra-clan/ruleset-engine/internal/rules"
)

// Registrar is the part of the registry seeds are applied through
type Registrar interface {
	Get(ctx context.Context, domain models.Domain, id string) (*models.RuleSet, error)
	Create(ctx context.Context, rs *models.RuleSet) (*models.RuleSet, error)
	Update(ctx context.Context, rs *models.RuleSet) (*models.RuleSet, error)
	Activate(ctx context.Context, domain models.Domain, id string) (*models.RuleSet, error)
	Audit(ctx context.Context, now time.Time) ([]registry.DomainStatus, error)
}

// Summary counts what Apply changed
type Summary struct {
	Created   int
	Updated   int
	Unchanged int
	Activated int
}

var definitionOpts = []cmp.Option{
	cmpopts.IgnoreFields(models.RuleSet{}, "IsActive", "Version", "CreatedAt", "UpdatedAt"),
	cmpopts.EquateEmpty(),
}

// SameDefinition reports whether two rule sets define the same rules,
// ignoring activation state and bookkeeping fields
func SameDefinition(a, b *models.RuleSet) bool {
	return cmp.Equal(a, b, definitionOpts...)
}

// Apply creates missing rule sets, updates changed ones and activates those
// marked active in domains that have no active rule set yet. An activation made
// after seeding is never overridden, so running Apply again changes nothing.
func Apply(ctx context.Context, reg Registrar, sets []*models.RuleSet) (Summary, error) {
	var sum Summary

	activeByDomain := make(map[models.Domain]string)
	for _, rs := range sets {
		if !rs.IsActive {
			continue
		}
		if prev, ok := activeByDomain[rs.Domain]; ok {
			return sum, fmt.Errorf("seeds mark both %s and %s active in %s: %w", prev, rs.ID, rs.Domain, rules.ErrActivationConflict)
		}
		activeByDomain[rs.Domain] = rs.ID
	}

	statuses, err := reg.Audit(ctx, time.Now().UTC())
	if err != nil {
		return sum, fmt.Errorf("seed: %w", err)
	}
	currentActive := make(map[models.Domain]string, len(statuses))
	for _, st := range statuses {
		if st.ActiveID != "" {
			currentActive[st.Domain] = st.ActiveID
		}
	}

	for _, rs := range sets {
		existing, err := reg.Get(ctx, rs.Domain, rs.ID)
		switch {
		case errors.Is(err, rules.ErrNotFound):
			if existing, err = reg.Create(ctx, rs); err != nil {
				return sum, fmt.Errorf("seed %s: %w", rs.ID, err)
			}
			sum.Created++
		case err != nil:
			return sum, fmt.Errorf("seed %s: %w", rs.ID, err)
		case !SameDefinition(existing, rs):
			if existing, err = reg.Update(ctx, rs); err != nil {
				return sum, fmt.Errorf("seed %s: %w", rs.ID, err)
			}
			sum.Updated++
		default:
			sum.Unchanged++
		}

		if !rs.IsActive || existing.IsActive {
			continue
		}
		if current, ok := currentActive[rs.Domain]; ok {
			slog.Info("domain already has an active rule set, seed left inactive",
				"domain", rs.Domain,
				"seed_id", rs.ID,
				"active_id", current,
			)
			continue
		}
		if _, err := reg.Activate(ctx, rs.Domain, rs.ID); err != nil {
			return sum, fmt.Errorf("seed %s: %w", rs.ID, err)
		}
		currentActive[rs.Domain] = rs.ID
		sum.Activated++
	}

	slog.Info("rule set seeds applied",
		"created", sum.Created,
		"updated", sum.Updated,
		"unchanged", sum.Unchanged,
		"activated", sum.Activated,
	)

	return sum, nil
}
