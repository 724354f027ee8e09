package storage

import (
	"context"

	"github.com/terra-clan/ruleset-engine/internal/models"
)

// Repository defines the interface for rule set persistence.
// Lookups return (nil, nil) when nothing is found.
type Repository interface {
	// Rule sets
	CreateRuleSet(ctx context.Context, rs *models.RuleSet) error
	GetRuleSet(ctx context.Context, domain models.Domain, id string) (*models.RuleSet, error)
	UpdateRuleSet(ctx context.Context, rs *models.RuleSet) error
	DeleteRuleSet(ctx context.Context, domain models.Domain, id string) error
	ListRuleSets(ctx context.Context, domain models.Domain) ([]*models.RuleSet, error)

	// Activation
	GetActiveRuleSet(ctx context.Context, domain models.Domain) (*models.RuleSet, error)
	ActivateRuleSet(ctx context.Context, domain models.Domain, id string) error

	// Health
	Ping(ctx context.Context) error
	Close() error
}
