// Package cache keeps short-lived snapshots of the active rule set per domain.
package cache

import (
	"context"
	"errors"

	"github.com/terra-clan/ruleset-engine/internal/models"
)

// ErrStale is returned by Set when the domain was invalidated after the
// writer captured its generation
var ErrStale = errors.New("snapshot generation changed")

// Snapshots caches the active rule set of each domain.
// Only activation state is cached; effective windows are evaluated by the reader.
//
// Every Invalidate advances the domain generation. A reader captures the
// generation before loading from the repository and passes it to Set, so a
// load that raced with an activation is never written back.
type Snapshots interface {
	Get(ctx context.Context, domain models.Domain) (*models.RuleSet, bool, error)
	Generation(ctx context.Context, domain models.Domain) (int64, error)
	Set(ctx context.Context, domain models.Domain, rs *models.RuleSet, generation int64) error
	Invalidate(ctx context.Context, domain models.Domain) error
}

// Noop never stores anything
type Noop struct{}

func (Noop) Get(ctx context.Context, domain models.Domain) (*models.RuleSet, bool, error) {
	return nil, false, nil
}

func (Noop) Generation(ctx context.Context, domain models.Domain) (int64, error) {
	return 0, nil
}

func (Noop) Set(ctx context.Context, domain models.Domain, rs *models.RuleSet, generation int64) error {
	return nil
}

func (Noop) Invalidate(ctx context.Context, domain models.Domain) error {
	return nil
}
