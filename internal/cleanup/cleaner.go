// Package cleanup runs the periodic housekeeping worker.
package cleanup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/terra-clan/ruleset-engine/internal/models"
	"github.com/terra-clan/ruleset-engine/internal/registry"
)

// SessionPurger drops expired placement sessions
type SessionPurger interface {
	PurgeExpired(now time.Time) int
}

// Auditor reports the activation state of every domain
type Auditor interface {
	Audit(ctx context.Context, now time.Time) ([]registry.DomainStatus, error)
}

// Cleaner purges expired sessions and warns about domains whose active rule
// set has left its effective window
type Cleaner struct {
	sessions SessionPurger
	auditor  Auditor
	interval time.Duration
	now      func() time.Time

	mu     sync.Mutex
	states map[models.Domain]registry.DomainState
	done   chan struct{}
}

// NewCleaner creates a new cleanup worker; either dependency may be nil
func NewCleaner(sessions SessionPurger, auditor Auditor, interval time.Duration) *Cleaner {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	return &Cleaner{
		sessions: sessions,
		auditor:  auditor,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
		states:   make(map[models.Domain]registry.DomainState),
		done:     make(chan struct{}),
	}
}

// Start begins the cleanup worker in a goroutine
func (c *Cleaner) Start(ctx context.Context) {
	go c.run(ctx)
}

// Done is closed once the worker has stopped
func (c *Cleaner) Done() <-chan struct{} {
	return c.done
}

// run is the main loop for the cleanup worker
func (c *Cleaner) run(ctx context.Context) {
	defer close(c.done)
	slog.Info("cleanup worker started", "interval", c.interval)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Run immediately on start
	c.cleanup(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup worker stopped")
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

// cleanup runs one housekeeping cycle
func (c *Cleaner) cleanup(ctx context.Context) {
	slog.Debug("running cleanup cycle")
	now := c.now()

	if c.sessions != nil {
		if n := c.sessions.PurgeExpired(now); n > 0 {
			slog.Info("expired placement sessions purged", "count", n)
		}
	}

	if c.auditor == nil {
		return
	}
	statuses, err := c.auditor.Audit(ctx, now)
	if err != nil {
		slog.Error("failed to audit rule set activation", "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, st := range statuses {
		prev, seen := c.states[st.Domain]
		c.states[st.Domain] = st.State
		if seen && prev == st.State {
			continue
		}
		switch st.State {
		case registry.StateLapsed, registry.StatePending:
			slog.Warn("active rule set is outside its effective window",
				"domain", st.Domain,
				"rule_set_id", st.ActiveID,
				"state", st.State,
			)
		case registry.StateUnconfigured:
			slog.Warn("domain has no active rule set", "domain", st.Domain)
		default:
			slog.Info("domain is configured", "domain", st.Domain, "rule_set_id", st.ActiveID)
		}
	}
}

// States returns the last observed state of each domain
func (c *Cleaner) States() map[models.Domain]registry.DomainState {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[models.Domain]registry.DomainState, len(c.states))
	for d, s := range c.states {
		out[d] = s
	}
	return out
}
