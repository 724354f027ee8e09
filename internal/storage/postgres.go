package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terra-clan/ruleset-engine/internal/models"
	"github.com/terra-clan/ruleset-engine/internal/rules"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 10
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 2
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Pool exposes the underlying pool for migrations
func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// rulesPayload is the JSONB shape of the rules column
type rulesPayload struct {
	Scoring   *models.ScoringRules   `json:"scoring,omitempty"`
	Rewards   *models.RewardRules    `json:"rewards,omitempty"`
	Placement *models.PlacementRules `json:"placement,omitempty"`
}

// uniqueViolation is the Postgres SQLSTATE for a duplicate key
const uniqueViolation = "23505"

const ruleSetColumns = `id, domain, name, description, is_active, effective_from, effective_to, rules, version, created_at, updated_at`

// CreateRuleSet inserts a new rule set
func (r *PostgresRepository) CreateRuleSet(ctx context.Context, rs *models.RuleSet) error {
	rulesJSON, err := marshalRules(rs)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO rule_sets (` + ruleSetColumns + `)
		VALUES ($1, $2, $3, $4, FALSE, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.pool.Exec(ctx, query,
		rs.ID,
		string(rs.Domain),
		rs.Name,
		nullString(rs.Description),
		nullTime(rs.EffectiveFrom),
		nullTime(rs.EffectiveTo),
		rulesJSON,
		rs.Version,
		rs.CreatedAt,
		rs.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%s: %w", rs.ID, rules.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create rule set: %w", err)
	}

	return nil
}

// GetRuleSet retrieves a rule set by domain and ID
func (r *PostgresRepository) GetRuleSet(ctx context.Context, domain models.Domain, id string) (*models.RuleSet, error) {
	query := `SELECT ` + ruleSetColumns + ` FROM rule_sets WHERE domain = $1 AND id = $2`

	rs, err := scanRuleSet(r.pool.QueryRow(ctx, query, string(domain), id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get rule set: %w", err)
	}
	return rs, nil
}

// UpdateRuleSet replaces the definition of a rule set; is_active is never written here
func (r *PostgresRepository) UpdateRuleSet(ctx context.Context, rs *models.RuleSet) error {
	rulesJSON, err := marshalRules(rs)
	if err != nil {
		return err
	}

	query := `
		UPDATE rule_sets
		SET name = $3, description = $4, effective_from = $5, effective_to = $6, rules = $7, version = $8, updated_at = $9
		WHERE domain = $1 AND id = $2
	`

	result, err := r.pool.Exec(ctx, query,
		string(rs.Domain),
		rs.ID,
		rs.Name,
		nullString(rs.Description),
		nullTime(rs.EffectiveFrom),
		nullTime(rs.EffectiveTo),
		rulesJSON,
		rs.Version,
		rs.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update rule set: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("update %s: %w", rs.ID, rules.ErrNotFound)
	}

	return nil
}

// DeleteRuleSet deletes an inactive rule set.
// The is_active guard is part of the DELETE so a concurrent activation cannot slip in.
func (r *PostgresRepository) DeleteRuleSet(ctx context.Context, domain models.Domain, id string) error {
	result, err := r.pool.Exec(ctx,
		`DELETE FROM rule_sets WHERE domain = $1 AND id = $2 AND NOT is_active`,
		string(domain), id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete rule set: %w", err)
	}

	if result.RowsAffected() > 0 {
		return nil
	}

	var active bool
	err = r.pool.QueryRow(ctx,
		`SELECT is_active FROM rule_sets WHERE domain = $1 AND id = $2`,
		string(domain), id,
	).Scan(&active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("delete %s: %w", id, rules.ErrNotFound)
		}
		return fmt.Errorf("failed to check rule set: %w", err)
	}

	return fmt.Errorf("delete %s: %w", id, rules.ErrActivationConflict)
}

// ListRuleSets returns every rule set of a domain, newest first
func (r *PostgresRepository) ListRuleSets(ctx context.Context, domain models.Domain) ([]*models.RuleSet, error) {
	query := `SELECT ` + ruleSetColumns + ` FROM rule_sets WHERE domain = $1 ORDER BY created_at DESC, id`

	rows, err := r.pool.Query(ctx, query, string(domain))
	if err != nil {
		return nil, fmt.Errorf("failed to list rule sets: %w", err)
	}
	defer rows.Close()

	var sets []*models.RuleSet
	for rows.Next() {
		rs, err := scanRuleSet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule set: %w", err)
		}
		sets = append(sets, rs)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule sets: %w", err)
	}

	return sets, nil
}

// GetActiveRuleSet returns the active rule set of a domain
func (r *PostgresRepository) GetActiveRuleSet(ctx context.Context, domain models.Domain) (*models.RuleSet, error) {
	query := `SELECT ` + ruleSetColumns + ` FROM rule_sets WHERE domain = $1 AND is_active`

	rs, err := scanRuleSet(r.pool.QueryRow(ctx, query, string(domain)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active rule set: %w", err)
	}
	return rs, nil
}

// ActivateRuleSet activates id and deactivates its siblings in one transaction.
// A transaction-scoped advisory lock serializes activations of the same domain
// across processes; the partial unique index rejects anything that slips past it.
func (r *PostgresRepository) ActivateRuleSet(ctx context.Context, domain models.Domain, id string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('rule_sets:' || $1::text))`, string(domain)); err != nil {
			return fmt.Errorf("failed to lock domain %s: %w", domain, err)
		}

		var exists bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM rule_sets WHERE domain = $1 AND id = $2)`,
			string(domain), id,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check rule set: %w", err)
		}
		if !exists {
			return fmt.Errorf("activate %s: %w", id, rules.ErrNotFound)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE rule_sets SET is_active = FALSE, updated_at = NOW() WHERE domain = $1 AND is_active AND id <> $2`,
			string(domain), id,
		); err != nil {
			return fmt.Errorf("failed to deactivate siblings: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE rule_sets SET is_active = TRUE, updated_at = NOW() WHERE domain = $1 AND id = $2 AND NOT is_active`,
			string(domain), id,
		); err != nil {
			return fmt.Errorf("failed to activate rule set: %w", err)
		}

		return nil
	})
}

func marshalRules(rs *models.RuleSet) ([]byte, error) {
	data, err := json.Marshal(rulesPayload{
		Scoring:   rs.Scoring,
		Rewards:   rs.Rewards,
		Placement: rs.Placement,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rules: %w", err)
	}
	return data, nil
}

func scanRuleSet(row pgx.Row) (*models.RuleSet, error) {
	var rs models.RuleSet
	var domainStr string
	var description sql.NullString
	var effectiveFrom, effectiveTo sql.NullTime
	var rulesJSON []byte

	err := row.Scan(
		&rs.ID,
		&domainStr,
		&rs.Name,
		&description,
		&rs.IsActive,
		&effectiveFrom,
		&effectiveTo,
		&rulesJSON,
		&rs.Version,
		&rs.CreatedAt,
		&rs.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rs.Domain = models.Domain(domainStr)
	rs.Description = description.String

	if effectiveFrom.Valid {
		rs.EffectiveFrom = &effectiveFrom.Time
	}
	if effectiveTo.Valid {
		rs.EffectiveTo = &effectiveTo.Time
	}

	var payload rulesPayload
	if err := json.Unmarshal(rulesJSON, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rules: %w", err)
	}
	rs.Scoring = payload.Scoring
	rs.Rewards = payload.Rewards
	rs.Placement = payload.Placement

	return &rs, nil
}

// Helper functions for nullable values

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
