package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/terra-clan/ruleset-engine/internal/models"
)

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// RedisSnapshots implements Snapshots on top of Redis string keys
type RedisSnapshots struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSnapshots creates a snapshot cache; ttl bounds staleness across replicas
func NewRedisSnapshots(client *redis.Client, prefix string, ttl time.Duration) *RedisSnapshots {
	if prefix == "" {
		prefix = "ruleset-engine"
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisSnapshots{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisSnapshots) key(domain models.Domain) string {
	return fmt.Sprintf("%s:active:%s", c.prefix, domain)
}

func (c *RedisSnapshots) generationKey(domain models.Domain) string {
	return fmt.Sprintf("%s:active:%s:generation", c.prefix, domain)
}

// Get returns the cached active rule set of a domain
func (c *RedisSnapshots) Get(ctx context.Context, domain models.Domain) (*models.RuleSet, bool, error) {
	data, err := c.client.Get(ctx, c.key(domain)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var rs models.RuleSet
	if err := json.Unmarshal(data, &rs); err != nil {
		// A corrupt entry is dropped and treated as a miss
		slog.Warn("discarding corrupt snapshot", "domain", domain, "error", err)
		if err := c.Invalidate(ctx, domain); err != nil {
			slog.Error("failed to drop corrupt snapshot", "domain", domain, "error", err)
		}
		return nil, false, nil
	}
	return &rs, true, nil
}

// Generation returns the invalidation counter of a domain; zero if never invalidated
func (c *RedisSnapshots) Generation(ctx context.Context, domain models.Domain) (int64, error) {
	gen, err := c.client.Get(ctx, c.generationKey(domain)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("failed to read snapshot generation: %w", err)
	}
	return gen, nil
}

// Set stores the active rule set of a domain if its generation still equals
// generation; otherwise it returns ErrStale and writes nothing
func (c *RedisSnapshots) Set(ctx context.Context, domain models.Domain, rs *models.RuleSet, generation int64) error {
	data, err := json.Marshal(rs)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	genKey := c.generationKey(domain)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != generation {
			return ErrStale
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.key(domain), data, c.ttl)
			return nil
		})
		return err
	}, genKey)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStale), errors.Is(err, redis.TxFailedErr):
		return ErrStale
	default:
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
}

// Invalidate drops the cached snapshot of a domain and advances its generation
func (c *RedisSnapshots) Invalidate(ctx context.Context, domain models.Domain) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.generationKey(domain))
		pipe.Del(ctx, c.key(domain))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate snapshot: %w", err)
	}
	return nil
}

// HealthCheck verifies Redis connectivity
func (c *RedisSnapshots) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
