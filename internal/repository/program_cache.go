package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/bibleschool-api/internal/models"
	appErrors "github.com/noah-isme/bibleschool-api/pkg/errors"
)

const programCachePrefix = "academy:program:"

type programSource interface {
	FindByID(ctx context.Context, id string) (*models.Program, error)
	FindCohort(ctx context.Context, id string) (*models.Cohort, error)
}

// ProgramCache serves program rows from Redis. Programs are immutable once referenced,
// so entries only expire by TTL. Cohorts are always read from the source.
type ProgramCache struct {
	client *redis.Client
	source programSource
	ttl    time.Duration
	logger *zap.Logger
}

// NewProgramCache wraps source with a Redis read-through cache. A nil client disables caching.
func NewProgramCache(client *redis.Client, source programSource, ttl time.Duration, logger *zap.Logger) *ProgramCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ProgramCache{client: client, source: source, ttl: ttl, logger: logger}
}

// FindByID returns the cached program or loads and caches it.
func (c *ProgramCache) FindByID(ctx context.Context, id string) (*models.Program, error) {
	key := programCachePrefix + id
	var cached models.Program
	err := c.get(ctx, key, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, appErrors.ErrCacheMiss) {
		c.logger.Warn("program cache read failed", zap.String("key", key), zap.Error(err))
	}

	program, err := c.source.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.set(ctx, key, program); err != nil {
		c.logger.Warn("program cache write failed", zap.String("key", key), zap.Error(err))
	}
	return program, nil
}

// FindCohort delegates to the source.
func (c *ProgramCache) FindCohort(ctx context.Context, id string) (*models.Cohort, error) {
	return c.source.FindCohort(ctx, id)
}

// Invalidate removes every cached program.
func (c *ProgramCache) Invalidate(ctx context.Context) error {
	if c.client == nil {
		return nil
	}

	iter := c.client.Scan(ctx, 0, programCachePrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if err := c.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("redis delete %s: %w", key, err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan %s: %w", programCachePrefix, err)
	}
	return nil
}

func (c *ProgramCache) get(ctx context.Context, key string, dest interface{}) error {
	if c.client == nil {
		return appErrors.ErrCacheMiss
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return appErrors.ErrCacheMiss
		}
		return fmt.Errorf("redis get %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}
	return nil
}

func (c *ProgramCache) set(ctx context.Context, key string, value interface{}) error {
	if c.client == nil {
		return nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
