// Package cache provides a Redis-backed read-through cache for identity
// lookups. /auth/me is hit on every client bootstrap and after every token
// refresh; user records never change in the current scope, so a short TTL
// keeps those lookups off Postgres.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/converse-chat/converse/internal/models"
)

const identityTTL = 5 * time.Minute

// IdentityCache caches user records by ID. All operations fail open: a Redis
// error is logged and reported as a miss, never surfaced to the caller.
type IdentityCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewIdentityCache connects to Redis. An empty URL disables caching and
// returns a nil cache, which every method treats as a permanent miss.
func NewIdentityCache(redisURL string, logger *zap.Logger) (*IdentityCache, error) {
	if redisURL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &IdentityCache{
		client: redis.NewClient(opts),
		logger: logger,
	}, nil
}

func (c *IdentityCache) Get(ctx context.Context, userID uuid.UUID) *models.User {
	if c == nil {
		return nil
	}

	raw, err := c.client.Get(ctx, key(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("identity cache get failed", zap.Error(err))
		}
		return nil
	}

	var u models.User
	if err := json.Unmarshal(raw, &u); err != nil {
		c.logger.Warn("identity cache entry corrupt", zap.Error(err))
		return nil
	}
	return &u
}

func (c *IdentityCache) Set(ctx context.Context, user *models.User) {
	if c == nil || user == nil {
		return
	}

	raw, err := json.Marshal(user)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key(user.ID), raw, identityTTL).Err(); err != nil {
		c.logger.Warn("identity cache set failed", zap.Error(err))
	}
}

func (c *IdentityCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

func key(userID uuid.UUID) string {
	return "identity:" + userID.String()
}
