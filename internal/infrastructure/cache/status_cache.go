package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/meridianrisk/raf-engine/internal/domain/appetite"
	"github.com/meridianrisk/raf-engine/internal/infrastructure/config"
)

// StatusCache is the read-side cache for RAG badges. The database remains
// the source of truth: cache failures are logged and never fatal, and a
// sweep rewrites the entries for every limit it touched.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// cachedBadge is the serialized form of a badge entry.
type cachedBadge struct {
	Status     string    `json:"status"`
	Value      *string   `json:"value,omitempty"`
	ComputedAt time.Time `json:"computed_at"`
}

// NewStatusCache connects to Redis and verifies the connection.
func NewStatusCache(cfg *config.RedisConfig, logger *zap.Logger) (*StatusCache, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.URL,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info("status cache initialized",
		zap.String("addr", cfg.URL),
		zap.Int("db", cfg.DB),
		zap.Duration("badge_ttl", cfg.BadgeTTL))

	return &StatusCache{
		client: client,
		ttl:    cfg.BadgeTTL,
		logger: logger,
	}, nil
}

func badgeKey(toleranceID uuid.UUID) string {
	return "raf:badge:" + toleranceID.String()
}

// SetBadge stores the latest evaluation for a tolerance limit.
func (c *StatusCache) SetBadge(ctx context.Context, toleranceID uuid.UUID, eval appetite.Evaluation, computedAt time.Time) error {
	badge := cachedBadge{
		Status:     eval.Status.String(),
		ComputedAt: computedAt.UTC(),
	}
	if eval.Value != nil {
		v := eval.Value.String()
		badge.Value = &v
	}

	payload, err := json.Marshal(badge)
	if err != nil {
		return fmt.Errorf("failed to marshal badge: %w", err)
	}

	if err := c.client.Set(ctx, badgeKey(toleranceID), payload, c.ttl).Err(); err != nil {
		c.logger.Warn("badge cache write failed",
			zap.String("tolerance_id", toleranceID.String()),
			zap.Error(err))
		return fmt.Errorf("badge cache write failed: %w", err)
	}

	return nil
}

// GetBadge returns the cached status string for a limit, with ok=false on a
// miss.
func (c *StatusCache) GetBadge(ctx context.Context, toleranceID uuid.UUID) (appetite.RAGStatus, bool, error) {
	payload, err := c.client.Get(ctx, badgeKey(toleranceID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return appetite.StatusUnknown, false, nil
		}
		return appetite.StatusUnknown, false, fmt.Errorf("badge cache read failed: %w", err)
	}

	var badge cachedBadge
	if err := json.Unmarshal(payload, &badge); err != nil {
		return appetite.StatusUnknown, false, fmt.Errorf("failed to unmarshal badge: %w", err)
	}

	status, err := appetite.ParseRAGStatus(badge.Status)
	if err != nil {
		return appetite.StatusUnknown, false, err
	}

	return status, true, nil
}

// Invalidate drops the cached badge for a limit.
func (c *StatusCache) Invalidate(ctx context.Context, toleranceID uuid.UUID) error {
	if err := c.client.Del(ctx, badgeKey(toleranceID)).Err(); err != nil {
		return fmt.Errorf("badge cache delete failed: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (c *StatusCache) Close() error {
	return c.client.Close()
}
