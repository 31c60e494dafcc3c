package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridianrisk/raf-engine/internal/domain/appetite"
	"github.com/meridianrisk/raf-engine/internal/infrastructure/config"
)

func newTestCache(t *testing.T) (*StatusCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	cache, err := NewStatusCache(&config.RedisConfig{
		URL:      mr.Addr(),
		BadgeTTL: time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	return cache, mr
}

func TestStatusCache_SetAndGetBadge(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	toleranceID := uuid.New()
	value := decimal.RequireFromString("72.5")

	err := cache.SetBadge(ctx, toleranceID, appetite.Evaluation{
		Status: appetite.StatusAmber,
		Value:  &value,
	}, time.Now())
	require.NoError(t, err)

	status, ok, err := cache.GetBadge(ctx, toleranceID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, appetite.StatusAmber, status)
}

func TestStatusCache_Miss(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	_, ok, err := cache.GetBadge(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStatusCache_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	toleranceID := uuid.New()
	err := cache.SetBadge(ctx, toleranceID, appetite.Evaluation{Status: appetite.StatusGreen}, time.Now())
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, ok, err := cache.GetBadge(ctx, toleranceID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStatusCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	toleranceID := uuid.New()
	require.NoError(t, cache.SetBadge(ctx, toleranceID, appetite.Evaluation{Status: appetite.StatusNoData}, time.Now()))
	require.NoError(t, cache.Invalidate(ctx, toleranceID))

	_, ok, err := cache.GetBadge(ctx, toleranceID)
	require.NoError(t, err)
	assert.False(t, ok)
}
