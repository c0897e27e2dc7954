package cache

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	wagedomain "github.com/smallbiznis/dotation/internal/wagethreshold/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheExpiresEntries(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTTLCache[string, int](func() time.Time { return now })

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, 0)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)

	v, ok = c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	c.Delete("b")
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestMemoryWageThresholdCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryWageThresholdCache(time.Hour)

	_, ok := c.Get(ctx, 2025)
	assert.False(t, ok)

	c.Set(ctx, wagedomain.WageThreshold{Year: 2025, MonthlyValue: decimal.NewFromInt(1_300_000)})
	got, ok := c.Get(ctx, 2025)
	require.True(t, ok)
	assert.True(t, got.MonthlyValue.Equal(decimal.NewFromInt(1_300_000)))

	c.Invalidate(ctx, 2025)
	_, ok = c.Get(ctx, 2025)
	assert.False(t, ok)
}

func TestWageKey(t *testing.T) {
	assert.Equal(t, "dotation:wage_threshold:2025", wageKey(2025))
}
