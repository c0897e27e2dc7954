package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/dotation/internal/cache"
	"github.com/smallbiznis/dotation/internal/clock"
	"github.com/smallbiznis/dotation/internal/testutil"
	wagedomain "github.com/smallbiznis/dotation/internal/wagethreshold/domain"
	wageservice "github.com/smallbiznis/dotation/internal/wagethreshold/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T) (*testutil.Fixture, wagedomain.Service, *testutil.AuditMock) {
	t.Helper()
	f := testutil.NewFixture(t)
	audit := testutil.NewAuditMock()
	svc := wageservice.NewService(wageservice.ServiceParam{
		DB:       f.DB,
		Log:      zap.NewNop(),
		Cache:    cache.NewMemoryWageThresholdCache(time.Hour),
		AuditSvc: audit,
		Clock:    clock.NewFakeClock(time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC)),
	})
	return f, svc, audit
}

func TestUpsertAndGet(t *testing.T) {
	_, svc, audit := newService(t)
	ctx := context.Background()

	_, err := svc.Get(ctx, 2025)
	assert.ErrorIs(t, err, wagedomain.ErrNotFound)

	stored, err := svc.Upsert(ctx, wagedomain.UpsertRequest{Year: 2025, MonthlyValue: decimal.RequireFromString("1300000.456")}, "hr-admin")
	require.NoError(t, err)
	assert.Equal(t, "1300000.46", stored.MonthlyValue.StringFixed(2))

	got, err := svc.Get(ctx, 2025)
	require.NoError(t, err)
	assert.Equal(t, "1300000.46", got.MonthlyValue.StringFixed(2))

	note := " ajuste decreto "
	_, err = svc.Upsert(ctx, wagedomain.UpsertRequest{Year: 2025, MonthlyValue: decimal.NewFromInt(1_423_500), Note: &note}, "hr-admin")
	require.NoError(t, err)

	got, err = svc.Get(ctx, 2025)
	require.NoError(t, err)
	assert.Equal(t, "1423500.00", got.MonthlyValue.StringFixed(2))
	require.NotNil(t, got.Note)
	assert.Equal(t, "ajuste decreto", *got.Note)

	rows, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	assert.Equal(t, []string{"wage_threshold.upserted", "wage_threshold.upserted"}, audit.Actions())
}

func TestListOrdersByYearDescending(t *testing.T) {
	_, svc, _ := newService(t)
	ctx := context.Background()

	rows, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)

	for _, year := range []int{2024, 2026, 2025} {
		_, err := svc.Upsert(ctx, wagedomain.UpsertRequest{Year: year, MonthlyValue: decimal.NewFromInt(int64(year) * 100)}, "hr-admin")
		require.NoError(t, err)
	}

	rows, err = svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, 2026, rows[0].Year)
	assert.Equal(t, 2025, rows[1].Year)
	assert.Equal(t, 2024, rows[2].Year)
	assert.Equal(t, "202500.00", rows[1].MonthlyValue.StringFixed(2))
}

func TestUpsertValidation(t *testing.T) {
	_, svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Upsert(ctx, wagedomain.UpsertRequest{Year: 1999, MonthlyValue: decimal.NewFromInt(1)}, "hr-admin")
	assert.ErrorIs(t, err, wagedomain.ErrInvalidYear)

	_, err = svc.Upsert(ctx, wagedomain.UpsertRequest{Year: 2025, MonthlyValue: decimal.Zero}, "hr-admin")
	assert.ErrorIs(t, err, wagedomain.ErrInvalidValue)
}

func TestDeleteRefusesThresholdInUse(t *testing.T) {
	f, svc, _ := newService(t)
	ctx := context.Background()

	f.WageThreshold(2025, "1300000.00")
	f.WageThreshold(2026, "1400000.00")
	f.ActiveCycle("Julio", time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC))

	assert.ErrorIs(t, svc.Delete(ctx, 2025, "hr-admin"), wagedomain.ErrThresholdInUse)
	require.NoError(t, svc.Delete(ctx, 2026, "hr-admin"))
	assert.ErrorIs(t, svc.Delete(ctx, 2026, "hr-admin"), wagedomain.ErrNotFound)

	_, err := svc.Get(ctx, 2026)
	assert.ErrorIs(t, err, wagedomain.ErrNotFound)
}

func TestEligibleRange(t *testing.T) {
	f, svc, _ := newService(t)
	f.WageThreshold(2025, "1300000.00")

	r, err := svc.EligibleRange(context.Background(), 2025)
	require.NoError(t, err)
	assert.Equal(t, "1300000.00", r.Minimum.StringFixed(2))
	assert.Equal(t, "2600000.00", r.Maximum.StringFixed(2))
}
