package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/dotation/internal/clock"
	cycledomain "github.com/smallbiznis/dotation/internal/cycle/domain"
	kitdomain "github.com/smallbiznis/dotation/internal/kit/domain"
	kitservice "github.com/smallbiznis/dotation/internal/kit/service"
	"github.com/smallbiznis/dotation/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*testutil.Fixture, kitdomain.Service, *testutil.AuditMock) {
	t.Helper()
	f := testutil.NewFixture(t)
	audit := testutil.NewAuditMock()
	svc := kitservice.NewService(kitservice.ServiceParam{
		DB:       f.DB,
		Log:      zap.NewNop(),
		AuditSvc: audit,
		Clock:    clock.NewFakeClock(testNow),
	})
	return f, svc, audit
}

func TestBackfillMissingKitsIsIdempotent(t *testing.T) {
	f, svc, audit := newService(t)
	ctx := context.Background()

	covered := f.Area("Bodega")
	uncovered := f.Area("Ventas")
	cycle := f.ActiveCycle("Julio", time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC))

	first := f.Member(cycle.ID, f.Employee(testutil.EmployeeSpec{FirstName: "Ana", AreaID: covered.ID}), nil)
	second := f.Member(cycle.ID, f.Employee(testutil.EmployeeSpec{FirstName: "Luis", AreaID: covered.ID}), nil)
	orphan := f.Member(cycle.ID, f.Employee(testutil.EmployeeSpec{FirstName: "Rosa", AreaID: uncovered.ID}), nil)

	updated, err := svc.BackfillMissingKits(ctx, cycle.ID, "scheduler")
	require.NoError(t, err)
	assert.EqualValues(t, 0, updated)

	kit := f.Kit(covered.ID, "Kit bodega", true)
	f.Kit(uncovered.ID, "Kit retirado", false)

	updated, err = svc.BackfillMissingKits(ctx, cycle.ID, "scheduler")
	require.NoError(t, err)
	assert.EqualValues(t, 2, updated)

	updated, err = svc.BackfillMissingKits(ctx, cycle.ID, "scheduler")
	require.NoError(t, err)
	assert.EqualValues(t, 0, updated)

	var rows []cycledomain.Membership
	require.NoError(t, f.DB.Order("id ASC").Find(&rows).Error)
	byID := map[string]*cycledomain.Membership{}
	for i := range rows {
		byID[rows[i].ID.String()] = &rows[i]
	}
	for _, m := range []cycledomain.Membership{first, second} {
		got := byID[m.ID.String()]
		require.NotNil(t, got.KitID)
		assert.Equal(t, kit.ID, *got.KitID)
	}
	assert.Nil(t, byID[orphan.ID.String()].KitID)

	assert.Equal(t, []string{"cycle.kits_backfilled"}, audit.Actions())

	_, err = svc.BackfillMissingKits(ctx, 0, "scheduler")
	assert.ErrorIs(t, err, kitdomain.ErrInvalidCycle)
}

func TestResolveKit(t *testing.T) {
	f, svc, _ := newService(t)
	ctx := context.Background()

	area := f.Area("Bodega")
	active := f.Kit(area.ID, "Kit bodega", true)
	retired := f.Kit(area.ID, "Kit viejo", false)

	got, err := svc.ResolveKit(ctx, kitdomain.MembershipRef{AreaID: area.ID})
	require.NoError(t, err)
	require.True(t, got.IsResolved())
	assert.Equal(t, active.ID, got.Kit.ID)
	assert.Equal(t, kitdomain.SourceArea, got.Source)

	retiredID := retired.ID
	got, err = svc.ResolveKit(ctx, kitdomain.MembershipRef{KitID: &retiredID, AreaID: area.ID})
	require.NoError(t, err)
	require.True(t, got.IsResolved())
	assert.Equal(t, retired.ID, got.Kit.ID)
	assert.Equal(t, kitdomain.SourceExplicit, got.Source)

	missing := f.Node.Generate()
	got, err = svc.ResolveKit(ctx, kitdomain.MembershipRef{KitID: &missing, AreaID: area.ID})
	require.NoError(t, err)
	assert.False(t, got.IsResolved())

	got, err = svc.ResolveKit(ctx, kitdomain.MembershipRef{AreaID: f.Area("Ventas").ID})
	require.NoError(t, err)
	assert.Equal(t, kitdomain.Unresolved, got.Status)

	got, err = svc.ResolveKit(ctx, kitdomain.MembershipRef{})
	require.NoError(t, err)
	assert.Equal(t, kitdomain.Unresolved, got.Status)
}

func TestResolveKitPicksOldestActiveKitOfArea(t *testing.T) {
	f, svc, _ := newService(t)
	ctx := context.Background()

	area := f.Area("Bodega")
	first := f.Kit(area.ID, "Kit bodega", true)
	f.Kit(area.ID, "Kit bodega 2", true)
	f.Kit(f.Area("Ventas").ID, "Kit ventas", true)

	got, err := svc.ResolveKit(ctx, kitdomain.MembershipRef{AreaID: area.ID})
	require.NoError(t, err)
	require.True(t, got.IsResolved())
	assert.Equal(t, first.ID, got.Kit.ID)
	assert.Equal(t, "Kit bodega", got.Kit.Name)
	assert.True(t, got.Kit.Active)
}

func TestKitLines(t *testing.T) {
	f, svc, _ := newService(t)
	ctx := context.Background()

	area := f.Area("Bodega")
	kit := f.Kit(area.ID, "Kit bodega", true)
	boots := f.Article("Botas", "1000.00", false)
	shirt := f.Article("Camisa", "2500.00", true)
	f.KitLine(kit.ID, shirt.ID, 2)
	f.KitLine(kit.ID, boots.ID, 0)

	lines, err := svc.KitLines(ctx, kit.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	byName := map[string]kitdomain.KitLineView{}
	for _, l := range lines {
		byName[l.ArticleName] = l
	}
	assert.True(t, byName["Camisa"].RequiresSize)
	assert.EqualValues(t, 2, byName["Camisa"].EffectiveQuantity())
	assert.EqualValues(t, 1, byName["Botas"].EffectiveQuantity())

	_, err = svc.KitLines(ctx, f.Node.Generate())
	assert.ErrorIs(t, err, kitdomain.ErrKitNotFound)
}
