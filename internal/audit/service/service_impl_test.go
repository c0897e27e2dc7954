package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/dotation/internal/actorcontext"
	auditdomain "github.com/smallbiznis/dotation/internal/audit/domain"
	"github.com/smallbiznis/dotation/internal/audit/repository"
	"github.com/smallbiznis/dotation/internal/clock"
	"github.com/smallbiznis/dotation/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupAuditService(t *testing.T) (auditdomain.Service, *gorm.DB) {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Clock: clock.NewFakeClock(time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)),
	})
	return svc, conn
}

func TestAuditLogResolvesActorAndRequest(t *testing.T) {
	svc, conn := setupAuditService(t)

	ctx := actorcontext.WithActor(context.Background(), actorcontext.ActorTypeUser, "hr-admin")
	ctx = actorcontext.WithRequestID(ctx, "req-42")
	target := "123"

	require.NoError(t, svc.AuditLog(ctx, "", "cycle.created", "cycle", &target, map[string]any{
		"eligible_count": 3,
		"":               "dropped",
	}))

	var stored auditdomain.AuditLog
	require.NoError(t, conn.First(&stored).Error)
	assert.Equal(t, "user", stored.ActorType)
	require.NotNil(t, stored.ActorID)
	assert.Equal(t, "hr-admin", *stored.ActorID)
	require.NotNil(t, stored.RequestID)
	assert.Equal(t, "req-42", *stored.RequestID)
	assert.NotContains(t, stored.Metadata, "")
}

func TestAuditLogDefaultsToSystemActor(t *testing.T) {
	svc, conn := setupAuditService(t)

	require.NoError(t, svc.AuditLog(context.Background(), "", "kit.backfilled", "", nil, nil))

	var stored auditdomain.AuditLog
	require.NoError(t, conn.First(&stored).Error)
	assert.Equal(t, auditdomain.ActorTypeSystem, stored.ActorType)
	assert.Nil(t, stored.ActorID)
	assert.Equal(t, "unknown", stored.TargetType)
}

func TestAuditLogRejectsBlankAction(t *testing.T) {
	svc, _ := setupAuditService(t)
	err := svc.AuditLog(context.Background(), "x", "  ", "cycle", nil, nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListPaginates(t *testing.T) {
	svc, _ := setupAuditService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.AuditLog(ctx, "hr-admin", "member.state_updated", "membership", nil, nil))
	}
	require.NoError(t, svc.AuditLog(ctx, "hr-admin", "order.generated", "order", nil, nil))

	resp, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{Page: 1, PageSize: 2},
		Action:     "member.state_updated",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), resp.Total)
	assert.Equal(t, 2, resp.TotalPages)
	assert.Len(t, resp.AuditLogs, 2)

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	_, err = svc.List(ctx, auditdomain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)
}
