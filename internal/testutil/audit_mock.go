package testutil

import (
	"context"

	auditdomain "github.com/smallbiznis/dotation/internal/audit/domain"
	"github.com/stretchr/testify/mock"
)

// AuditMock records audit calls without touching storage.
type AuditMock struct {
	mock.Mock
}

// NewAuditMock accepts any audit call; tests assert on specific actions.
func NewAuditMock() *AuditMock {
	m := &AuditMock{}
	m.On("AuditLog", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil).
		Maybe()
	return m
}

func (m *AuditMock) AuditLog(ctx context.Context, actorID, action, targetType string, targetID *string, metadata map[string]any) error {
	args := m.Called(ctx, actorID, action, targetType, targetID, metadata)
	return args.Error(0)
}

func (m *AuditMock) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(auditdomain.ListAuditLogResponse), args.Error(1)
}

// Actions returns the audited action names in call order.
func (m *AuditMock) Actions() []string {
	var actions []string
	for _, call := range m.Calls {
		if call.Method != "AuditLog" {
			continue
		}
		actions = append(actions, call.Arguments.String(2))
	}
	return actions
}
