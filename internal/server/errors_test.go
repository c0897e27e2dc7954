package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/bwmarrin/snowflake"
	cycledomain "github.com/smallbiznis/dotation/internal/cycle/domain"
	orderdomain "github.com/smallbiznis/dotation/internal/order/domain"
	wagethresholddomain "github.com/smallbiznis/dotation/internal/wagethreshold/domain"
	"github.com/smallbiznis/dotation/pkg/db"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"conflicting cycle", cycledomain.ErrConflictingActiveCycle, http.StatusConflict, "CONFLICTING_ACTIVE_CYCLE"},
		{"wrapped window", fmt.Errorf("create: %w", cycledomain.ErrOutsideCreationWindow), http.StatusUnprocessableEntity, "OUTSIDE_CREATION_WINDOW"},
		{"no threshold", wagethresholddomain.ErrNoWageThreshold, http.StatusUnprocessableEntity, "NO_WAGE_THRESHOLD"},
		{"no eligible", cycledomain.ErrNoEligibleEmployees, http.StatusUnprocessableEntity, "NO_ELIGIBLE_EMPLOYEES"},
		{"not active", orderdomain.ErrCycleNotActive, http.StatusConflict, "CYCLE_NOT_ACTIVE"},
		{"no processed", orderdomain.ErrNoProcessedEmployees, http.StatusUnprocessableEntity, "NO_PROCESSED_EMPLOYEES"},
		{"kits without lines", orderdomain.ErrNoKitLines, http.StatusUnprocessableEntity, "NO_KIT_LINES"},
		{"already member", cycledomain.ErrAlreadyMember, http.StatusConflict, "ALREADY_MEMBER"},
		{"inactive", cycledomain.ErrEmployeeInactive, http.StatusUnprocessableEntity, "EMPLOYEE_INACTIVE"},
		{"removal", cycledomain.ErrInvalidStateForRemoval, http.StatusConflict, "INVALID_STATE_FOR_REMOVAL"},
		{"not found", cycledomain.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"validation", cycledomain.ErrInvalidName, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, payload := mapError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.kind, payload.Type)
			assert.False(t, payload.Retryable)
		})
	}
}

func TestMapErrorStorageUnavailable(t *testing.T) {
	err := fmt.Errorf("generate: %w", db.Storage("lock cycle", errors.New("connection refused")))

	status, payload := mapError(err)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "STORAGE_UNAVAILABLE", payload.Type)
	assert.True(t, payload.Retryable)
}

func TestMapErrorStructuredPayloads(t *testing.T) {
	missing := &orderdomain.MissingKitError{Employees: []orderdomain.EmployeeRef{
		{EmployeeID: snowflake.ID(10), FirstName: "Ana"},
	}}
	status, payload := mapError(missing)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "MISSING_KIT", payload.Type)
	assert.Equal(t, missing.Employees, payload.Employees)
	assert.Empty(t, payload.Pending)

	pending := &orderdomain.SizesPendingError{Pending: []orderdomain.PendingSize{
		{EmployeeID: snowflake.ID(10), ArticleID: snowflake.ID(20), ArticleName: "Camisa"},
	}}
	status, payload = mapError(pending)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "SIZES_PENDING", payload.Type)
	assert.Equal(t, pending.Pending, payload.Pending)
}

func TestClassifyErrorForLog(t *testing.T) {
	kind, code := classifyErrorForLog(&orderdomain.SizesPendingError{})
	assert.Equal(t, "SIZES_PENDING", kind)
	assert.Equal(t, "sizes_pending", code)
}
