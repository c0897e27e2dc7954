package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	catalogservice "github.com/smallbiznis/dotation/internal/catalog/service"
	"github.com/smallbiznis/dotation/internal/clock"
	"github.com/smallbiznis/dotation/internal/config"
	cycleservice "github.com/smallbiznis/dotation/internal/cycle/service"
	eligibilityservice "github.com/smallbiznis/dotation/internal/eligibility/service"
	kitservice "github.com/smallbiznis/dotation/internal/kit/service"
	"github.com/smallbiznis/dotation/internal/observability"
	orderservice "github.com/smallbiznis/dotation/internal/order/service"
	rosterrepo "github.com/smallbiznis/dotation/internal/roster/repository"
	"github.com/smallbiznis/dotation/internal/testutil"
	wageservice "github.com/smallbiznis/dotation/internal/wagethreshold/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC)

type testServer struct {
	f      *testutil.Fixture
	engine *gin.Engine
	audit  *testutil.AuditMock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := testutil.NewFixture(t)
	clk := clock.NewFakeClock(testNow)
	log := zap.NewNop()
	repo := rosterrepo.Provide()
	audit := testutil.NewAuditMock()

	wageSvc := wageservice.NewService(wageservice.ServiceParam{DB: f.DB, Log: log, AuditSvc: audit, Clock: clk})
	eligibilitySvc := eligibilityservice.NewService(eligibilityservice.ServiceParam{
		DB:         f.DB,
		Log:        log,
		RosterRepo: repo,
		WageSvc:    wageSvc,
		Clock:      clk,
	})
	kitSvc := kitservice.NewService(kitservice.ServiceParam{DB: f.DB, Log: log, AuditSvc: audit, Clock: clk})
	catalogSvc := catalogservice.NewService(catalogservice.ServiceParam{
		DB:         f.DB,
		Log:        log,
		GenID:      f.Node,
		RosterRepo: repo,
		Clock:      clk,
	})
	cycleSvc := cycleservice.NewService(cycleservice.ServiceParam{
		DB:             f.DB,
		Log:            log,
		GenID:          f.Node,
		WageSvc:        wageSvc,
		EligibilitySvc: eligibilitySvc,
		KitSvc:         kitSvc,
		RosterRepo:     repo,
		AuditSvc:       audit,
		Clock:          clk,
	})
	orderSvc := orderservice.NewService(orderservice.ServiceParam{
		DB:         f.DB,
		Log:        log,
		GenID:      f.Node,
		KitSvc:     kitSvc,
		CatalogSvc: catalogSvc,
		AuditSvc:   audit,
		Clock:      clk,
	})

	engine := NewEngine(observability.Config{ServiceName: "dotation", Environment: "test"}, nil)
	srv := NewServer(ServerParams{
		Gin:            engine,
		Cfg:            config.Config{Environment: "test"},
		WageSvc:        wageSvc,
		EligibilitySvc: eligibilitySvc,
		KitSvc:         kitSvc,
		CycleSvc:       cycleSvc,
		OrderSvc:       orderSvc,
		CatalogSvc:     catalogSvc,
	})
	srv.RegisterAPIRoutes()

	return &testServer{f: f, engine: engine, audit: audit}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderActor, "hr-admin")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func errorType(t *testing.T, body map[string]any) string {
	t.Helper()
	payload, ok := body["error"].(map[string]any)
	require.True(t, ok, "expected error payload, got %v", body)
	return payload["type"].(string)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestWageThresholdRoutes(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodPut, "/api/wage-thresholds/2025", map[string]any{
		"monthly_value": "1000.456",
		"note":          " decreto ",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := body["data"].(map[string]any)
	assert.Equal(t, "1000.46", data["monthly_value"])

	rec, _ = s.do(t, http.MethodGet, "/api/wage-thresholds/2025", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body = s.do(t, http.MethodGet, "/api/wage-thresholds/2031", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorType(t, body))

	rec, body = s.do(t, http.MethodGet, "/api/wage-thresholds/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorType(t, body))

	rec, body = s.do(t, http.MethodPut, "/api/wage-thresholds/2025", map[string]any{"monthly_value": "-5"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorType(t, body))

	var actors []string
	for _, call := range s.audit.Calls {
		actors = append(actors, call.Arguments.String(1))
	}
	assert.Contains(t, actors, "hr-admin")
}

func TestCycleAndOrderRoutes(t *testing.T) {
	s := newTestServer(t)
	s.f.WageThreshold(2025, "1000.00")
	area := s.f.Area("Operations")
	kit := s.f.Kit(area.ID, "Operations kit", true)
	shirt := s.f.Article("Camisa", "25000.00", true)
	s.f.KitLine(kit.ID, shirt.ID, 2)
	s.f.Employee(testutil.EmployeeSpec{
		FirstName: "Ana",
		HireDate:  time.Date(2023, time.March, 1, 0, 0, 0, 0, time.UTC),
		Salary:    "1500.00",
		AreaID:    area.ID,
	})

	rec, body := s.do(t, http.MethodGet, "/api/cycles/window?delivery_date=2025-07-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["data"].(map[string]any)["can_create"])

	rec, body = s.do(t, http.MethodPost, "/api/cycles", map[string]any{
		"name":          "Dotacion julio",
		"delivery_date": "2025-07-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := body["data"].(map[string]any)
	cycleID := created["cycle"].(map[string]any)["id"].(string)
	assert.EqualValues(t, 1, created["inserted"])

	rec, body = s.do(t, http.MethodPost, "/api/cycles", map[string]any{
		"name":          "Otra",
		"delivery_date": "2025-07-01",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONFLICTING_ACTIVE_CYCLE", errorType(t, body))

	rec, body = s.do(t, http.MethodGet, "/api/cycles/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, cycleID, body["data"].(map[string]any)["id"])

	rec, body = s.do(t, http.MethodPost, "/api/cycles/"+cycleID+"/orders", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "SIZES_PENDING", errorType(t, body))
	pending := body["error"].(map[string]any)["pending"].([]any)
	require.Len(t, pending, 1)
	assert.Equal(t, "Camisa", pending[0].(map[string]any)["article_name"])
	assert.EqualValues(t, 0, s.f.Count("purchase_orders"))

	rec, body = s.do(t, http.MethodGet, "/api/cycles/"+cycleID+"/pending-sizes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["total"])

	rec, body = s.do(t, http.MethodPost, "/api/cycles/not-an-id/close", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorType(t, body))

	rec, body = s.do(t, http.MethodPost, "/api/cycles/"+cycleID+"/close", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "closed", body["data"].(map[string]any)["state"])

	rec, body = s.do(t, http.MethodPost, "/api/cycles/"+cycleID+"/orders", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CYCLE_NOT_ACTIVE", errorType(t, body))
}

func TestCreateCycleRejectsBadDate(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodPost, "/api/cycles", map[string]any{
		"name":          "Dotacion",
		"delivery_date": "julio",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorType(t, body))

	rec, body = s.do(t, http.MethodPost, "/api/cycles", map[string]any{
		"name":          "Dotacion",
		"delivery_date": "2025-09-01",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "OUTSIDE_CREATION_WINDOW", errorType(t, body))
}
