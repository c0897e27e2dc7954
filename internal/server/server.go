package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/dotation/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/dotation/internal/catalog/domain"
	"github.com/smallbiznis/dotation/internal/config"
	cycledomain "github.com/smallbiznis/dotation/internal/cycle/domain"
	eligibilitydomain "github.com/smallbiznis/dotation/internal/eligibility/domain"
	kitdomain "github.com/smallbiznis/dotation/internal/kit/domain"
	"github.com/smallbiznis/dotation/internal/observability"
	obsmiddleware "github.com/smallbiznis/dotation/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/dotation/internal/observability/metrics"
	obstracing "github.com/smallbiznis/dotation/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/dotation/internal/order/domain"
	wagethresholddomain "github.com/smallbiznis/dotation/internal/wagethreshold/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterAPIRoutes() }),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(obsmetrics.GinMiddleware(httpMetrics))
	}
	r.Use(ActorContext())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type engineParams struct {
	fx.In

	ObsCfg      observability.Config
	HTTPMetrics *obsmetrics.Metrics `optional:"true"`
}

func registerGin(p engineParams) *gin.Engine {
	return NewEngine(p.ObsCfg, p.HTTPMetrics)
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", srv.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	wageSvc        wagethresholddomain.Service
	eligibilitySvc eligibilitydomain.Service
	kitSvc         kitdomain.Service
	cycleSvc       cycledomain.Service
	orderSvc       orderdomain.Service
	catalogSvc     catalogdomain.Service
	auditSvc       auditdomain.Service
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	WageSvc        wagethresholddomain.Service
	EligibilitySvc eligibilitydomain.Service
	KitSvc         kitdomain.Service
	CycleSvc       cycledomain.Service
	OrderSvc       orderdomain.Service
	CatalogSvc     catalogdomain.Service
	AuditSvc       auditdomain.Service `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		wageSvc:        p.WageSvc,
		eligibilitySvc: p.EligibilitySvc,
		kitSvc:         p.KitSvc,
		cycleSvc:       p.CycleSvc,
		orderSvc:       p.OrderSvc,
		catalogSvc:     p.CatalogSvc,
		auditSvc:       p.AuditSvc,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Wage thresholds --------
	api.GET("/wage-thresholds", s.ListWageThresholds)
	api.GET("/wage-thresholds/:year", s.GetWageThreshold)
	api.PUT("/wage-thresholds/:year", s.UpsertWageThreshold)
	api.DELETE("/wage-thresholds/:year", s.DeleteWageThreshold)
	api.GET("/wage-thresholds/:year/range", s.GetEligibleRange)

	// -------- Eligibility --------
	api.GET("/eligibility", s.ComputeEligible)
	api.GET("/eligibility/preview", s.PreviewEligibility)

	// -------- Cycles --------
	api.GET("/cycles", s.ListCycles)
	api.POST("/cycles", s.CreateCycle)
	api.GET("/cycles/active", s.GetActiveCycle)
	api.GET("/cycles/window", s.ValidateCycleWindow)
	api.GET("/cycles/stats", s.CycleStats)
	api.GET("/cycles/:id", s.GetCycle)
	api.DELETE("/cycles/:id", s.DeleteCycle)
	api.POST("/cycles/:id/close", s.CloseCycle)
	api.GET("/cycles/:id/members", s.ListCycleMembers)
	api.GET("/cycles/:id/members/summary", s.CycleMemberSummary)
	api.POST("/cycles/:id/members", s.AddManualMember)
	api.POST("/cycles/:id/backfill-kits", s.BackfillKits)
	api.GET("/cycles/:id/pending-sizes", s.ListPendingSizes)
	api.POST("/cycles/:id/orders", s.GenerateOrder)

	// -------- Memberships --------
	api.DELETE("/memberships/:id", s.RemoveMember)
	api.PATCH("/memberships/:id/state", s.UpdateMemberState)

	// -------- Employees --------
	api.GET("/employees/:id/history", s.EmployeeHistory)
	api.GET("/employees/:id/sizes", s.ListEmployeeSizes)
	api.PUT("/employees/:id/sizes", s.UpsertEmployeeSizes)

	// -------- Kits --------
	api.GET("/kits/:id/lines", s.ListKitLines)

	// -------- Orders --------
	api.GET("/orders", s.ListOrders)
	api.GET("/orders/stats", s.OrderStats)
	api.GET("/orders/:id", s.GetOrder)
	api.POST("/orders/:id/receptions", s.RegisterReception)

	// -------- Audit --------
	if s.auditSvc != nil {
		api.GET("/audit-logs", s.ListAuditLogs)
	}
}
