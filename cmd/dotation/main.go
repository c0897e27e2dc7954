package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dotation/internal/audit"
	"github.com/smallbiznis/dotation/internal/cache"
	"github.com/smallbiznis/dotation/internal/catalog"
	"github.com/smallbiznis/dotation/internal/clock"
	"github.com/smallbiznis/dotation/internal/config"
	"github.com/smallbiznis/dotation/internal/cycle"
	"github.com/smallbiznis/dotation/internal/eligibility"
	"github.com/smallbiznis/dotation/internal/kit"
	"github.com/smallbiznis/dotation/internal/migration"
	"github.com/smallbiznis/dotation/internal/observability"
	"github.com/smallbiznis/dotation/internal/order"
	"github.com/smallbiznis/dotation/internal/roster"
	"github.com/smallbiznis/dotation/internal/scheduler"
	"github.com/smallbiznis/dotation/internal/server"
	"github.com/smallbiznis/dotation/internal/wagethreshold"
	"github.com/smallbiznis/dotation/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		cache.Module,

		// Functional Domains
		audit.Module,
		roster.Module,
		wagethreshold.Module,
		eligibility.Module,
		kit.Module,
		catalog.Module,
		cycle.Module,
		order.Module,

		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
