package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/dotation/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/dotation/internal/catalog/domain"
	cycledomain "github.com/smallbiznis/dotation/internal/cycle/domain"
	kitdomain "github.com/smallbiznis/dotation/internal/kit/domain"
	orderdomain "github.com/smallbiznis/dotation/internal/order/domain"
	rosterdomain "github.com/smallbiznis/dotation/internal/roster/domain"
	wagedomain "github.com/smallbiznis/dotation/internal/wagethreshold/domain"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// partialIndexes back the single-active-cycle and one-active-kit-per-area
// rules on dialects that gorm cannot express them for.
var partialIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_cycles_single_active ON cycles(state) WHERE state = 'active'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_kits_active_area ON kits(area_id) WHERE active`,
}

// Models lists every table the engine reads or writes.
func Models() []any {
	return []any{
		&wagedomain.WageThreshold{},
		&rosterdomain.Area{},
		&rosterdomain.Employee{},
		&catalogdomain.Article{},
		&catalogdomain.Size{},
		&catalogdomain.EmployeeArticleSize{},
		&kitdomain.Kit{},
		&kitdomain.KitLine{},
		&cycledomain.Cycle{},
		&cycledomain.Membership{},
		&orderdomain.PurchaseOrder{},
		&orderdomain.PurchaseOrderLine{},
		&auditdomain.AuditLog{},
	}
}

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// AutoMigrate creates the schema from the gorm models. It serves sqlite
// deployments and tests; postgres goes through RunMigrations.
func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if conn.Dialector.Name() == "mysql" {
		return nil
	}
	for _, stmt := range partialIndexes {
		if err := conn.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create partial index: %w", err)
		}
	}
	return nil
}
