package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected file %s", name)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestInitialMigrationCoversEveryTable(t *testing.T) {
	raw, err := fs.ReadFile(embeddedMigrations, migrationsDir+"/000001_init.up.sql")
	require.NoError(t, err)
	sql := string(raw)

	conn, err := gorm.Open(sqlite.Open("file:migration_tables?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	for _, model := range Models() {
		stmt := &gorm.Statement{DB: conn}
		require.NoError(t, stmt.Parse(model))
		assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS "+stmt.Schema.Table+" (")
	}
	assert.Contains(t, sql, "ux_cycles_single_active")
	assert.Contains(t, sql, "ux_cycle_memberships_cycle_employee")
}

func TestAutoMigrateCreatesPartialIndexes(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:migration_auto?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, AutoMigrate(conn))
	require.NoError(t, AutoMigrate(conn))

	var names []string
	require.NoError(t, conn.Raw(`SELECT name FROM sqlite_master WHERE type = 'index'`).Scan(&names).Error)
	assert.Contains(t, names, "ux_cycles_single_active")
	assert.Contains(t, names, "ux_kits_active_area")
}
