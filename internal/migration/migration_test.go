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

	ups, downs := 0, 0
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups++
		case strings.HasSuffix(name, ".down.sql"):
			downs++
		}
	}
	assert.Equal(t, ups, downs)
	assert.GreaterOrEqual(t, ups, 2)
}

func TestApplyAutoMigratesOnSQLite(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:migration_apply?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, Apply(conn))
	for _, table := range []string{"subscriptions", "usage_tracking", "projects", "tracked_keywords", "vendor_calls"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
}
