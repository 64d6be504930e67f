package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/seometer/internal/clock"
	"github.com/smallbiznis/seometer/internal/config"
	"github.com/smallbiznis/seometer/internal/plan"
	usagedomain "github.com/smallbiznis/seometer/internal/usage/domain"
	"github.com/smallbiznis/seometer/internal/usage/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupLedger(t *testing.T, now time.Time) (usagedomain.Ledger, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&usagedomain.UsageTracking{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(now)

	ledger := NewService(ServiceParam{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clk,
		Config: config.Config{Timezone: "UTC"},
		Repo:   repository.Provide(),
	})
	return ledger, db, clk
}

func countRows(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&usagedomain.UsageTracking{}).Count(&count).Error)
	return count
}

func TestGetOrCreateMonthlyRecordIsIdempotent(t *testing.T) {
	ledger, db, _ := setupLedger(t, time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	first, err := ledger.GetOrCreateMonthlyRecord(ctx, "user-1")
	require.NoError(t, err)
	second, err := ledger.GetOrCreateMonthlyRecord(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(0), second.Counter(plan.CategoryKeywordSearches))
	assert.True(t, first.PeriodStart.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, int64(1), countRows(t, db))
}

func TestIncrementCategoryAccumulates(t *testing.T) {
	ledger, db, _ := setupLedger(t, time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	// First increment creates the row.
	require.NoError(t, ledger.IncrementCategory(ctx, "user-1", plan.CategoryAuditPages, 10))
	require.NoError(t, ledger.IncrementCategory(ctx, "user-1", plan.CategoryAuditPages, 5))
	require.NoError(t, ledger.IncrementCategory(ctx, "user-1", plan.CategoryExports, 1))

	record, err := ledger.GetOrCreateMonthlyRecord(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(15), record.Counter(plan.CategoryAuditPages))
	assert.Equal(t, int64(1), record.Counter(plan.CategoryExports))
	assert.Equal(t, int64(0), record.Counter(plan.CategoryKeywordSearches))
	assert.Equal(t, int64(1), countRows(t, db))
}

func TestIncrementCategoryRejectsInvalidInput(t *testing.T) {
	ledger, _, _ := setupLedger(t, time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	assert.ErrorIs(t, ledger.IncrementCategory(ctx, "user-1", plan.CategoryProjects, 1), usagedomain.ErrNotMonthlyCategory)
	assert.ErrorIs(t, ledger.IncrementCategory(ctx, "user-1", plan.CategoryExports, 0), usagedomain.ErrInvalidAmount)
	assert.ErrorIs(t, ledger.IncrementCategory(ctx, "user-1", plan.CategoryExports, -3), usagedomain.ErrInvalidAmount)
	assert.ErrorIs(t, ledger.IncrementCategory(ctx, " ", plan.CategoryExports, 1), usagedomain.ErrInvalidUser)
}

func TestNewMonthStartsFromZero(t *testing.T) {
	ledger, db, clk := setupLedger(t, time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC))
	ctx := context.Background()

	require.NoError(t, ledger.IncrementCategory(ctx, "user-1", plan.CategoryKeywordSearches, 7))
	clk.Advance(2 * time.Hour)

	record, err := ledger.GetOrCreateMonthlyRecord(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, time.April, record.PeriodStart.Month())
	assert.Equal(t, int64(0), record.Counter(plan.CategoryKeywordSearches))
	assert.Equal(t, int64(2), countRows(t, db))
}

func TestResetCurrentMonth(t *testing.T) {
	ledger, db, _ := setupLedger(t, time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	require.NoError(t, ledger.IncrementCategory(ctx, "user-1", plan.CategoryBacklinkAnalyses, 4))
	require.NoError(t, ledger.IncrementCategory(ctx, "user-2", plan.CategoryBacklinkAnalyses, 2))
	require.NoError(t, ledger.ResetCurrentMonth(ctx, "user-1"))

	assert.Equal(t, int64(1), countRows(t, db))
	record, err := ledger.GetOrCreateMonthlyRecord(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), record.Counter(plan.CategoryBacklinkAnalyses))

	// Resetting an empty month is a no-op.
	require.NoError(t, ledger.ResetCurrentMonth(ctx, "nobody"))
}
