package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/seometer/internal/plan"
	"gorm.io/gorm"
)

type Repository interface {
	FindByPeriod(ctx context.Context, db *gorm.DB, userID string, periodStart time.Time) (*UsageTracking, error)
	Insert(ctx context.Context, db *gorm.DB, record *UsageTracking) error
	// Increment creates the period row or adds amount to the category column atomically.
	Increment(ctx context.Context, db *gorm.DB, record *UsageTracking, category plan.Category, amount int64) error
	DeleteByPeriod(ctx context.Context, db *gorm.DB, userID string, periodStart time.Time) (int64, error)
}
