package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/seometer/internal/plan"
	usagedomain "github.com/smallbiznis/seometer/internal/usage/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() usagedomain.Repository {
	return &repo{}
}

func (r *repo) FindByPeriod(ctx context.Context, db *gorm.DB, userID string, periodStart time.Time) (*usagedomain.UsageTracking, error) {
	var record usagedomain.UsageTracking
	err := db.WithContext(ctx).
		Where("user_id = ? AND period_start = ?", userID, periodStart).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *usagedomain.UsageTracking) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *repo) Increment(ctx context.Context, db *gorm.DB, record *usagedomain.UsageTracking, category plan.Category, amount int64) error {
	column, ok := usagedomain.Column(category)
	if !ok {
		return usagedomain.ErrNotMonthlyCategory
	}
	record.Add(category, amount)

	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "period_start"}},
			DoUpdates: clause.Assignments(map[string]any{
				column:       gorm.Expr(fmt.Sprintf("%s.%s + ?", record.TableName(), column), amount),
				"updated_at": record.UpdatedAt,
			}),
		}).
		Create(record).Error
}

func (r *repo) DeleteByPeriod(ctx context.Context, db *gorm.DB, userID string, periodStart time.Time) (int64, error) {
	stmt := db.WithContext(ctx).
		Where("user_id = ? AND period_start = ?", userID, periodStart).
		Delete(&usagedomain.UsageTracking{})
	return stmt.RowsAffected, stmt.Error
}
