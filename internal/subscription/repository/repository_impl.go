package repository

import (
	"context"

	subscriptiondomain "github.com/smallbiznis/seometer/internal/subscription/domain"
	"github.com/smallbiznis/seometer/pkg/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*subscriptiondomain.Subscription, error) {
	return repository.New[subscriptiondomain.Subscription](db).Get(ctx, &subscriptiondomain.Subscription{UserID: userID})
}

// Upsert inserts the subscription or replaces plan and status of the user's existing row.
func (r *repo) Upsert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"plan_id", "status", "updated_at"}),
		}).
		Create(subscription).Error
}
