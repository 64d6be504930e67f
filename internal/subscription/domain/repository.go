package domain

import (
	"context"

	"gorm.io/gorm"
)

// Repository stores at most one subscription row per user.
type Repository interface {
	// FindByUserID returns (nil, nil) for users without a row, who are on the free plan.
	FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*Subscription, error)
	// Upsert replaces plan and status when the user already has a row.
	Upsert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
}
