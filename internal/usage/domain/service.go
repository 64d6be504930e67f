package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/seometer/internal/plan"
)

// Ledger is the monthly usage store consulted and written by the quota guard.
type Ledger interface {
	GetOrCreateMonthlyRecord(ctx context.Context, userID string) (*UsageTracking, error)
	IncrementCategory(ctx context.Context, userID string, category plan.Category, amount int64) error
	ResetCurrentMonth(ctx context.Context, userID string) error
	CurrentPeriod() Period
}

var (
	ErrInvalidUser        = errors.New("invalid_user")
	ErrNotMonthlyCategory = errors.New("not_monthly_category")
	ErrInvalidAmount      = errors.New("invalid_amount")
)
