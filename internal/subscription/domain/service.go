package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/seometer/internal/plan"
)

type UpsertRequest struct {
	UserID string `json:"user_id"`
	PlanID string `json:"plan_id"`
	Status string `json:"status"`
}

type Service interface {
	GetByUserID(ctx context.Context, userID string) (Subscription, error)
	Upsert(ctx context.Context, req UpsertRequest) (Subscription, error)
	// ResolvePlan never fails on a missing subscription; it returns the free plan.
	ResolvePlan(ctx context.Context, userID string) (plan.Plan, error)
}

var (
	ErrInvalidUser          = errors.New("invalid_user")
	ErrInvalidPlan          = errors.New("invalid_plan")
	ErrInvalidStatus        = errors.New("invalid_status")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
)
