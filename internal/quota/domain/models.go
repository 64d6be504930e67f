// Package domain holds the quota guard's contract and decision types.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/seometer/internal/plan"
)

// CheckResult is the outcome of evaluating a request against a plan limit.
// Remaining and Limit carry plan.Unlimited (-1) for uncapped categories; -1 never means zero.
type CheckResult struct {
	Category     plan.Category `json:"category"`
	Plan         plan.ID       `json:"plan"`
	Allowed      bool          `json:"allowed"`
	CurrentUsage int64         `json:"current_usage"`
	Limit        int64         `json:"limit"`
	Remaining    int64         `json:"remaining"`
	Message      string        `json:"message,omitempty"`
}

func (r CheckResult) Unlimited() bool {
	return plan.IsUnlimited(r.Limit)
}

// OverviewItem is one dashboard row of a user's usage.
type OverviewItem struct {
	Category       plan.Category `json:"category"`
	Label          string        `json:"label"`
	Monthly        bool          `json:"monthly"`
	CurrentUsage   int64         `json:"current_usage"`
	Limit          int64         `json:"limit"`
	FormattedLimit string        `json:"formatted_limit"`
	Percent        int           `json:"percent"`
	NearLimit      bool          `json:"near_limit"`
	LimitReached   bool          `json:"limit_reached"`
}

type Overview struct {
	UserID      string         `json:"user_id"`
	Plan        plan.ID        `json:"plan"`
	PlanName    string         `json:"plan_name"`
	PeriodStart string         `json:"period_start"`
	PeriodEnd   string         `json:"period_end"`
	Items       []OverviewItem `json:"items"`
}

// Guard evaluates and commits metered usage.
type Guard interface {
	// CheckLimit evaluates without writing.
	CheckLimit(ctx context.Context, userID string, category plan.Category, requested int64) (CheckResult, error)
	// CheckAndCommit evaluates and, when allowed, records the usage. Denied results are returned without error.
	CheckAndCommit(ctx context.Context, userID string, category plan.Category, requested int64) (CheckResult, error)
	Overview(ctx context.Context, userID string) (Overview, error)
}

// Counter derives non-monthly usage from live rows.
type Counter interface {
	CountProjects(ctx context.Context, userID string) (int64, error)
	CountTrackedKeywords(ctx context.Context, userID string) (int64, error)
}

var (
	ErrQuotaExceeded    = errors.New("quota_exceeded")
	ErrInvalidIncrement = errors.New("invalid_increment")
	ErrInvalidCategory  = errors.New("invalid_category")
	ErrInvalidUser      = errors.New("invalid_user")
)

// QuotaExceededError carries the denied decision. It matches ErrQuotaExceeded.
type QuotaExceededError struct {
	Result CheckResult
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: %d used of %d", e.Result.Category, e.Result.CurrentUsage, e.Result.Limit)
}

func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// Deny wraps a denied result as an error, or returns nil when allowed.
func Deny(result CheckResult) error {
	if result.Allowed {
		return nil
	}
	return &QuotaExceededError{Result: result}
}

// CommitLocker serializes check-and-commit for one (user, period, category).
type CommitLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}
