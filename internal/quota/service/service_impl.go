package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/seometer/internal/config"
	"github.com/smallbiznis/seometer/internal/observability/logger"
	"github.com/smallbiznis/seometer/internal/observability/metrics"
	"github.com/smallbiznis/seometer/internal/plan"
	quotadomain "github.com/smallbiznis/seometer/internal/quota/domain"
	subscriptiondomain "github.com/smallbiznis/seometer/internal/subscription/domain"
	usagedomain "github.com/smallbiznis/seometer/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const lockRetryInterval = 25 * time.Millisecond

type Service struct {
	log *zap.Logger

	ledger        usagedomain.Ledger
	subscriptions subscriptiondomain.Service
	counter       quotadomain.Counter
	settings      *config.QuotaConfigHolder
	locker        quotadomain.CommitLocker

	metrics       *metrics.Metrics
	ledgerMetrics *metrics.LedgerMetrics
}

type ServiceParam struct {
	fx.In

	Log           *zap.Logger
	Ledger        usagedomain.Ledger
	Subscriptions subscriptiondomain.Service
	Counter       quotadomain.Counter
	Settings      *config.QuotaConfigHolder `optional:"true"`
	Locker        quotadomain.CommitLocker  `optional:"true"`
	Metrics       *metrics.Metrics          `optional:"true"`
	LedgerMetrics *metrics.LedgerMetrics    `optional:"true"`
}

func NewService(p ServiceParam) quotadomain.Guard {
	return &Service{
		log: p.Log.Named("quota.service"),

		ledger:        p.Ledger,
		subscriptions: p.Subscriptions,
		counter:       p.Counter,
		settings:      p.Settings,
		locker:        p.Locker,

		metrics:       p.Metrics,
		ledgerMetrics: p.LedgerMetrics,
	}
}

func (s *Service) CheckLimit(ctx context.Context, userID string, category plan.Category, requested int64) (quotadomain.CheckResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return quotadomain.CheckResult{}, quotadomain.ErrInvalidUser
	}
	if !category.Valid() {
		return quotadomain.CheckResult{}, quotadomain.ErrInvalidCategory
	}
	if requested < 0 {
		return quotadomain.CheckResult{}, quotadomain.ErrInvalidIncrement
	}

	resolved, err := s.subscriptions.ResolvePlan(ctx, userID)
	if err != nil {
		return quotadomain.CheckResult{}, err
	}
	current, err := s.currentUsage(ctx, userID, category)
	if err != nil {
		return quotadomain.CheckResult{}, err
	}

	result := Evaluate(resolved, category, current, requested)
	s.metrics.RecordQuotaDecision(ctx, string(category), string(resolved.ID), result.Allowed)
	if !result.Allowed {
		logger.WithContext(ctx, s.log).Info("quota denied",
			zap.String("user_id", userID),
			zap.String("category", string(category)),
			zap.String("plan", string(resolved.ID)),
			zap.Int64("current", current),
			zap.Int64("requested", requested),
			zap.Int64("limit", result.Limit),
		)
	}
	return result, nil
}

// CheckAndCommit evaluates then records usage for monthly categories. The returned
// snapshot reflects the committed increment.
func (s *Service) CheckAndCommit(ctx context.Context, userID string, category plan.Category, requested int64) (quotadomain.CheckResult, error) {
	if requested < 0 {
		return quotadomain.CheckResult{}, quotadomain.ErrInvalidIncrement
	}

	release, err := s.serialize(ctx, userID, category)
	if err != nil {
		return quotadomain.CheckResult{}, err
	}
	defer release()

	result, err := s.CheckLimit(ctx, userID, category, requested)
	if err != nil || !result.Allowed {
		return result, err
	}

	if category.IsMonthly() && requested > 0 {
		if err := s.ledger.IncrementCategory(ctx, strings.TrimSpace(userID), category, requested); err != nil {
			return quotadomain.CheckResult{}, err
		}
	}
	return ApplyIncrement(result, requested), nil
}

func (s *Service) Overview(ctx context.Context, userID string) (quotadomain.Overview, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return quotadomain.Overview{}, quotadomain.ErrInvalidUser
	}

	resolved, err := s.subscriptions.ResolvePlan(ctx, userID)
	if err != nil {
		return quotadomain.Overview{}, err
	}
	record, err := s.ledger.GetOrCreateMonthlyRecord(ctx, userID)
	if err != nil {
		return quotadomain.Overview{}, err
	}
	projects, err := s.counter.CountProjects(ctx, userID)
	if err != nil {
		return quotadomain.Overview{}, err
	}
	keywords, err := s.counter.CountTrackedKeywords(ctx, userID)
	if err != nil {
		return quotadomain.Overview{}, err
	}

	threshold := s.settings.Get().WarningPercent
	period := s.ledger.CurrentPeriod()
	out := quotadomain.Overview{
		UserID:      userID,
		Plan:        resolved.ID,
		PlanName:    resolved.Name,
		PeriodStart: period.Start.Format(time.RFC3339),
		PeriodEnd:   period.End.Format(time.RFC3339Nano),
	}
	for _, category := range plan.Categories() {
		var current int64
		switch category {
		case plan.CategoryProjects:
			current = projects
		case plan.CategoryTrackedKeywords:
			current = keywords
		default:
			current = record.Counter(category)
		}
		limit := resolved.Limit(category)
		out.Items = append(out.Items, quotadomain.OverviewItem{
			Category:       category,
			Label:          category.Label(),
			Monthly:        category.IsMonthly(),
			CurrentUsage:   current,
			Limit:          limit,
			FormattedLimit: plan.FormatLimit(limit),
			Percent:        plan.UsagePercent(current, limit),
			NearLimit:      plan.IsNearLimitAt(current, limit, threshold),
			LimitReached:   plan.IsLimitReached(current, limit),
		})
	}
	return out, nil
}

func (s *Service) currentUsage(ctx context.Context, userID string, category plan.Category) (int64, error) {
	switch category {
	case plan.CategoryProjects:
		return s.counter.CountProjects(ctx, userID)
	case plan.CategoryTrackedKeywords:
		return s.counter.CountTrackedKeywords(ctx, userID)
	}
	record, err := s.ledger.GetOrCreateMonthlyRecord(ctx, userID)
	if err != nil {
		return 0, err
	}
	return record.Counter(category), nil
}

// serialize holds the commit lock when enabled. The returned release func is always non-nil.
func (s *Service) serialize(ctx context.Context, userID string, category plan.Category) (func(), error) {
	noop := func() {}
	cfg := s.settings.Get()
	if !cfg.SerializeCommits || s.locker == nil {
		return noop, nil
	}

	key := fmt.Sprintf("commit:%s:%s:%s", strings.TrimSpace(userID), s.ledger.CurrentPeriod().Key(), category)
	started := time.Now()
	deadline := started.Add(cfg.LockWait())
	for {
		token, ok, err := s.locker.TryLock(ctx, key, cfg.LockTTL())
		if err != nil {
			s.ledgerMetrics.IncCommitError(err)
			return noop, err
		}
		if ok {
			s.ledgerMetrics.ObserveLockWait(time.Since(started))
			return func() {
				if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
					s.log.Warn("release commit lock failed", zap.String("key", key), zap.Error(err))
				}
			}, nil
		}
		if !time.Now().Before(deadline) {
			err := fmt.Errorf("quota commit %s: %w", key, metrics.ErrLockContended)
			s.ledgerMetrics.IncCommitError(err)
			return noop, err
		}

		select {
		case <-ctx.Done():
			return noop, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

// Evaluate applies a plan limit to the current usage. Remaining is plan.Unlimited
// for uncapped categories and never negative otherwise.
func Evaluate(p plan.Plan, category plan.Category, current, requested int64) quotadomain.CheckResult {
	limit := p.Limit(category)
	allowed := plan.IsUnlimited(limit) || current+requested <= limit
	result := quotadomain.CheckResult{
		Category:     category,
		Plan:         p.ID,
		Allowed:      allowed,
		CurrentUsage: current,
		Limit:        limit,
		Remaining:    plan.Remaining(current, limit),
	}
	if !allowed {
		result.Message = plan.LimitMessage(category)
	}
	return result
}

// ApplyIncrement returns the snapshot as it stands after requested units are committed.
func ApplyIncrement(result quotadomain.CheckResult, requested int64) quotadomain.CheckResult {
	result.CurrentUsage += requested
	if result.Unlimited() {
		return result
	}
	result.Remaining -= requested
	if result.Remaining < 0 {
		result.Remaining = 0
	}
	return result
}
