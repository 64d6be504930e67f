package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seometer/internal/cache"
	"github.com/smallbiznis/seometer/internal/clock"
	"github.com/smallbiznis/seometer/internal/config"
	"github.com/smallbiznis/seometer/internal/plan"
	subscriptiondomain "github.com/smallbiznis/seometer/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID    *snowflake.Node
	clock    clock.Clock
	repo     subscriptiondomain.Repository
	plans    cache.PlanCache
	settings *config.QuotaConfigHolder
}

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     subscriptiondomain.Repository
	Plans    cache.PlanCache           `optional:"true"`
	Settings *config.QuotaConfigHolder `optional:"true"`
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	plans := p.Plans
	if plans == nil {
		plans = cache.NewPlanCache()
	}
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		plans:    plans,
		settings: p.Settings,
	}
}

func (s *Service) GetByUserID(ctx context.Context, userID string) (subscriptiondomain.Subscription, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidUser
	}

	item, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if item == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	return *item, nil
}

func (s *Service) Upsert(ctx context.Context, req subscriptiondomain.UpsertRequest) (subscriptiondomain.Subscription, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidUser
	}
	selected, ok := plan.Lookup(req.PlanID)
	if !ok {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidPlan
	}
	status := subscriptiondomain.StatusActive
	if raw := strings.TrimSpace(req.Status); raw != "" {
		status = subscriptiondomain.Status(strings.ToUpper(raw))
	}
	if !status.Valid() {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidStatus
	}

	now := s.clock.Now()
	record := &subscriptiondomain.Subscription{
		ID:        s.genID.Generate(),
		UserID:    userID,
		PlanID:    string(selected.ID),
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Upsert(ctx, s.db, record); err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	s.plans.Invalidate(userID)

	s.log.Info("subscription updated",
		zap.String("user_id", userID),
		zap.String("plan", record.PlanID),
		zap.String("status", string(status)),
	)

	return s.GetByUserID(ctx, userID)
}

func (s *Service) ResolvePlan(ctx context.Context, userID string) (plan.Plan, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return plan.Plan{}, subscriptiondomain.ErrInvalidUser
	}
	if id, ok := s.plans.GetPlan(userID); ok {
		return plan.Resolve(string(id)), nil
	}

	item, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return plan.Plan{}, err
	}

	resolved := plan.Resolve(string(plan.Free))
	if item != nil && item.Status == subscriptiondomain.StatusActive {
		resolved = plan.Resolve(item.PlanID)
	}
	s.plans.SetPlan(userID, resolved.ID, s.settings.Get().PlanCacheTTL())
	return resolved, nil
}
