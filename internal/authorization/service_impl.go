package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/seometer/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor, role, object, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, roleName, err := resolveActor(actor, role)
	if err != nil {
		return err
	}
	if roleName == "" {
		s.denied(ctx, subject, object, action)
		return ErrForbidden
	}
	if err := s.ensureGrouping(subject, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.denied(ctx, subject, object, action)
		return ErrForbidden
	}
	return nil
}

// resolveActor maps an actor to its subject and role. Users without a role get none.
func resolveActor(actor, role string) (string, string, error) {
	if actor == ActorSystem {
		return actor, "role:" + RoleSystem, nil
	}
	if strings.HasPrefix(actor, "user:") {
		userID := strings.TrimSpace(strings.TrimPrefix(actor, "user:"))
		if userID == "" {
			return "", "", ErrInvalidActor
		}
		role = strings.ToLower(strings.TrimSpace(role))
		// system is reserved for operator tooling.
		if role == "" || role == RoleSystem {
			return actor, "", nil
		}
		return actor, "role:" + role, nil
	}
	return "", "", ErrInvalidActor
}

// ensureGrouping keeps exactly one role link per subject, matching the token's role claim.
func (s *ServiceImpl) ensureGrouping(subject, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(params...); err != nil {
			return err
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) denied(ctx context.Context, subject, object, action string) {
	logger.WithContext(ctx, s.log).Warn("authorization denied",
		zap.String("subject", subject),
		zap.String("object", object),
		zap.String("action", action),
	)
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Support staff can inspect but not change.
		{"role:support", ObjectUsage, ActionUsageView},
		{"role:support", ObjectSubscription, ActionSubscriptionView},
		{"role:support", ObjectVendorCall, ActionVendorCallView},

		{"role:admin", ObjectUsage, ActionUsageView},
		{"role:admin", ObjectUsage, ActionUsageReset},
		{"role:admin", ObjectSubscription, ActionSubscriptionView},
		{"role:admin", ObjectSubscription, ActionSubscriptionUpdate},
		{"role:admin", ObjectVendorCall, ActionVendorCallView},

		{"role:system", ObjectUsage, ActionUsageView},
		{"role:system", ObjectUsage, ActionUsageReset},
		{"role:system", ObjectSubscription, ActionSubscriptionView},
		{"role:system", ObjectSubscription, ActionSubscriptionUpdate},
		{"role:system", ObjectVendorCall, ActionVendorCallView},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
