package cache

import (
	"strings"
	"time"

	"github.com/smallbiznis/seometer/internal/plan"
)

// PlanCache memoizes the resolved plan per user between subscription changes.
type PlanCache interface {
	GetPlan(userID string) (plan.ID, bool)
	SetPlan(userID string, id plan.ID, ttl time.Duration)
	Invalidate(userID string)
}

type planCache struct {
	plans Cache[string, plan.ID]
}

func NewPlanCache() PlanCache {
	return &planCache{plans: NewTTLCache[string, plan.ID]()}
}

func (c *planCache) GetPlan(userID string) (plan.ID, bool) {
	return c.plans.Get(cacheKey(userID))
}

func (c *planCache) SetPlan(userID string, id plan.ID, ttl time.Duration) {
	if strings.TrimSpace(userID) == "" {
		return
	}
	c.plans.Set(cacheKey(userID), id, ttl)
}

func (c *planCache) Invalidate(userID string) {
	c.plans.Delete(cacheKey(userID))
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, trimmed)
	}
	return strings.Join(values, "|")
}
