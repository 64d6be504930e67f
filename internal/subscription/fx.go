package subscription

import (
	"github.com/smallbiznis/seometer/internal/cache"
	"github.com/smallbiznis/seometer/internal/subscription/repository"
	"github.com/smallbiznis/seometer/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(cache.NewPlanCache),
	fx.Provide(service.NewService),
)
