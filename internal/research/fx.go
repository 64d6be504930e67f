package research

import (
	"github.com/smallbiznis/seometer/internal/dataforseo"
	researchdomain "github.com/smallbiznis/seometer/internal/research/domain"
	"github.com/smallbiznis/seometer/internal/research/service"
	"go.uber.org/fx"
)

var Module = fx.Module("research.service",
	fx.Provide(func(c *dataforseo.Caller) researchdomain.Caller { return c }),
	fx.Provide(service.NewService),
)
