package dataforseo

import (
	"github.com/smallbiznis/seometer/internal/ratelimit"
	"go.uber.org/fx"
)

var Module = fx.Module("dataforseo",
	fx.Provide(NewClient),
	fx.Provide(NewRecorder),
	fx.Provide(provideLimiter),
	fx.Provide(NewCaller),
)

func provideLimiter(l *ratelimit.VendorLimiter) OutboundLimiter {
	if l == nil {
		return nil
	}
	return l
}
