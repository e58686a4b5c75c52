package subscription

import (
	"github.com/smallbiznis/clubgate/internal/config"
	"github.com/smallbiznis/clubgate/internal/subscription/repository"
	"github.com/smallbiznis/clubgate/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config) service.Config {
		return service.Config{
			PriceMonthly20:      cfg.Stripe.PriceMonthly20,
			PriceMonthly30:      cfg.Stripe.PriceMonthly30,
			PriceYearly280:      cfg.Stripe.PriceYearly280,
			EarlyAccessDeadline: cfg.EarlyAccessDeadline,
		}
	}),
	fx.Provide(service.New),
)
