package stripe

import (
	"github.com/smallbiznis/clubgate/internal/clock"
	"github.com/smallbiznis/clubgate/internal/config"
	"github.com/smallbiznis/clubgate/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.stripe",
	fx.Provide(func(cfg config.Config, log *zap.Logger) domain.PaymentGateway {
		return NewClient(cfg.Stripe.SecretKey, log)
	}),
	fx.Provide(func(cfg config.Config, clk clock.Clock) *Verifier {
		return NewVerifier(cfg.Stripe.WebhookSecret, clk)
	}),
)
