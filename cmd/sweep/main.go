package main

import (
	"context"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clubgate/internal/access"
	"github.com/smallbiznis/clubgate/internal/clock"
	"github.com/smallbiznis/clubgate/internal/config"
	"github.com/smallbiznis/clubgate/internal/logger"
	"github.com/smallbiznis/clubgate/internal/payment/stripe"
	"github.com/smallbiznis/clubgate/internal/subscription"
	"github.com/smallbiznis/clubgate/internal/sweep"
	"github.com/smallbiznis/clubgate/internal/telegram"
	"github.com/smallbiznis/clubgate/internal/user"
	"github.com/smallbiznis/clubgate/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Runs one reconciliation pass and exits. Meant to be scheduled externally
// (cron, Kubernetes CronJob).
func main() {
	var failed bool

	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		user.Module,
		subscription.Module,
		access.Module,
		stripe.Module,
		telegram.ClientModule,
		sweep.Module,

		fx.Invoke(func(lc fx.Lifecycle, sweeper *sweep.Sweeper, log *zap.Logger, shutdowner fx.Shutdowner) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					go func() {
						if _, err := sweeper.RunOnce(context.Background()); err != nil {
							log.Error("sweep failed", zap.Error(err))
							failed = true
						}
						_ = shutdowner.Shutdown()
					}()
					return nil
				},
			})
		}),
	)
	app.Run()

	if failed {
		os.Exit(1)
	}
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
