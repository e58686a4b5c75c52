// Package telegram holds everything that touches the Telegram Bot API: the
// long-polling bot, the group membership client, the notifier, and the chat
// command handlers.
package telegram

import (
	"context"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/smallbiznis/clubgate/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewBot(cfg config.Config) (*tgbot.Bot, error) {
	opts := []tgbot.Option{
		tgbot.WithDefaultHandler(func(ctx context.Context, b *tgbot.Bot, update *models.Update) {}),
	}
	return tgbot.New(cfg.Telegram.BotToken, opts...)
}

type runParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Log       *zap.Logger
	Bot       *tgbot.Bot
	Handlers  *Handlers
}

// registerBot wires command handlers and runs long polling for the process
// lifetime.
func registerBot(p runParams) {
	log := p.Log.Named("telegram.bot")
	runCtx, cancel := context.WithCancel(context.Background())

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := p.Handlers.Register(ctx, p.Bot); err != nil {
				cancel()
				return err
			}
			go func() {
				log.Info("starting long polling")
				p.Bot.Start(runCtx)
				log.Info("long polling stopped")
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return nil
		},
	})
}
