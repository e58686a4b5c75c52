package telegram

import (
	tgbot "github.com/go-telegram/bot"
	accessdomain "github.com/smallbiznis/clubgate/internal/access/domain"
	"github.com/smallbiznis/clubgate/internal/notify"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ClientModule provides the outbound surfaces (invites, kicks, messages)
// without starting long polling. The sweep binary uses it standalone.
var ClientModule = fx.Module("telegram.client",
	fx.Provide(NewBot),
	fx.Provide(func(bot *tgbot.Bot, log *zap.Logger) accessdomain.GroupClient {
		return NewGroupClient(bot, log)
	}),
	fx.Provide(func(bot *tgbot.Bot, log *zap.Logger) notify.Notifier {
		return NewNotifier(bot, log)
	}),
)

// Module additionally runs the conversational bot.
var Module = fx.Options(
	ClientModule,
	fx.Module("telegram.bot",
		fx.Provide(NewHandlers),
		fx.Invoke(registerBot),
	),
)
