package telegram

import (
	"context"
	"fmt"
	"time"

	tgbot "github.com/go-telegram/bot"
	"go.uber.org/zap"
)

// Notifier delivers lifecycle messages to the user's private chat with the
// bot. Delivery is best effort: failures are logged and dropped.
type Notifier struct {
	bot *tgbot.Bot
	log *zap.Logger
}

func NewNotifier(bot *tgbot.Bot, log *zap.Logger) *Notifier {
	return &Notifier{bot: bot, log: log.Named("telegram.notifier")}
}

func (n *Notifier) SubscriptionActivated(ctx context.Context, telegramUserID int64, periodEnd time.Time, inviteLink string) {
	text := fmt.Sprintf(
		"Payment received! Your membership is active until %s.\n\nJoin the group here (this link only works once):\n%s",
		periodEnd.Format("2 January 2006"),
		inviteLink,
	)
	n.send(ctx, telegramUserID, text)
}

func (n *Notifier) SubscriptionRenewed(ctx context.Context, telegramUserID int64, periodEnd time.Time) {
	n.send(ctx, telegramUserID, fmt.Sprintf(
		"Your membership has been renewed. You're covered until %s.",
		periodEnd.Format("2 January 2006"),
	))
}

func (n *Notifier) PaymentFailed(ctx context.Context, telegramUserID int64) {
	n.send(ctx, telegramUserID,
		"We couldn't process your latest payment. Please update your payment method, we'll retry automatically.")
}

func (n *Notifier) SubscriptionCanceled(ctx context.Context, telegramUserID int64) {
	n.send(ctx, telegramUserID,
		"Your membership has been canceled. You can resubscribe any time with /start.")
}

func (n *Notifier) SubscriptionExpired(ctx context.Context, telegramUserID int64) {
	n.send(ctx, telegramUserID,
		"Your membership has expired and you've been removed from the group. Resubscribe any time with /start.")
}

func (n *Notifier) send(ctx context.Context, telegramUserID int64, text string) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := n.bot.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: telegramUserID,
		Text:   text,
	}); err != nil {
		n.log.Warn("notification delivery failed",
			zap.Int64("telegram_user_id", telegramUserID),
			zap.Error(err),
		)
	}
}
