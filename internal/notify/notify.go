// Package notify is the best-effort side channel for user-facing messages.
// Implementations swallow and log delivery failures; core state never depends
// on a notification landing.
package notify

import (
	"context"
	"time"
)

type Notifier interface {
	SubscriptionActivated(ctx context.Context, telegramUserID int64, periodEnd time.Time, inviteLink string)
	SubscriptionRenewed(ctx context.Context, telegramUserID int64, periodEnd time.Time)
	PaymentFailed(ctx context.Context, telegramUserID int64)
	SubscriptionCanceled(ctx context.Context, telegramUserID int64)
	SubscriptionExpired(ctx context.Context, telegramUserID int64)
}

// Nop discards every notification. Used in tests and when the bot is disabled.
type Nop struct{}

func (Nop) SubscriptionActivated(context.Context, int64, time.Time, string) {}
func (Nop) SubscriptionRenewed(context.Context, int64, time.Time)          {}
func (Nop) PaymentFailed(context.Context, int64)                           {}
func (Nop) SubscriptionCanceled(context.Context, int64)                    {}
func (Nop) SubscriptionExpired(context.Context, int64)                     {}
