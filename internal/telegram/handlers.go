package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	accessdomain "github.com/smallbiznis/clubgate/internal/access/domain"
	subscriptiondomain "github.com/smallbiznis/clubgate/internal/subscription/domain"
	userdomain "github.com/smallbiznis/clubgate/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	callbackSubscribeMonthly = "subscribe_monthly"
	callbackSubscribeYearly  = "subscribe_yearly"
	callbackCheckStatus      = "check_status"
	callbackJoinGroup        = "join_group"

	deepLinkPaymentSuccess = "payment_success"
	deepLinkPaymentCancel  = "payment_cancel"
)

type HandlersParams struct {
	fx.In

	Log           *zap.Logger
	Users         userdomain.Service
	Subscriptions subscriptiondomain.Service
	Access        accessdomain.Service
}

// Handlers implements the bot conversation surface: subscription purchase,
// status checks, account linking, and join verification.
type Handlers struct {
	log           *zap.Logger
	users         userdomain.Service
	subscriptions subscriptiondomain.Service
	access        accessdomain.Service
	botUsername   string
}

func NewHandlers(p HandlersParams) *Handlers {
	return &Handlers{
		log:           p.Log.Named("telegram.handlers"),
		users:         p.Users,
		subscriptions: p.Subscriptions,
		access:        p.Access,
	}
}

func (h *Handlers) Register(ctx context.Context, b *tgbot.Bot) error {
	me, err := b.GetMe(ctx)
	if err != nil {
		return err
	}
	h.botUsername = me.Username

	b.RegisterHandler(tgbot.HandlerTypeMessageText, "/start", tgbot.MatchTypePrefix, h.handleStart)
	b.RegisterHandler(tgbot.HandlerTypeMessageText, "/link", tgbot.MatchTypePrefix, h.handleLink)
	b.RegisterHandler(tgbot.HandlerTypeMessageText, "/status", tgbot.MatchTypeExact, h.handleStatus)
	b.RegisterHandler(tgbot.HandlerTypeCallbackQueryData, callbackSubscribeMonthly, tgbot.MatchTypeExact, h.handleSubscribe)
	b.RegisterHandler(tgbot.HandlerTypeCallbackQueryData, callbackSubscribeYearly, tgbot.MatchTypeExact, h.handleSubscribe)
	b.RegisterHandler(tgbot.HandlerTypeCallbackQueryData, callbackCheckStatus, tgbot.MatchTypeExact, h.handleStatusCallback)
	b.RegisterHandler(tgbot.HandlerTypeCallbackQueryData, callbackJoinGroup, tgbot.MatchTypeExact, h.handleJoinGroup)
	b.RegisterHandlerMatchFunc(func(update *models.Update) bool {
		return update.Message != nil && len(update.Message.NewChatMembers) > 0
	}, h.handleNewChatMembers)

	return nil
}

func (h *Handlers) handleStart(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	from := update.Message.From
	if from == nil {
		return
	}

	payload := strings.TrimSpace(strings.TrimPrefix(update.Message.Text, "/start"))
	switch payload {
	case deepLinkPaymentSuccess:
		h.handlePaymentReturn(ctx, b, from.ID)
	case deepLinkPaymentCancel:
		h.send(ctx, b, from.ID, "Checkout canceled. You can start again any time with /start.")
	default:
		h.sendWelcome(ctx, b, from.ID)
	}
}

func (h *Handlers) sendWelcome(ctx context.Context, b *tgbot.Bot, telegramUserID int64) {
	if _, err := h.users.GetOrCreateByTelegramID(ctx, telegramUserID); err != nil {
		h.log.Error("get or create user", zap.Int64("telegram_user_id", telegramUserID), zap.Error(err))
		h.send(ctx, b, telegramUserID, "Something went wrong, please try again.")
		return
	}

	keyboard := models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "Subscribe monthly", CallbackData: callbackSubscribeMonthly},
				{Text: "Subscribe yearly", CallbackData: callbackSubscribeYearly},
			},
			{
				{Text: "My status", CallbackData: callbackCheckStatus},
				{Text: "Join the group", CallbackData: callbackJoinGroup},
			},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:      telegramUserID,
		Text:        "Welcome! Subscribe to get access to the private group.",
		ReplyMarkup: keyboard,
	}); err != nil {
		h.log.Warn("send welcome failed", zap.Int64("telegram_user_id", telegramUserID), zap.Error(err))
	}
}

// handlePaymentReturn serves the t.me deep link the user lands on after
// checkout. The webhook usually wins the race and has already granted access;
// when it hasn't, we ask the user to retry shortly.
func (h *Handlers) handlePaymentReturn(ctx context.Context, b *tgbot.Bot, telegramUserID int64) {
	user, err := h.users.GetOrCreateByTelegramID(ctx, telegramUserID)
	if err != nil {
		h.log.Error("get or create user", zap.Int64("telegram_user_id", telegramUserID), zap.Error(err))
		h.send(ctx, b, telegramUserID, "Something went wrong, please try again.")
		return
	}

	entitled, err := h.subscriptions.HasActiveSubscription(ctx, int64(user.ID))
	if err != nil {
		h.log.Error("entitlement check", zap.String("user_id", user.ID.String()), zap.Error(err))
		h.send(ctx, b, telegramUserID, "Something went wrong, please try again.")
		return
	}
	if !entitled {
		h.send(ctx, b, telegramUserID,
			"Thanks! Your payment is still being confirmed. Send /start again in a minute to get your invite.")
		return
	}

	inviteLink, err := h.access.Grant(ctx, int64(user.ID))
	if err != nil {
		h.log.Error("grant access", zap.String("user_id", user.ID.String()), zap.Error(err))
		h.send(ctx, b, telegramUserID, "Payment confirmed, but creating your invite failed. Please try /start again.")
		return
	}
	h.send(ctx, b, telegramUserID,
		"Payment confirmed! Join the group here (this link only works once):\n"+inviteLink)
}

// handleLink issues a one-time code the user pastes into the web app to bind
// this chat to their account. The argument is the account id the web app
// showed them.
func (h *Handlers) handleLink(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	from := update.Message.From
	if from == nil {
		return
	}

	arg := strings.TrimSpace(strings.TrimPrefix(update.Message.Text, "/link"))
	accountID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || accountID <= 0 {
		h.send(ctx, b, from.ID, "Usage: /link <account id> (shown in the web app).")
		return
	}

	code, err := h.users.IssueLinkCode(ctx, accountID, from.ID)
	if err != nil {
		switch err {
		case userdomain.ErrNotFound, userdomain.ErrInvalidID:
			h.send(ctx, b, from.ID, "That account id doesn't exist. Check the web app and try again.")
		case userdomain.ErrAlreadyLinked:
			h.send(ctx, b, from.ID, "That account is already linked to a Telegram user.")
		default:
			h.log.Error("issue link code", zap.Int64("telegram_user_id", from.ID), zap.Error(err))
			h.send(ctx, b, from.ID, "Couldn't create a link code, please try again.")
		}
		return
	}

	h.send(ctx, b, from.ID, fmt.Sprintf(
		"Your link code is:\n\n%s\n\nEnter it in the web app. It can be used once and expires at %s.",
		code.Code,
		code.ExpiresAt.Format("15:04 MST"),
	))
}

func (h *Handlers) handleStatus(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	from := update.Message.From
	if from == nil {
		return
	}
	h.sendStatus(ctx, b, from.ID)
}

func (h *Handlers) handleStatusCallback(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	cb := update.CallbackQuery
	h.answerCallback(ctx, b, cb.ID)
	h.sendStatus(ctx, b, cb.From.ID)
}

func (h *Handlers) sendStatus(ctx context.Context, b *tgbot.Bot, telegramUserID int64) {
	user, err := h.users.GetOrCreateByTelegramID(ctx, telegramUserID)
	if err != nil {
		h.log.Error("get or create user", zap.Int64("telegram_user_id", telegramUserID), zap.Error(err))
		h.send(ctx, b, telegramUserID, "Something went wrong, please try again.")
		return
	}

	status, err := h.subscriptions.Status(ctx, int64(user.ID))
	if err != nil {
		h.log.Error("status lookup", zap.String("user_id", user.ID.String()), zap.Error(err))
		h.send(ctx, b, telegramUserID, "Something went wrong, please try again.")
		return
	}
	if !status.Exists {
		h.send(ctx, b, telegramUserID, "You don't have a subscription yet. Send /start to subscribe.")
		return
	}

	text := fmt.Sprintf("Plan: %s\nStatus: %s", status.Plan, status.Status)
	if status.CurrentPeriodEnd != nil {
		text += fmt.Sprintf("\nPaid until: %s", status.CurrentPeriodEnd.Format("2 January 2006"))
	}
	if status.CancelAtPeriodEnd {
		text += "\nYour subscription will not renew."
	}
	h.send(ctx, b, telegramUserID, text)
}

func (h *Handlers) handleSubscribe(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	cb := update.CallbackQuery
	h.answerCallback(ctx, b, cb.ID)

	telegramUserID := cb.From.ID
	plan := "MONTHLY"
	if cb.Data == callbackSubscribeYearly {
		plan = "YEARLY"
	}

	user, err := h.users.GetOrCreateByTelegramID(ctx, telegramUserID)
	if err != nil {
		h.log.Error("get or create user", zap.Int64("telegram_user_id", telegramUserID), zap.Error(err))
		h.send(ctx, b, telegramUserID, "Something went wrong, please try again.")
		return
	}

	entitled, err := h.subscriptions.HasActiveSubscription(ctx, int64(user.ID))
	if err != nil {
		h.log.Error("entitlement check", zap.String("user_id", user.ID.String()), zap.Error(err))
		h.send(ctx, b, telegramUserID, "Something went wrong, please try again.")
		return
	}
	if entitled {
		h.send(ctx, b, telegramUserID, "You already have an active subscription. Use \"Join the group\" to get your invite.")
		return
	}

	session, err := h.subscriptions.InitiateCheckout(ctx, subscriptiondomain.InitiateCheckoutRequest{
		UserID:         int64(user.ID),
		Plan:           plan,
		TelegramUserID: &telegramUserID,
		SuccessURL:     h.deepLink(deepLinkPaymentSuccess),
		CancelURL:      h.deepLink(deepLinkPaymentCancel),
	})
	if err != nil {
		h.log.Error("initiate checkout",
			zap.String("user_id", user.ID.String()),
			zap.String("plan", plan),
			zap.Error(err),
		)
		h.send(ctx, b, telegramUserID, "Couldn't start checkout, please try again.")
		return
	}

	h.send(ctx, b, telegramUserID, fmt.Sprintf(
		"Complete your %s subscription here:\n%s",
		strings.ToLower(string(session.Plan)),
		session.URL,
	))
}

func (h *Handlers) handleJoinGroup(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	cb := update.CallbackQuery
	h.answerCallback(ctx, b, cb.ID)

	telegramUserID := cb.From.ID
	user, err := h.users.GetOrCreateByTelegramID(ctx, telegramUserID)
	if err != nil {
		h.log.Error("get or create user", zap.Int64("telegram_user_id", telegramUserID), zap.Error(err))
		h.send(ctx, b, telegramUserID, "Something went wrong, please try again.")
		return
	}

	entitled, err := h.subscriptions.HasActiveSubscription(ctx, int64(user.ID))
	if err != nil {
		h.log.Error("entitlement check", zap.String("user_id", user.ID.String()), zap.Error(err))
		h.send(ctx, b, telegramUserID, "Something went wrong, please try again.")
		return
	}
	if !entitled {
		h.send(ctx, b, telegramUserID, "You need an active subscription to join. Send /start to subscribe.")
		return
	}

	inviteLink, err := h.access.Grant(ctx, int64(user.ID))
	if err != nil {
		h.log.Error("grant access", zap.String("user_id", user.ID.String()), zap.Error(err))
		h.send(ctx, b, telegramUserID, "Couldn't create your invite, please try again.")
		return
	}
	h.send(ctx, b, telegramUserID, "Join the group here (this link only works once):\n"+inviteLink)
}

// handleNewChatMembers kicks anyone who enters the group without a live
// subscription, closing the forwarded-invite hole.
func (h *Handlers) handleNewChatMembers(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	for _, member := range update.Message.NewChatMembers {
		if member.IsBot {
			continue
		}
		allowed, err := h.access.VerifyJoin(ctx, member.ID)
		if err != nil {
			h.log.Error("verify join",
				zap.Int64("telegram_user_id", member.ID),
				zap.Error(err),
			)
			continue
		}
		if !allowed {
			h.log.Info("removed unentitled joiner", zap.Int64("telegram_user_id", member.ID))
		}
	}
}

func (h *Handlers) deepLink(payload string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", h.botUsername, payload)
}

func (h *Handlers) answerCallback(ctx context.Context, b *tgbot.Bot, callbackID string) {
	if _, err := b.AnswerCallbackQuery(ctx, &tgbot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
	}); err != nil {
		h.log.Warn("answer callback failed", zap.Error(err))
	}
}

func (h *Handlers) send(ctx context.Context, b *tgbot.Bot, telegramUserID int64, text string) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: telegramUserID,
		Text:   text,
	}); err != nil {
		h.log.Warn("send message failed", zap.Int64("telegram_user_id", telegramUserID), zap.Error(err))
	}
}
