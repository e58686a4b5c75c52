package telegram

import (
	"context"
	"strings"

	tgbot "github.com/go-telegram/bot"
	accessdomain "github.com/smallbiznis/clubgate/internal/access/domain"
	"go.uber.org/zap"
)

// GroupClient implements membership management against a Telegram group.
type GroupClient struct {
	bot *tgbot.Bot
	log *zap.Logger
}

func NewGroupClient(bot *tgbot.Bot, log *zap.Logger) *GroupClient {
	return &GroupClient{bot: bot, log: log.Named("telegram.group")}
}

// CreateInviteLink mints a single-use link so a forwarded invite admits
// nobody beyond its owner.
func (g *GroupClient) CreateInviteLink(ctx context.Context, chatID int64) (string, error) {
	link, err := g.bot.CreateChatInviteLink(ctx, &tgbot.CreateChatInviteLinkParams{
		ChatID:      chatID,
		MemberLimit: 1,
	})
	if err != nil {
		return "", err
	}
	return link.InviteLink, nil
}

// Kick bans then immediately unbans, which removes the member while leaving
// them free to rejoin through a future invite.
func (g *GroupClient) Kick(ctx context.Context, chatID int64, telegramUserID int64) error {
	if _, err := g.bot.BanChatMember(ctx, &tgbot.BanChatMemberParams{
		ChatID: chatID,
		UserID: telegramUserID,
	}); err != nil {
		if isAbsentErr(err) {
			return accessdomain.ErrAlreadyAbsent
		}
		return err
	}

	if _, err := g.bot.UnbanChatMember(ctx, &tgbot.UnbanChatMemberParams{
		ChatID:       chatID,
		UserID:       telegramUserID,
		OnlyIfBanned: true,
	}); err != nil {
		// The removal already happened; a failed unban only blocks rejoin
		// until an admin clears it.
		g.log.Warn("unban after kick failed",
			zap.Int64("chat_id", chatID),
			zap.Int64("telegram_user_id", telegramUserID),
			zap.Error(err),
		)
	}
	return nil
}

// isAbsentErr matches the Bot API error strings for members that are not in
// the chat. The API reports these as plain description text.
func isAbsentErr(err error) bool {
	msg := strings.ToUpper(err.Error())
	return strings.Contains(msg, "USER_NOT_PARTICIPANT") ||
		strings.Contains(msg, "PARTICIPANT_ID_INVALID") ||
		strings.Contains(msg, "USER NOT FOUND")
}
