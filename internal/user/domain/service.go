package domain

import (
	"context"
	"errors"
)

type RegisterRequest struct {
	TelegramUserID *int64
}

type LinkInstruction struct {
	AlreadyLinked  bool
	TelegramUserID *int64
	Message        string
}

type Service interface {
	// Register creates a user, or returns the existing one when a telegram
	// identity is supplied and already known.
	Register(ctx context.Context, req RegisterRequest) (User, error)
	GetByID(ctx context.Context, id int64) (User, error)
	// GetOrCreateByTelegramID backs every bot interaction: first contact
	// creates the identity row.
	GetOrCreateByTelegramID(ctx context.Context, telegramUserID int64) (User, error)

	// RequestLinkCode tells an API caller how to bind their telegram identity.
	RequestLinkCode(ctx context.Context, userID int64) (LinkInstruction, error)
	// IssueLinkCode creates a short-lived one-time code binding userID to
	// telegramUserID. Called from the bot's /link command.
	IssueLinkCode(ctx context.Context, userID int64, telegramUserID int64) (LinkCode, error)
	// ConfirmLinkCode consumes the code exactly once and links the user.
	ConfirmLinkCode(ctx context.Context, userID int64, code string) (User, error)
}

var (
	ErrNotFound      = errors.New("user_not_found")
	ErrInvalidID     = errors.New("invalid_user_id")
	ErrAlreadyLinked = errors.New("telegram_already_linked")
	ErrCodeNotFound  = errors.New("link_code_not_found")
	ErrCodeConsumed  = errors.New("link_code_consumed")
	ErrCodeExpired   = errors.New("link_code_expired")
)
