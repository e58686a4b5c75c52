package domain

import (
	"context"
	"errors"
)

// GroupClient is the chat-platform surface membership management needs.
type GroupClient interface {
	// CreateInviteLink mints a fresh single-use invite link for the chat.
	CreateInviteLink(ctx context.Context, chatID int64) (string, error)
	// Kick removes the member and immediately lifts the ban so they can be
	// re-invited later. Returns ErrAlreadyAbsent when the member is not in
	// the chat.
	Kick(ctx context.Context, chatID int64, telegramUserID int64) error
}

// Service manages group membership as a function of entitlement. Grant and
// Revoke are the only paths that touch the chat platform for membership.
type Service interface {
	// Grant mints an invite link and records (or reinstates) the access row.
	// The platform call happens first: a failed link mint leaves no row behind.
	Grant(ctx context.Context, userID int64) (string, error)
	// Revoke kicks the member and stamps removed_at. A member already gone
	// from the chat counts as success; any other platform failure leaves the
	// row untouched so the next sweep retries.
	Revoke(ctx context.Context, userID int64, telegramUserID int64) error
	// VerifyJoin is called when someone enters the chat: members without live
	// entitlement are kicked, entitled members get joined_at stamped.
	// Returns true when the member was allowed to stay.
	VerifyJoin(ctx context.Context, telegramUserID int64) (bool, error)
	// CurrentInvite returns the invite link on the user's live grant, empty
	// when there is none.
	CurrentInvite(ctx context.Context, userID int64) (string, error)
}

var (
	ErrAlreadyAbsent = errors.New("member_already_absent")
	ErrInvalidUserID = errors.New("invalid_user_id")
	ErrGroupFailure  = errors.New("group_platform_failure")
	ErrGrantNotFound = errors.New("access_grant_not_found")
	ErrNoEntitlement = errors.New("no_active_subscription")
)
