package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, grant *AccessGrant) error
	FindByUserAndChat(ctx context.Context, db *gorm.DB, userID snowflake.ID, chatID int64) (*AccessGrant, error)

	// Reinstate refreshes the existing grant row for the pair: new invite
	// link, refreshed last_verified_at, cleared removed_at. Returns false
	// when no row exists yet.
	Reinstate(ctx context.Context, db *gorm.DB, userID snowflake.ID, chatID int64, inviteLink string, now time.Time) (bool, error)
	// MarkJoined stamps joined_at/last_verified_at on the live grant.
	MarkJoined(ctx context.Context, db *gorm.DB, userID snowflake.ID, chatID int64, now time.Time) (bool, error)
	// MarkRemoved stamps removed_at on the live grant. Returns false when the
	// grant is absent or already removed.
	MarkRemoved(ctx context.Context, db *gorm.DB, userID snowflake.ID, chatID int64, now time.Time) (bool, error)
}
