package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// AccessGrant tracks a user's membership in a gated group chat. A row with a
// nil RemovedAt represents live (or pending-join) access.
type AccessGrant struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID         snowflake.ID `json:"user_id" gorm:"index;uniqueIndex:uq_telegram_access_user_chat"`
	ChatID         int64        `json:"chat_id" gorm:"uniqueIndex:uq_telegram_access_user_chat"`
	InviteLink     *string      `json:"invite_link"`
	JoinedAt       *time.Time   `json:"joined_at"`
	LastVerifiedAt *time.Time   `json:"last_verified_at"`
	RemovedAt      *time.Time   `json:"removed_at"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

func (AccessGrant) TableName() string {
	return "telegram_access"
}
