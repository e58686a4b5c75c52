// Package domain contains persistence models for users and telegram link codes.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// User is an identity record. TelegramUserID is set once via the linking flow
// and unique when present.
type User struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	TelegramUserID *int64       `gorm:"uniqueIndex" json:"telegram_user_id,omitempty"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (User) TableName() string { return "users" }

// LinkCode binds a user id to a telegram identity, consumed exactly once.
type LinkCode struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	UserID         snowflake.ID `gorm:"not null;index"`
	TelegramUserID int64        `gorm:"not null"`
	Code           string       `gorm:"not null;uniqueIndex"`
	ExpiresAt      time.Time    `gorm:"not null"`
	UsedAt         *time.Time   `gorm:""`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (LinkCode) TableName() string { return "telegram_link_codes" }
