package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, user *User) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	FindByTelegramID(ctx context.Context, db *gorm.DB, telegramUserID int64) (*User, error)
	SetTelegramID(ctx context.Context, db *gorm.DB, id snowflake.ID, telegramUserID int64, now time.Time) error

	InsertLinkCode(ctx context.Context, db *gorm.DB, code *LinkCode) error
	FindLinkCode(ctx context.Context, db *gorm.DB, userID snowflake.ID, code string) (*LinkCode, error)
	ConsumeLinkCode(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
}
