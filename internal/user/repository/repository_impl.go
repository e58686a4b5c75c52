package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	userdomain "github.com/smallbiznis/clubgate/internal/user/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() userdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, user *userdomain.User) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO users (id, telegram_user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?)`,
		user.ID,
		user.TelegramUserID,
		user.CreatedAt,
		user.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*userdomain.User, error) {
	var user userdomain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, telegram_user_id, created_at, updated_at
		 FROM users
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) FindByTelegramID(ctx context.Context, db *gorm.DB, telegramUserID int64) (*userdomain.User, error) {
	var user userdomain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, telegram_user_id, created_at, updated_at
		 FROM users
		 WHERE telegram_user_id = ?
		 LIMIT 1`,
		telegramUserID,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) SetTelegramID(ctx context.Context, db *gorm.DB, id snowflake.ID, telegramUserID int64, now time.Time) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE users
		 SET telegram_user_id = ?, updated_at = ?
		 WHERE id = ? AND telegram_user_id IS NULL`,
		telegramUserID,
		now,
		id,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("user missing or already linked")
	}
	return nil
}

func (r *repo) InsertLinkCode(ctx context.Context, db *gorm.DB, code *userdomain.LinkCode) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO telegram_link_codes (id, user_id, telegram_user_id, code, expires_at, used_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		code.ID,
		code.UserID,
		code.TelegramUserID,
		code.Code,
		code.ExpiresAt,
		code.UsedAt,
		code.CreatedAt,
	).Error
}

func (r *repo) FindLinkCode(ctx context.Context, db *gorm.DB, userID snowflake.ID, code string) (*userdomain.LinkCode, error) {
	var row userdomain.LinkCode
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, telegram_user_id, code, expires_at, used_at, created_at
		 FROM telegram_link_codes
		 WHERE user_id = ? AND code = ?
		 LIMIT 1`,
		userID,
		code,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

// ConsumeLinkCode marks the code used. The guard on used_at makes the write
// idempotent under concurrent confirmations: only one caller sees true.
func (r *repo) ConsumeLinkCode(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE telegram_link_codes
		 SET used_at = ?
		 WHERE id = ? AND used_at IS NULL`,
		now,
		id,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
