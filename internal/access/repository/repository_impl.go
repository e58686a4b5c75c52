package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	accessdomain "github.com/smallbiznis/clubgate/internal/access/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() accessdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, grant *accessdomain.AccessGrant) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO telegram_access (
			id, user_id, chat_id, invite_link, joined_at, last_verified_at,
			removed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		grant.ID,
		grant.UserID,
		grant.ChatID,
		grant.InviteLink,
		grant.JoinedAt,
		grant.LastVerifiedAt,
		grant.RemovedAt,
		grant.CreatedAt,
		grant.UpdatedAt,
	).Error
}

func (r *repo) FindByUserAndChat(ctx context.Context, db *gorm.DB, userID snowflake.ID, chatID int64) (*accessdomain.AccessGrant, error) {
	var row accessdomain.AccessGrant
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, chat_id, invite_link, joined_at, last_verified_at,
		        removed_at, created_at, updated_at
		 FROM telegram_access
		 WHERE user_id = ? AND chat_id = ?`,
		userID,
		chatID,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func (r *repo) Reinstate(ctx context.Context, db *gorm.DB, userID snowflake.ID, chatID int64, inviteLink string, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE telegram_access
		 SET invite_link = ?, last_verified_at = ?, removed_at = NULL, updated_at = ?
		 WHERE user_id = ? AND chat_id = ?`,
		inviteLink,
		now,
		now,
		userID,
		chatID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkJoined(ctx context.Context, db *gorm.DB, userID snowflake.ID, chatID int64, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE telegram_access
		 SET joined_at = ?, last_verified_at = ?, updated_at = ?
		 WHERE user_id = ? AND chat_id = ? AND removed_at IS NULL`,
		now,
		now,
		now,
		userID,
		chatID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkRemoved(ctx context.Context, db *gorm.DB, userID snowflake.ID, chatID int64, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE telegram_access
		 SET removed_at = ?, updated_at = ?
		 WHERE user_id = ? AND chat_id = ? AND removed_at IS NULL`,
		now,
		now,
		userID,
		chatID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
