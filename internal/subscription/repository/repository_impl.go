package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/clubgate/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, user_id, plan, status, stripe_subscription_id, stripe_customer_id,
			current_period_end, cancel_at_period_end, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subscription.ID,
		subscription.UserID,
		subscription.Plan,
		subscription.Status,
		subscription.StripeSubscriptionID,
		subscription.StripeCustomerID,
		subscription.CurrentPeriodEnd,
		subscription.CancelAtPeriodEnd,
		subscription.Metadata,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	).Error
}

func (r *repo) FindLatestByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return r.findLatest(ctx, db, `user_id = ?`, userID)
}

func (r *repo) FindLatestBySubscriptionID(ctx context.Context, db *gorm.DB, stripeSubscriptionID string) (*subscriptiondomain.Subscription, error) {
	return r.findLatest(ctx, db, `stripe_subscription_id = ?`, stripeSubscriptionID)
}

func (r *repo) FindLatestByCustomerID(ctx context.Context, db *gorm.DB, stripeCustomerID string) (*subscriptiondomain.Subscription, error) {
	return r.findLatest(ctx, db, `stripe_customer_id = ?`, stripeCustomerID)
}

// findLatest tolerates multiple historical rows per key and selects the most
// recently created match (a user may re-subscribe after cancellation).
func (r *repo) findLatest(ctx context.Context, db *gorm.DB, where string, arg any) (*subscriptiondomain.Subscription, error) {
	var row subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, plan, status, stripe_subscription_id, stripe_customer_id,
		        current_period_end, cancel_at_period_end, metadata, created_at, updated_at
		 FROM subscriptions
		 WHERE `+where+`
		 ORDER BY id DESC
		 LIMIT 1`,
		arg,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func (r *repo) FindLatestCustomerID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (string, error) {
	var row struct {
		StripeCustomerID string
	}
	err := db.WithContext(ctx).Raw(
		`SELECT stripe_customer_id
		 FROM subscriptions
		 WHERE user_id = ? AND stripe_customer_id <> ''
		 ORDER BY id DESC
		 LIMIT 1`,
		userID,
	).Scan(&row).Error
	if err != nil {
		return "", err
	}
	return row.StripeCustomerID, nil
}

func (r *repo) ActivateLatestPending(ctx context.Context, db *gorm.DB, userID snowflake.ID, stripeSubscriptionID, stripeCustomerID string, periodEnd time.Time, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?,
		     stripe_subscription_id = ?,
		     stripe_customer_id = ?,
		     current_period_end = ?,
		     cancel_at_period_end = ?,
		     updated_at = ?
		 WHERE id = (
		     SELECT id FROM (
		         SELECT id FROM subscriptions
		         WHERE user_id = ? AND status = ?
		         ORDER BY id DESC
		         LIMIT 1
		     ) latest_pending
		 )`,
		subscriptiondomain.SubscriptionStatusActive,
		stripeSubscriptionID,
		stripeCustomerID,
		periodEnd,
		false,
		now,
		userID,
		subscriptiondomain.SubscriptionStatusPending,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) RefreshBySubscriptionID(ctx context.Context, db *gorm.DB, stripeSubscriptionID string, periodEnd time.Time, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?,
		     current_period_end = ?,
		     cancel_at_period_end = ?,
		     updated_at = ?
		 WHERE stripe_subscription_id = ?`,
		subscriptiondomain.SubscriptionStatusActive,
		periodEnd,
		false,
		now,
		stripeSubscriptionID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) UpdateByID(ctx context.Context, db *gorm.DB, id snowflake.ID, status subscriptiondomain.SubscriptionStatus, periodEnd time.Time, cancelAtPeriodEnd bool, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?,
		     current_period_end = ?,
		     cancel_at_period_end = ?,
		     updated_at = ?
		 WHERE id = ?`,
		status,
		periodEnd,
		cancelAtPeriodEnd,
		now,
		id,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) CancelByID(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, updated_at = ?
		 WHERE id = ?`,
		subscriptiondomain.SubscriptionStatusCanceled,
		now,
		id,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
