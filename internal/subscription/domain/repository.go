package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository persists subscription rows. Mutations that implement state
// transitions are guarded UPDATEs returning whether a row matched, so
// repeated deliveries of the same event converge instead of compounding.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindLatestByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Subscription, error)
	FindLatestBySubscriptionID(ctx context.Context, db *gorm.DB, stripeSubscriptionID string) (*Subscription, error)
	FindLatestByCustomerID(ctx context.Context, db *gorm.DB, stripeCustomerID string) (*Subscription, error)
	// FindLatestCustomerID returns the most recently used stripe customer id
	// for the user, empty when none exists.
	FindLatestCustomerID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (string, error)

	// ActivateLatestPending moves the most recent PENDING row for the user to
	// ACTIVE, attaching provider ids. Returns false when no PENDING row exists.
	ActivateLatestPending(ctx context.Context, db *gorm.DB, userID snowflake.ID, stripeSubscriptionID, stripeCustomerID string, periodEnd time.Time, now time.Time) (bool, error)
	// RefreshBySubscriptionID sets the row ACTIVE with a new period end,
	// clearing the cancel flag. Covers first settlement and renewals alike.
	RefreshBySubscriptionID(ctx context.Context, db *gorm.DB, stripeSubscriptionID string, periodEnd time.Time, now time.Time) (bool, error)
	// UpdateByID applies a provider-reported status/period/cancel-flag change.
	UpdateByID(ctx context.Context, db *gorm.DB, id snowflake.ID, status SubscriptionStatus, periodEnd time.Time, cancelAtPeriodEnd bool, now time.Time) (bool, error)
	// CancelByID forces the row CANCELED.
	CancelByID(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
}
