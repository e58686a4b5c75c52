// Package domain contains persistence models for subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// SubscriptionStatus represents lifecycle states for a subscription row.
type SubscriptionStatus string

const (
	SubscriptionStatusPending  SubscriptionStatus = "PENDING"
	SubscriptionStatusActive   SubscriptionStatus = "ACTIVE"
	SubscriptionStatusExpired  SubscriptionStatus = "EXPIRED"
	SubscriptionStatusCanceled SubscriptionStatus = "CANCELED"
)

// Plan identifies the price tier attached to a subscription row.
type Plan string

const (
	PlanMonthly20 Plan = "MONTHLY_20"
	PlanMonthly30 Plan = "MONTHLY_30"
	PlanYearly280 Plan = "YEARLY_280"
)

// Subscription captures one billing attempt/lifecycle. Historical rows persist;
// "the current subscription" is always the most recent matching row, never a
// stored pointer.
type Subscription struct {
	ID                   snowflake.ID       `gorm:"primaryKey" json:"id"`
	UserID               snowflake.ID       `gorm:"not null;index" json:"user_id"`
	Plan                 Plan               `gorm:"type:text;not null" json:"plan"`
	Status               SubscriptionStatus `gorm:"type:text;not null" json:"status"`
	StripeSubscriptionID *string            `gorm:"index" json:"stripe_subscription_id,omitempty"`
	StripeCustomerID     string             `gorm:"not null;index" json:"stripe_customer_id"`
	CurrentPeriodEnd     *time.Time         `gorm:"" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool               `gorm:"not null;default:false" json:"cancel_at_period_end"`
	Metadata             datatypes.JSONMap  `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt            time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt            time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }
