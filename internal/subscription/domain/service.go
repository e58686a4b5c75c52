package domain

import (
	"context"
	"errors"
	"time"
)

// PaymentGateway is the payment-provider surface the core needs. External ids
// round-trip exactly as received.
type PaymentGateway interface {
	CreateCustomer(ctx context.Context, metadata map[string]string) (string, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (string, error)
	RetrieveSubscription(ctx context.Context, stripeSubscriptionID string) (ProviderSubscription, error)
	// CustomerExists reports whether the customer id is still live (not deleted).
	CustomerExists(ctx context.Context, stripeCustomerID string) (bool, error)
}

type CheckoutSessionRequest struct {
	CustomerID          string
	PriceID             string
	SuccessURL          string
	CancelURL           string
	Metadata            map[string]string
	AllowPromotionCodes bool
}

type ProviderSubscription struct {
	ID                string
	Status            string
	CurrentPeriodEnd  time.Time
	CancelAtPeriodEnd bool
}

type InitiateCheckoutRequest struct {
	UserID         int64
	Plan           string // MONTHLY or YEARLY
	TelegramUserID *int64
	SuccessURL     string
	CancelURL      string
}

type CheckoutSession struct {
	URL  string
	Plan Plan
}

type CheckoutCompleted struct {
	UserID               int64
	StripeSubscriptionID string
	StripeCustomerID     string
	PeriodEnd            time.Time
}

type SubscriptionUpdated struct {
	StripeCustomerID  string
	PeriodEnd         time.Time
	CancelAtPeriodEnd bool
	ProviderStatus    string
}

type StatusSummary struct {
	Exists            bool
	Plan              Plan
	Status            SubscriptionStatus
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool
}

// Service is the subscription state machine. Event handlers run under
// at-least-once delivery and must be safe to repeat with identical payloads.
type Service interface {
	InitiateCheckout(ctx context.Context, req InitiateCheckoutRequest) (CheckoutSession, error)

	HandleCheckoutCompleted(ctx context.Context, ev CheckoutCompleted) (bool, error)
	HandleInvoicePaid(ctx context.Context, stripeSubscriptionID string, periodEnd time.Time) (bool, error)
	HandleInvoiceFailed(ctx context.Context, stripeSubscriptionID string) error
	HandleSubscriptionUpdated(ctx context.Context, ev SubscriptionUpdated) (bool, error)
	HandleSubscriptionDeleted(ctx context.Context, stripeCustomerID string) (bool, error)

	// HasActiveSubscription is the single authorization read path: true iff
	// the most recent row for the user is ACTIVE with a future period end.
	HasActiveSubscription(ctx context.Context, userID int64) (bool, error)
	Status(ctx context.Context, userID int64) (StatusSummary, error)
}

var (
	ErrInvalidPlan     = errors.New("invalid_plan")
	ErrInvalidPriceID  = errors.New("invalid_price_id")
	ErrNotFound        = errors.New("subscription_not_found")
	ErrGatewayFailure  = errors.New("payment_gateway_failure")
	ErrInvalidUserID   = errors.New("invalid_user_id")
	ErrInvalidArgument = errors.New("invalid_argument")
)
