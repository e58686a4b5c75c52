package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clubgate/internal/clock"
	"github.com/smallbiznis/clubgate/internal/notify"
	"github.com/smallbiznis/clubgate/internal/subscription/domain"
	userdomain "github.com/smallbiznis/clubgate/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Config carries the price catalogue and the early-access cutoff.
type Config struct {
	PriceMonthly20      string
	PriceMonthly30      string
	PriceYearly280      string
	EarlyAccessDeadline *time.Time
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	UserRepo userdomain.Repository
	Gateway  domain.PaymentGateway
	Notifier notify.Notifier
	Config   Config
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	userRepo userdomain.Repository
	gateway  domain.PaymentGateway
	notifier notify.Notifier
	cfg      Config
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("subscription.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		userRepo: p.UserRepo,
		gateway:  p.Gateway,
		notifier: p.Notifier,
		cfg:      p.Config,
	}
}

func (s *Service) resolvePlan(plan string) (domain.Plan, string, error) {
	switch strings.ToUpper(strings.TrimSpace(plan)) {
	case "MONTHLY":
		if s.earlyAccess() {
			return domain.PlanMonthly20, s.cfg.PriceMonthly20, nil
		}
		return domain.PlanMonthly30, s.cfg.PriceMonthly30, nil
	case "YEARLY":
		return domain.PlanYearly280, s.cfg.PriceYearly280, nil
	default:
		return "", "", domain.ErrInvalidPlan
	}
}

func (s *Service) earlyAccess() bool {
	return s.cfg.EarlyAccessDeadline != nil && s.clock.Now().Before(*s.cfg.EarlyAccessDeadline)
}

func (s *Service) InitiateCheckout(ctx context.Context, req domain.InitiateCheckoutRequest) (domain.CheckoutSession, error) {
	if req.UserID <= 0 {
		return domain.CheckoutSession{}, domain.ErrInvalidUserID
	}

	plan, priceID, err := s.resolvePlan(req.Plan)
	if err != nil {
		return domain.CheckoutSession{}, err
	}
	// Price ids are operator-supplied config; catch placeholder values before
	// they reach the provider.
	if !strings.HasPrefix(priceID, "price_") {
		s.log.Error("misconfigured price id", zap.String("plan", string(plan)))
		return domain.CheckoutSession{}, domain.ErrInvalidPriceID
	}

	userID := snowflake.ID(req.UserID)
	customerID, err := s.getOrCreateCustomer(ctx, userID, req.TelegramUserID)
	if err != nil {
		return domain.CheckoutSession{}, err
	}

	metadata := map[string]string{
		"userId": userID.String(),
		"plan":   strings.ToUpper(strings.TrimSpace(req.Plan)),
	}
	if req.TelegramUserID != nil {
		metadata["telegramUserId"] = formatInt64(*req.TelegramUserID)
	}

	sessionURL, err := s.gateway.CreateCheckoutSession(ctx, domain.CheckoutSessionRequest{
		CustomerID:          customerID,
		PriceID:             priceID,
		SuccessURL:          req.SuccessURL,
		CancelURL:           req.CancelURL,
		Metadata:            metadata,
		AllowPromotionCodes: true,
	})
	if err != nil {
		return domain.CheckoutSession{}, err
	}

	now := s.clock.Now()
	row := domain.Subscription{
		ID:               s.genID.Generate(),
		UserID:           userID,
		Plan:             plan,
		Status:           domain.SubscriptionStatusPending,
		StripeCustomerID: customerID,
		Metadata:         datatypes.JSONMap{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Insert(ctx, s.db, &row); err != nil {
		return domain.CheckoutSession{}, err
	}

	return domain.CheckoutSession{URL: sessionURL, Plan: plan}, nil
}

// getOrCreateCustomer reuses the user's most recent stripe customer when it
// still exists at the provider, otherwise creates a fresh one.
func (s *Service) getOrCreateCustomer(ctx context.Context, userID snowflake.ID, telegramUserID *int64) (string, error) {
	existing, err := s.repo.FindLatestCustomerID(ctx, s.db, userID)
	if err != nil {
		return "", err
	}
	if existing != "" {
		alive, err := s.gateway.CustomerExists(ctx, existing)
		if err == nil && alive {
			return existing, nil
		}
	}

	metadata := map[string]string{"userId": userID.String()}
	if telegramUserID != nil {
		metadata["telegramUserId"] = formatInt64(*telegramUserID)
	}
	return s.gateway.CreateCustomer(ctx, metadata)
}

func (s *Service) HandleCheckoutCompleted(ctx context.Context, ev domain.CheckoutCompleted) (bool, error) {
	if ev.UserID <= 0 {
		return false, domain.ErrInvalidUserID
	}
	if ev.StripeSubscriptionID == "" || ev.StripeCustomerID == "" {
		return false, domain.ErrInvalidArgument
	}

	applied, err := s.repo.ActivateLatestPending(ctx, s.db, snowflake.ID(ev.UserID), ev.StripeSubscriptionID, ev.StripeCustomerID, ev.PeriodEnd.UTC(), s.clock.Now())
	if err != nil {
		return false, err
	}
	if !applied {
		// Duplicate or out-of-order delivery: the PENDING row was already
		// consumed. Benign, not fatal.
		s.log.Info("checkout completed with no pending row",
			zap.Int64("user_id", ev.UserID),
			zap.String("stripe_subscription_id", ev.StripeSubscriptionID),
		)
	}
	return applied, nil
}

func (s *Service) HandleInvoicePaid(ctx context.Context, stripeSubscriptionID string, periodEnd time.Time) (bool, error) {
	if stripeSubscriptionID == "" {
		return false, domain.ErrInvalidArgument
	}

	applied, err := s.repo.RefreshBySubscriptionID(ctx, s.db, stripeSubscriptionID, periodEnd.UTC(), s.clock.Now())
	if err != nil {
		return false, err
	}
	if !applied {
		s.log.Info("invoice paid for unknown subscription",
			zap.String("stripe_subscription_id", stripeSubscriptionID),
		)
		return false, nil
	}

	if tgID := s.telegramIDForSubscription(ctx, stripeSubscriptionID); tgID != nil {
		s.notifier.SubscriptionRenewed(ctx, *tgID, periodEnd.UTC())
	}
	return true, nil
}

// HandleInvoiceFailed deliberately leaves the row untouched: the provider
// retries failed charges itself, and access lapses naturally at period end if
// they all fail. The user just gets a warning.
func (s *Service) HandleInvoiceFailed(ctx context.Context, stripeSubscriptionID string) error {
	if stripeSubscriptionID == "" {
		return domain.ErrInvalidArgument
	}
	if tgID := s.telegramIDForSubscription(ctx, stripeSubscriptionID); tgID != nil {
		s.notifier.PaymentFailed(ctx, *tgID)
	}
	return nil
}

func (s *Service) HandleSubscriptionUpdated(ctx context.Context, ev domain.SubscriptionUpdated) (bool, error) {
	if ev.StripeCustomerID == "" {
		return false, domain.ErrInvalidArgument
	}

	row, err := s.repo.FindLatestByCustomerID(ctx, s.db, ev.StripeCustomerID)
	if err != nil {
		return false, err
	}
	if row == nil {
		s.log.Info("subscription updated for unknown customer",
			zap.String("stripe_customer_id", ev.StripeCustomerID),
		)
		return false, nil
	}

	status := domain.SubscriptionStatusCanceled
	if strings.EqualFold(ev.ProviderStatus, "active") {
		status = domain.SubscriptionStatusActive
	}
	return s.repo.UpdateByID(ctx, s.db, row.ID, status, ev.PeriodEnd.UTC(), ev.CancelAtPeriodEnd, s.clock.Now())
}

func (s *Service) HandleSubscriptionDeleted(ctx context.Context, stripeCustomerID string) (bool, error) {
	if stripeCustomerID == "" {
		return false, domain.ErrInvalidArgument
	}

	row, err := s.repo.FindLatestByCustomerID(ctx, s.db, stripeCustomerID)
	if err != nil {
		return false, err
	}
	if row == nil {
		s.log.Info("subscription deleted for unknown customer",
			zap.String("stripe_customer_id", stripeCustomerID),
		)
		return false, nil
	}

	applied, err := s.repo.CancelByID(ctx, s.db, row.ID, s.clock.Now())
	if err != nil {
		return false, err
	}
	if applied {
		if tgID := s.telegramIDForUser(ctx, row.UserID); tgID != nil {
			s.notifier.SubscriptionCanceled(ctx, *tgID)
		}
	}
	return applied, nil
}

func (s *Service) HasActiveSubscription(ctx context.Context, userID int64) (bool, error) {
	if userID <= 0 {
		return false, domain.ErrInvalidUserID
	}

	row, err := s.repo.FindLatestByUserID(ctx, s.db, snowflake.ID(userID))
	if err != nil {
		return false, err
	}
	if row == nil || row.Status != domain.SubscriptionStatusActive || row.CurrentPeriodEnd == nil {
		return false, nil
	}
	return row.CurrentPeriodEnd.After(s.clock.Now()), nil
}

func (s *Service) Status(ctx context.Context, userID int64) (domain.StatusSummary, error) {
	if userID <= 0 {
		return domain.StatusSummary{}, domain.ErrInvalidUserID
	}

	row, err := s.repo.FindLatestByUserID(ctx, s.db, snowflake.ID(userID))
	if err != nil {
		return domain.StatusSummary{}, err
	}
	if row == nil {
		return domain.StatusSummary{}, nil
	}
	return domain.StatusSummary{
		Exists:            true,
		Plan:              row.Plan,
		Status:            row.Status,
		CurrentPeriodEnd:  row.CurrentPeriodEnd,
		CancelAtPeriodEnd: row.CancelAtPeriodEnd,
	}, nil
}

func (s *Service) telegramIDForSubscription(ctx context.Context, stripeSubscriptionID string) *int64 {
	row, err := s.repo.FindLatestBySubscriptionID(ctx, s.db, stripeSubscriptionID)
	if err != nil || row == nil {
		return nil
	}
	return s.telegramIDForUser(ctx, row.UserID)
}

func (s *Service) telegramIDForUser(ctx context.Context, userID snowflake.ID) *int64 {
	user, err := s.userRepo.FindByID(ctx, s.db, userID)
	if err != nil || user == nil {
		return nil
	}
	return user.TelegramUserID
}

func formatInt64(v int64) string {
	return snowflake.ID(v).String()
}
