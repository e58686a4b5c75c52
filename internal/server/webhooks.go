package server

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/clubgate/internal/payment/stripe"
	subscriptiondomain "github.com/smallbiznis/clubgate/internal/subscription/domain"
	"go.uber.org/zap"
)

// HandleStripeWebhook verifies and dispatches provider events. Delivery is
// at-least-once, so every branch tolerates repeats; anything unrecognized is
// acknowledged so the provider stops retrying it.
func (s *Server) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.verifier.Verify(payload, c.Request.Header); err != nil {
		AbortWithError(c, err)
		return
	}

	event, err := stripe.ParseEvent(payload)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	switch event.Type {
	case "checkout.session.completed":
		err = s.handleCheckoutCompleted(c, event)
	case "invoice.payment_succeeded":
		err = s.handleInvoicePaid(ctx, event)
	case "invoice.payment_failed":
		err = s.handleInvoiceFailed(ctx, event)
	case "customer.subscription.updated":
		err = s.handleSubscriptionUpdated(ctx, event)
	case "customer.subscription.deleted":
		err = s.handleSubscriptionDeleted(ctx, event)
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleCheckoutCompleted(c *gin.Context, event *stripe.Event) error {
	session, err := event.CheckoutSession()
	if err != nil {
		return err
	}
	// Non-subscription sessions carry no subscription id. Nothing to do.
	if session.Subscription == "" {
		return nil
	}
	userID, ok := session.UserID()
	if !ok {
		// A session without our metadata was not created by this service.
		// Retrying will never fix it, so acknowledge and log.
		s.log.Warn("checkout session without user metadata",
			zap.String("event_id", event.ID),
			zap.String("session_id", session.ID),
		)
		return nil
	}

	ctx := c.Request.Context()
	providerSub, err := s.gateway.RetrieveSubscription(ctx, session.Subscription)
	if err != nil {
		return err
	}

	applied, err := s.subscriptionSvc.HandleCheckoutCompleted(ctx, subscriptiondomain.CheckoutCompleted{
		UserID:               userID,
		StripeSubscriptionID: session.Subscription,
		StripeCustomerID:     session.Customer,
		PeriodEnd:            providerSub.CurrentPeriodEnd,
	})
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	// Activation succeeded: hand out the invite when the user has linked
	// their telegram account. Grant failures here are not fatal, the user can
	// always pull a link through the bot or the API.
	user, err := s.userSvc.GetByID(ctx, userID)
	if err != nil || user.TelegramUserID == nil {
		return nil
	}
	inviteLink, err := s.accessSvc.Grant(ctx, userID)
	if err != nil {
		s.log.Warn("grant after activation failed",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return nil
	}
	s.notifier.SubscriptionActivated(ctx, *user.TelegramUserID, providerSub.CurrentPeriodEnd, inviteLink)
	return nil
}

func (s *Server) handleInvoicePaid(ctx context.Context, event *stripe.Event) error {
	invoice, err := event.Invoice()
	if err != nil {
		return err
	}
	if invoice.Subscription == "" {
		return nil
	}
	_, err = s.subscriptionSvc.HandleInvoicePaid(ctx, invoice.Subscription, invoice.ServicePeriodEnd())
	return err
}

func (s *Server) handleInvoiceFailed(ctx context.Context, event *stripe.Event) error {
	invoice, err := event.Invoice()
	if err != nil {
		return err
	}
	if invoice.Subscription == "" {
		return nil
	}
	return s.subscriptionSvc.HandleInvoiceFailed(ctx, invoice.Subscription)
}

func (s *Server) handleSubscriptionUpdated(ctx context.Context, event *stripe.Event) error {
	sub, err := event.Subscription()
	if err != nil {
		return err
	}
	_, err = s.subscriptionSvc.HandleSubscriptionUpdated(ctx, subscriptiondomain.SubscriptionUpdated{
		StripeCustomerID:  sub.Customer,
		PeriodEnd:         sub.PeriodEnd(),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		ProviderStatus:    sub.Status,
	})
	return err
}

func (s *Server) handleSubscriptionDeleted(ctx context.Context, event *stripe.Event) error {
	sub, err := event.Subscription()
	if err != nil {
		return err
	}
	_, err = s.subscriptionSvc.HandleSubscriptionDeleted(ctx, sub.Customer)
	return err
}
