package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	accessdomain "github.com/smallbiznis/clubgate/internal/access/domain"
	"github.com/smallbiznis/clubgate/internal/clock"
	"github.com/smallbiznis/clubgate/internal/config"
	"github.com/smallbiznis/clubgate/internal/payment/stripe"
	subscriptiondomain "github.com/smallbiznis/clubgate/internal/subscription/domain"
	userdomain "github.com/smallbiznis/clubgate/internal/user/domain"
	"go.uber.org/zap"
)

const webhookSecret = "whsec_test"

type fakeUserService struct {
	userdomain.Service
	users map[int64]userdomain.User
}

func (s *fakeUserService) GetByID(ctx context.Context, id int64) (userdomain.User, error) {
	user, ok := s.users[id]
	if !ok {
		return userdomain.User{}, userdomain.ErrNotFound
	}
	return user, nil
}

type fakeSubscriptionService struct {
	subscriptiondomain.Service

	completed []subscriptiondomain.CheckoutCompleted
	paid      []string
	failed    []string
	updated   []subscriptiondomain.SubscriptionUpdated
	deleted   []string
	applied   bool
}

func (s *fakeSubscriptionService) HandleCheckoutCompleted(ctx context.Context, ev subscriptiondomain.CheckoutCompleted) (bool, error) {
	s.completed = append(s.completed, ev)
	return s.applied, nil
}

func (s *fakeSubscriptionService) HandleInvoicePaid(ctx context.Context, id string, periodEnd time.Time) (bool, error) {
	s.paid = append(s.paid, id)
	return true, nil
}

func (s *fakeSubscriptionService) HandleInvoiceFailed(ctx context.Context, id string) error {
	s.failed = append(s.failed, id)
	return nil
}

func (s *fakeSubscriptionService) HandleSubscriptionUpdated(ctx context.Context, ev subscriptiondomain.SubscriptionUpdated) (bool, error) {
	s.updated = append(s.updated, ev)
	return true, nil
}

func (s *fakeSubscriptionService) HandleSubscriptionDeleted(ctx context.Context, customerID string) (bool, error) {
	s.deleted = append(s.deleted, customerID)
	return true, nil
}

type fakeAccessService struct {
	accessdomain.Service
	grants []int64
}

func (s *fakeAccessService) Grant(ctx context.Context, userID int64) (string, error) {
	s.grants = append(s.grants, userID)
	return "https://t.me/+granted", nil
}

type fakeWebhookGateway struct {
	subscriptiondomain.PaymentGateway
	periodEnd time.Time
}

func (g *fakeWebhookGateway) RetrieveSubscription(ctx context.Context, id string) (subscriptiondomain.ProviderSubscription, error) {
	return subscriptiondomain.ProviderSubscription{ID: id, Status: "active", CurrentPeriodEnd: g.periodEnd}, nil
}

type recordingNotifier struct {
	activated []string
}

func (recordingNotifier) SubscriptionRenewed(context.Context, int64, time.Time) {}
func (recordingNotifier) PaymentFailed(context.Context, int64)                  {}
func (recordingNotifier) SubscriptionCanceled(context.Context, int64)           {}
func (recordingNotifier) SubscriptionExpired(context.Context, int64)            {}

func (n *recordingNotifier) SubscriptionActivated(ctx context.Context, telegramUserID int64, periodEnd time.Time, inviteLink string) {
	n.activated = append(n.activated, inviteLink)
}

type webhookFixture struct {
	server   *Server
	clk      *clock.FakeClock
	users    *fakeUserService
	subs     *fakeSubscriptionService
	access   *fakeAccessService
	notifier *recordingNotifier
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	users := &fakeUserService{users: map[int64]userdomain.User{}}
	subs := &fakeSubscriptionService{applied: true}
	access := &fakeAccessService{}
	notifier := &recordingNotifier{}

	srv := NewServer(ServerParams{
		Gin:             NewEngine(zap.NewNop(), nil),
		Cfg:             config.Config{},
		Log:             zap.NewNop(),
		UserSvc:         users,
		SubscriptionSvc: subs,
		AccessSvc:       access,
		Gateway:         &fakeWebhookGateway{periodEnd: clk.Now().Add(30 * 24 * time.Hour)},
		Verifier:        stripe.NewVerifier(webhookSecret, clk),
		Notifier:        notifier,
	})

	return &webhookFixture{server: srv, clk: clk, users: users, subs: subs, access: access, notifier: notifier}
}

func signPayload(secret string, payload []byte, ts time.Time) string {
	signed := fmt.Sprintf("%d.%s", ts.Unix(), string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signed))
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func (f *webhookFixture) deliver(t *testing.T, payload string, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/billing/webhook", bytes.NewBufferString(payload))
	if sign {
		req.Header.Set("Stripe-Signature", signPayload(webhookSecret, []byte(payload), f.clk.Now()))
	}
	rec := httptest.NewRecorder()
	f.server.Engine().ServeHTTP(rec, req)
	return rec
}

func TestWebhookRejectsUnsignedPayload(t *testing.T) {
	f := newWebhookFixture(t)

	rec := f.deliver(t, `{"id":"evt_1","type":"invoice.payment_succeeded","data":{"object":{"id":"in_1"}}}`, false)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(f.subs.paid) != 0 {
		t.Fatalf("unverified event must not be dispatched")
	}
}

func TestWebhookAcknowledgesUnknownEventType(t *testing.T) {
	f := newWebhookFixture(t)

	rec := f.deliver(t, `{"id":"evt_1","type":"charge.refunded","data":{"object":{"id":"ch_1"}}}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ignored" {
		t.Fatalf("expected ignored ack, got %v", body)
	}
}

func TestWebhookCheckoutCompletedGrantsAccess(t *testing.T) {
	f := newWebhookFixture(t)
	tgID := int64(910001)
	f.users.users[42] = userdomain.User{ID: 42, TelegramUserID: &tgID}

	payload := `{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_1", "customer": "cus_1", "subscription": "sub_1", "metadata": {"userId": "42"}}}
	}`
	rec := f.deliver(t, payload, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if len(f.subs.completed) != 1 {
		t.Fatalf("expected one activation, got %d", len(f.subs.completed))
	}
	ev := f.subs.completed[0]
	if ev.UserID != 42 || ev.StripeSubscriptionID != "sub_1" || ev.StripeCustomerID != "cus_1" {
		t.Fatalf("unexpected activation event %+v", ev)
	}
	if ev.PeriodEnd.IsZero() {
		t.Fatalf("expected the period end pulled from the provider")
	}
	if len(f.access.grants) != 1 || f.access.grants[0] != 42 {
		t.Fatalf("expected an access grant for the user, got %v", f.access.grants)
	}
	if len(f.notifier.activated) != 1 {
		t.Fatalf("expected an activation notification")
	}
}

func TestWebhookCheckoutWithoutMetadataIsAcked(t *testing.T) {
	f := newWebhookFixture(t)

	payload := `{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_1", "customer": "cus_1", "subscription": "sub_1", "metadata": {}}}
	}`
	rec := f.deliver(t, payload, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("foreign session must be acked, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(f.subs.completed) != 0 {
		t.Fatalf("foreign session must not be dispatched")
	}
}

func TestWebhookInvoiceEventsDispatch(t *testing.T) {
	f := newWebhookFixture(t)

	rec := f.deliver(t, `{
		"id": "evt_1",
		"type": "invoice.payment_succeeded",
		"data": {"object": {"id": "in_1", "subscription": "sub_1", "period_end": 1719835200, "lines": {"data": []}}}
	}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(f.subs.paid) != 1 || f.subs.paid[0] != "sub_1" {
		t.Fatalf("expected invoice paid dispatched, got %v", f.subs.paid)
	}

	rec = f.deliver(t, `{
		"id": "evt_2",
		"type": "invoice.payment_failed",
		"data": {"object": {"id": "in_2", "subscription": "sub_1"}}
	}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(f.subs.failed) != 1 {
		t.Fatalf("expected invoice failure dispatched, got %v", f.subs.failed)
	}

	rec = f.deliver(t, `{
		"id": "evt_3",
		"type": "customer.subscription.deleted",
		"data": {"object": {"id": "sub_1", "customer": "cus_1", "status": "canceled"}}
	}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(f.subs.deleted) != 1 || f.subs.deleted[0] != "cus_1" {
		t.Fatalf("expected deletion dispatched, got %v", f.subs.deleted)
	}
}
