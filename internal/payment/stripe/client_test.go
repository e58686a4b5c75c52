package stripe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smallbiznis/clubgate/internal/subscription/domain"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient("sk_test_secret", zap.NewNop())
	c.baseURL = srv.URL
	return c
}

func TestCreateCheckoutSessionEncodesForm(t *testing.T) {
	var form map[string][]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/checkout/sessions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test_secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		form = r.PostForm
		w.Write([]byte(`{"id":"cs_1","url":"https://checkout.stripe.com/pay/cs_1"}`))
	})

	url, err := c.CreateCheckoutSession(context.Background(), domain.CheckoutSessionRequest{
		CustomerID:          "cus_1",
		PriceID:             "price_1",
		SuccessURL:          "https://app.test/ok",
		CancelURL:           "https://app.test/no",
		Metadata:            map[string]string{"userId": "42"},
		AllowPromotionCodes: true,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if url != "https://checkout.stripe.com/pay/cs_1" {
		t.Fatalf("unexpected url %q", url)
	}

	expect := map[string]string{
		"mode":                                "subscription",
		"customer":                            "cus_1",
		"line_items[0][price]":                "price_1",
		"line_items[0][quantity]":             "1",
		"allow_promotion_codes":               "true",
		"metadata[userId]":                    "42",
		"subscription_data[metadata][userId]": "42",
	}
	for key, want := range expect {
		if got := form[key]; len(got) != 1 || got[0] != want {
			t.Fatalf("form[%s] = %v, want %q", key, got, want)
		}
	}
}

func TestCustomerExists(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/customers/cus_live":
			w.Write([]byte(`{"id":"cus_live"}`))
		case "/customers/cus_deleted":
			w.Write([]byte(`{"id":"cus_deleted","deleted":true}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such customer"}}`))
		}
	})

	ctx := context.Background()
	alive, err := c.CustomerExists(ctx, "cus_live")
	if err != nil || !alive {
		t.Fatalf("live customer: alive=%v err=%v", alive, err)
	}
	alive, err = c.CustomerExists(ctx, "cus_deleted")
	if err != nil || alive {
		t.Fatalf("deleted customer must not count as live: alive=%v err=%v", alive, err)
	}
	alive, err = c.CustomerExists(ctx, "cus_missing")
	if err != nil || alive {
		t.Fatalf("missing customer is not an error: alive=%v err=%v", alive, err)
	}
}

func TestRetrieveSubscription(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/subscriptions/sub_1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"id":"sub_1","status":"active","current_period_end":1719835200,"cancel_at_period_end":true}`))
	})

	sub, err := c.RetrieveSubscription(context.Background(), "sub_1")
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if sub.Status != "active" || !sub.CancelAtPeriodEnd {
		t.Fatalf("unexpected subscription %+v", sub)
	}
	if sub.CurrentPeriodEnd.Unix() != 1719835200 {
		t.Fatalf("unexpected period end %v", sub.CurrentPeriodEnd)
	}
}

func TestAPIErrorWrapsFailureSentinel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`))
	})

	_, err := c.CreateCustomer(context.Background(), nil)
	if !errors.Is(err, ErrAPIFailure) {
		t.Fatalf("expected ErrAPIFailure, got %v", err)
	}
}
