package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/clubgate/internal/subscription/domain"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.stripe.com/v1"

// Client talks to the Stripe REST API with form-encoded requests. It covers
// only the endpoints the checkout flow needs.
type Client struct {
	httpClient *http.Client
	log        *zap.Logger
	baseURL    string
	secretKey  string
}

func NewClient(secretKey string, log *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log.Named("stripe.client"),
		baseURL:    defaultBaseURL,
		secretKey:  secretKey,
	}
}

func (c *Client) CreateCustomer(ctx context.Context, metadata map[string]string) (string, error) {
	form := url.Values{}
	for key, value := range metadata {
		form.Set(fmt.Sprintf("metadata[%s]", key), value)
	}

	var customer customerResponse
	if err := c.do(ctx, http.MethodPost, "/customers", form, &customer); err != nil {
		return "", err
	}
	if customer.ID == "" {
		return "", ErrAPIFailure
	}
	return customer.ID, nil
}

func (c *Client) CreateCheckoutSession(ctx context.Context, req domain.CheckoutSessionRequest) (string, error) {
	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("customer", req.CustomerID)
	form.Set("line_items[0][price]", req.PriceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	if req.AllowPromotionCodes {
		form.Set("allow_promotion_codes", "true")
	}
	for key, value := range req.Metadata {
		// Mirror session metadata onto the subscription so later
		// subscription-scoped events carry the same identifiers.
		form.Set(fmt.Sprintf("metadata[%s]", key), value)
		form.Set(fmt.Sprintf("subscription_data[metadata][%s]", key), value)
	}

	var session checkoutSessionResponse
	if err := c.do(ctx, http.MethodPost, "/checkout/sessions", form, &session); err != nil {
		return "", err
	}
	if session.URL == "" {
		return "", ErrAPIFailure
	}
	return session.URL, nil
}

func (c *Client) RetrieveSubscription(ctx context.Context, stripeSubscriptionID string) (domain.ProviderSubscription, error) {
	var sub subscriptionResponse
	if err := c.do(ctx, http.MethodGet, "/subscriptions/"+url.PathEscape(stripeSubscriptionID), nil, &sub); err != nil {
		return domain.ProviderSubscription{}, err
	}
	if sub.ID == "" {
		return domain.ProviderSubscription{}, ErrAPIFailure
	}
	return domain.ProviderSubscription{
		ID:                sub.ID,
		Status:            sub.Status,
		CurrentPeriodEnd:  time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}, nil
}

func (c *Client) CustomerExists(ctx context.Context, stripeCustomerID string) (bool, error) {
	var customer customerResponse
	err := c.do(ctx, http.MethodGet, "/customers/"+url.PathEscape(stripeCustomerID), nil, &customer)
	if err != nil {
		if apiErr, ok := err.(*apiError); ok && apiErr.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	return customer.ID != "" && !customer.Deleted, nil
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAPIFailure, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAPIFailure, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &apiError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error struct {
				Type    string `json:"type"`
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if jsonErr := json.Unmarshal(payload, &envelope); jsonErr == nil {
			apiErr.Type = envelope.Error.Type
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		c.log.Warn("stripe api error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("code", apiErr.Code),
		)
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("%w: %v", ErrAPIFailure, err)
		}
	}
	return nil
}

type apiError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("stripe: status %d code %q: %s", e.StatusCode, e.Code, e.Message)
}

func (e *apiError) Unwrap() error {
	return ErrAPIFailure
}

type customerResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

type checkoutSessionResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type subscriptionResponse struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	CurrentPeriodEnd  int64  `json:"current_period_end"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
}
