package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"voxmeter/internal/config"

	"github.com/shopspring/decimal"
)

// Client wraps the PayPal REST API. The OAuth2 client-credentials token is
// cached and refreshed 60 seconds before expiry; the cache is guarded by a
// mutex so concurrent request handlers share one token. Unlike the usage
// validator this layer fails loud: errors are logged and returned for the
// HTTP layer to translate.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	webhookID    string
	httpClient   *http.Client
	logger       *slog.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewClient(cfg config.PayPalConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL:      cfg.BaseURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		webhookID:    cfg.WebhookID,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
	}
}

// FormatAmount renders a decimal as the two-decimal USD string PayPal expects.
func FormatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *Client) getAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("paypal token endpoint returned %d: %s", resp.StatusCode, body)
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	c.accessToken = token.AccessToken
	// Refresh a minute early so an almost-expired token is never sent.
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn-60) * time.Second)

	c.logger.DebugContext(ctx, "Refreshed PayPal access token", "expires_in", token.ExpiresIn)
	return c.accessToken, nil
}

type Amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type Plan struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type CreatePlanParams struct {
	ProductID   string
	Name        string
	Description string
	Price       decimal.Decimal
}

// CreatePlan creates a monthly billing plan.
func (c *Client) CreatePlan(ctx context.Context, params CreatePlanParams) (Plan, error) {
	payload := map[string]any{
		"product_id":  params.ProductID,
		"name":        params.Name,
		"description": params.Description,
		"billing_cycles": []map[string]any{
			{
				"frequency":    map[string]any{"interval_unit": "MONTH", "interval_count": 1},
				"tenure_type":  "REGULAR",
				"sequence":     1,
				"total_cycles": 0,
				"pricing_scheme": map[string]any{
					"fixed_price": Amount{CurrencyCode: "USD", Value: FormatAmount(params.Price)},
				},
			},
		},
		"payment_preferences": map[string]any{
			"auto_bill_outstanding": true,
			"payment_failure_threshold": 3,
		},
	}

	var plan Plan
	if err := c.do(ctx, http.MethodPost, "/v1/billing/plans", payload, &plan); err != nil {
		return Plan{}, fmt.Errorf("failed to create PayPal plan: %w", err)
	}

	c.logger.InfoContext(ctx, "Created PayPal billing plan", "plan_id", plan.ID, "name", params.Name)
	return plan, nil
}

type Subscription struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []Link `json:"links"`
}

type Link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

// CreateSubscription starts a subscription on a plan; the response carries
// the approval link the user must visit.
func (c *Client) CreateSubscription(ctx context.Context, planID, returnURL, cancelURL string) (Subscription, error) {
	payload := map[string]any{
		"plan_id": planID,
		"application_context": map[string]any{
			"return_url": returnURL,
			"cancel_url": cancelURL,
		},
	}

	var sub Subscription
	if err := c.do(ctx, http.MethodPost, "/v1/billing/subscriptions", payload, &sub); err != nil {
		return Subscription{}, fmt.Errorf("failed to create PayPal subscription: %w", err)
	}

	c.logger.InfoContext(ctx, "Created PayPal subscription", "subscription_id", sub.ID, "plan_id", planID)
	return sub, nil
}

func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (Subscription, error) {
	var sub Subscription
	if err := c.do(ctx, http.MethodGet, "/v1/billing/subscriptions/"+subscriptionID, nil, &sub); err != nil {
		return Subscription{}, fmt.Errorf("failed to get PayPal subscription: %w", err)
	}
	return sub, nil
}

func (c *Client) CancelSubscription(ctx context.Context, subscriptionID, reason string) error {
	payload := map[string]any{"reason": reason}
	if err := c.do(ctx, http.MethodPost, "/v1/billing/subscriptions/"+subscriptionID+"/cancel", payload, nil); err != nil {
		return fmt.Errorf("failed to cancel PayPal subscription: %w", err)
	}

	c.logger.InfoContext(ctx, "Canceled PayPal subscription", "subscription_id", subscriptionID)
	return nil
}

type Order struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []Link `json:"links"`
}

// CreateOrder creates a one-time payment order.
func (c *Client) CreateOrder(ctx context.Context, amount decimal.Decimal, description, referenceID string) (Order, error) {
	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{
			{
				"reference_id": referenceID,
				"custom_id":    referenceID,
				"description":  description,
				"amount":       Amount{CurrencyCode: "USD", Value: FormatAmount(amount)},
			},
		},
	}

	var order Order
	if err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", payload, &order); err != nil {
		return Order{}, fmt.Errorf("failed to create PayPal order: %w", err)
	}

	c.logger.InfoContext(ctx, "Created PayPal order",
		"order_id", order.ID, "amount", FormatAmount(amount), "reference", referenceID)
	return order, nil
}

type OrderDetails struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		ReferenceID string `json:"reference_id"`
		Amount      Amount `json:"amount"`
	} `json:"purchase_units"`
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (OrderDetails, error) {
	var order OrderDetails
	if err := c.do(ctx, http.MethodGet, "/v2/checkout/orders/"+orderID, nil, &order); err != nil {
		return OrderDetails{}, fmt.Errorf("failed to get PayPal order: %w", err)
	}
	return order, nil
}

type CaptureResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CaptureOrder captures an approved order's payment.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (CaptureResult, error) {
	var result CaptureResult
	if err := c.do(ctx, http.MethodPost, "/v2/checkout/orders/"+orderID+"/capture", struct{}{}, &result); err != nil {
		return CaptureResult{}, fmt.Errorf("failed to capture PayPal order: %w", err)
	}

	c.logger.InfoContext(ctx, "Captured PayPal order", "order_id", orderID, "status", result.Status)
	return result, nil
}

// CreateUsageCharge charges for usage as a one-time payment order.
func (c *Client) CreateUsageCharge(ctx context.Context, userID string, amount decimal.Decimal, description string) (Order, error) {
	return c.CreateOrder(ctx, amount, description, "usage:"+userID)
}

// WebhookHeaders carries PayPal's signature header set.
type WebhookHeaders struct {
	TransmissionID   string
	TransmissionSig  string
	TransmissionTime string
	CertURL          string
	AuthAlgo         string
}

type verifyResponse struct {
	VerificationStatus string `json:"verification_status"`
}

// VerifyWebhookSignature delegates signature verification to PayPal's verify
// endpoint. Returns true only for an explicit SUCCESS verdict.
func (c *Client) VerifyWebhookSignature(ctx context.Context, headers WebhookHeaders, event json.RawMessage) (bool, error) {
	payload := map[string]any{
		"transmission_id":   headers.TransmissionID,
		"transmission_sig":  headers.TransmissionSig,
		"transmission_time": headers.TransmissionTime,
		"cert_url":          headers.CertURL,
		"auth_algo":         headers.AuthAlgo,
		"webhook_id":        c.webhookID,
		"webhook_event":     event,
	}

	var result verifyResponse
	if err := c.do(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", payload, &result); err != nil {
		return false, fmt.Errorf("failed to verify webhook signature: %w", err)
	}

	return result.VerificationStatus == "SUCCESS", nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	token, err := c.getAccessToken(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.ErrorContext(ctx, "PayPal request failed",
			"method", method, "path", path, "status", resp.StatusCode, "body", string(respBody))
		return fmt.Errorf("paypal returned %d: %s", resp.StatusCode, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
