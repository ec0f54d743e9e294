package paypal

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"voxmeter/internal/config"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(config.PayPalConfig{
		BaseURL:      server.URL,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		WebhookID:    "webhook-id",
	}, testLogger())
	return client, server
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "25.00", FormatAmount(decimal.RequireFromString("25")))
	assert.Equal(t, "0.35", FormatAmount(decimal.RequireFromString("0.35")))
	assert.Equal(t, "10.50", FormatAmount(decimal.RequireFromString("10.5")))
	assert.Equal(t, "0.00", FormatAmount(decimal.Zero))
}

func TestAccessTokenCached(t *testing.T) {
	var tokenRequests atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		tokenRequests.Add(1)

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "client-id", user)
		assert.Equal(t, "client-secret", pass)

		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "token-abc",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/v2/checkout/orders/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-abc", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{"id": "order-1", "status": "CREATED"})
	})

	client, _ := testClient(t, mux)
	ctx := context.Background()

	_, err := client.GetOrder(ctx, "order-1")
	require.NoError(t, err)
	_, err = client.GetOrder(ctx, "order-1")
	require.NoError(t, err)

	assert.Equal(t, int32(1), tokenRequests.Load(), "token must be fetched once and cached")
}

func TestCreateOrderCarriesReference(t *testing.T) {
	var captured map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"access_token": "t", "expires_in": 3600})
	})
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"id": "order-1", "status": "CREATED"})
	})

	client, _ := testClient(t, mux)

	order, err := client.CreateOrder(context.Background(),
		decimal.RequireFromString("25.00"), "Credit top-up", "topup:user-1")

	require.NoError(t, err)
	assert.Equal(t, "order-1", order.ID)

	assert.Equal(t, "CAPTURE", captured["intent"])
	units := captured["purchase_units"].([]any)
	require.Len(t, units, 1)
	unit := units[0].(map[string]any)
	assert.Equal(t, "topup:user-1", unit["reference_id"])
	assert.Equal(t, "topup:user-1", unit["custom_id"])
	amount := unit["amount"].(map[string]any)
	assert.Equal(t, "USD", amount["currency_code"])
	assert.Equal(t, "25.00", amount["value"])
}

func TestGetOrderParsesPurchaseUnits(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"access_token": "t", "expires_in": 3600})
	})
	mux.HandleFunc("/v2/checkout/orders/order-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "order-1",
			"status": "APPROVED",
			"purchase_units": []map[string]any{
				{
					"reference_id": "topup:user-1",
					"amount":       map[string]string{"currency_code": "USD", "value": "25.00"},
				},
			},
		})
	})

	client, _ := testClient(t, mux)

	order, err := client.GetOrder(context.Background(), "order-1")

	require.NoError(t, err)
	assert.Equal(t, "APPROVED", order.Status)
	require.Len(t, order.PurchaseUnits, 1)
	assert.Equal(t, "topup:user-1", order.PurchaseUnits[0].ReferenceID)
	assert.Equal(t, "25.00", order.PurchaseUnits[0].Amount.Value)
}

func TestVerifyWebhookSignature(t *testing.T) {
	var captured map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"access_token": "t", "expires_in": 3600})
	})
	mux.HandleFunc("/v1/notifications/verify-webhook-signature", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(map[string]string{"verification_status": "SUCCESS"})
	})

	client, _ := testClient(t, mux)

	headers := WebhookHeaders{
		TransmissionID:   "tid",
		TransmissionSig:  "sig",
		TransmissionTime: "2026-01-01T00:00:00Z",
		CertURL:          "https://api.paypal.com/cert",
		AuthAlgo:         "SHA256withRSA",
	}
	event := json.RawMessage(`{"id":"WH-1","event_type":"PAYMENT.CAPTURE.COMPLETED"}`)

	verified, err := client.VerifyWebhookSignature(context.Background(), headers, event)

	require.NoError(t, err)
	assert.True(t, verified)
	assert.Equal(t, "webhook-id", captured["webhook_id"])
	assert.Equal(t, "tid", captured["transmission_id"])
}

func TestVerifyWebhookSignatureFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"access_token": "t", "expires_in": 3600})
	})
	mux.HandleFunc("/v1/notifications/verify-webhook-signature", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"verification_status": "FAILURE"})
	})

	client, _ := testClient(t, mux)

	verified, err := client.VerifyWebhookSignature(context.Background(), WebhookHeaders{}, json.RawMessage(`{}`))

	require.NoError(t, err)
	assert.False(t, verified)
}

func TestErrorStatusSurfaced(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"access_token": "t", "expires_in": 3600})
	})
	mux.HandleFunc("/v2/checkout/orders/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"name": "RESOURCE_NOT_FOUND"})
	})

	client, _ := testClient(t, mux)

	_, err := client.GetOrder(context.Background(), "missing")

	assert.Error(t, err)
}
