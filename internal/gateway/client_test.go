package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"shop-order-service/config"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) *Client {
	return NewClient(config.GatewayConfig{
		BaseURL:       baseURL,
		KeyID:         "rzp_test_key",
		KeySecret:     "key-secret",
		WebhookSecret: "webhook-secret",
		Currency:      "INR",
	})
}

func TestCreateOrder(t *testing.T) {
	var captured struct {
		Amount         int64  `json:"amount"`
		Currency       string `json:"currency"`
		Receipt        string `json:"receipt"`
		PaymentCapture int    `json:"payment_capture"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "key-secret", pass)
		assert.Equal(t, "/orders", r.URL.Path)

		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		json.NewEncoder(w).Encode(RemoteOrder{
			ID:       "order_remote_1",
			Amount:   captured.Amount,
			Currency: captured.Currency,
			Receipt:  captured.Receipt,
			Status:   "created",
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	order, err := client.CreateOrder(context.Background(), decimal.RequireFromString("249.50"))
	require.NoError(t, err)

	// Major units become minor units on the wire.
	assert.Equal(t, int64(24950), captured.Amount)
	assert.Equal(t, "INR", captured.Currency)
	assert.Equal(t, 1, captured.PaymentCapture)
	assert.NotEmpty(t, captured.Receipt)

	assert.Equal(t, "order_remote_1", order.ID)
	assert.Equal(t, "created", order.Status)
}

func TestCreateOrderGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"auth failed"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.CreateOrder(context.Background(), decimal.NewFromInt(10))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestFetchPayment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/payments/pay_42", r.URL.Path)
		user, _, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)

		json.NewEncoder(w).Encode(RemotePayment{
			ID:       "pay_42",
			Amount:   24950,
			Currency: "INR",
			Status:   "captured",
			OrderID:  "order_remote_1",
			Captured: true,
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	payment, err := client.FetchPayment(context.Background(), "pay_42")
	require.NoError(t, err)

	assert.Equal(t, "pay_42", payment.ID)
	assert.Equal(t, "captured", payment.Status)
	assert.True(t, payment.Captured)
}

func TestRefundPayment(t *testing.T) {
	var captured struct {
		Amount int64             `json:"amount"`
		Notes  map[string]string `json:"notes"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/pay_42/refund", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		json.NewEncoder(w).Encode(RemoteRefund{
			ID:        "rfnd_1",
			PaymentID: "pay_42",
			Amount:    captured.Amount,
			Status:    "processed",
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	refund, err := client.RefundPayment(context.Background(), "pay_42",
		decimal.RequireFromString("49.50"), "damaged in transit")
	require.NoError(t, err)

	// Partial refund amount goes out in minor units with the reason note.
	assert.Equal(t, int64(4950), captured.Amount)
	assert.Equal(t, "damaged in transit", captured.Notes["reason"])
	assert.Equal(t, "rfnd_1", refund.ID)

	// A zero amount omits the field entirely, meaning a full refund.
	captured.Amount = 0
	captured.Notes = nil
	_, err = client.RefundPayment(context.Background(), "pay_42", decimal.Zero, "full refund")
	require.NoError(t, err)
	assert.Zero(t, captured.Amount)
	assert.Equal(t, "full refund", captured.Notes["reason"])
}

func TestVerifyPaymentSignature(t *testing.T) {
	client := newTestClient("http://unused")

	// HMAC-SHA256("order_1|pay_1", "key-secret")
	valid := signHex("key-secret", []byte("order_1|pay_1"))

	assert.True(t, client.VerifyPaymentSignature("order_1", "pay_1", valid))
	assert.False(t, client.VerifyPaymentSignature("order_1", "pay_1", "deadbeef"))
	assert.False(t, client.VerifyPaymentSignature("order_2", "pay_1", valid))
	assert.False(t, client.VerifyPaymentSignature("order_1", "pay_2", valid))
}

func TestVerifyWebhookSignature(t *testing.T) {
	client := newTestClient("http://unused")
	body := []byte(`{"event":"payment.captured"}`)
	valid := signHex("webhook-secret", body)

	assert.True(t, client.VerifyWebhookSignature(body, valid))
	assert.False(t, client.VerifyWebhookSignature(body, ""))
	assert.False(t, client.VerifyWebhookSignature([]byte(`{"event":"tampered"}`), valid))

	// A client without a configured webhook secret rejects everything.
	unconfigured := NewClient(config.GatewayConfig{KeySecret: "key-secret"})
	assert.False(t, unconfigured.VerifyWebhookSignature(body, signHex("", body)))
}
