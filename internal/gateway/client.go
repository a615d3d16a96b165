package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"shop-order-service/config"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// minorUnitFactor converts major currency units to the gateway's minor units.
var minorUnitFactor = decimal.NewFromInt(100)

// Client talks to a Razorpay-style payment gateway: order creation over HTTP
// plus HMAC-SHA256 signature checks for client confirmations and webhooks.
type Client struct {
	baseURL       string
	keyID         string
	keySecret     string
	webhookSecret string
	currency      string
	httpClient    *http.Client
}

// NewClient creates a gateway client from config.
func NewClient(cfg config.GatewayConfig) *Client {
	return &Client{
		baseURL:       cfg.BaseURL,
		keyID:         cfg.KeyID,
		keySecret:     cfg.KeySecret,
		webhookSecret: cfg.WebhookSecret,
		currency:      cfg.Currency,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
	}
}

// RemoteOrder is the gateway's payment intent.
type RemoteOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// RemotePayment is the gateway's record of a payment attempt.
type RemotePayment struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	OrderID  string `json:"order_id"`
	Method   string `json:"method"`
	Captured bool   `json:"captured"`
}

// RemoteRefund is the gateway's refund record.
type RemoteRefund struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
}

// CreateOrder registers a payment intent with the gateway. The amount is in
// major currency units and is converted to minor units on the wire.
func (c *Client) CreateOrder(ctx context.Context, amount decimal.Decimal) (*RemoteOrder, error) {
	payload := map[string]interface{}{
		"amount":          amount.Mul(minorUnitFactor).Round(0).IntPart(),
		"currency":        c.currency,
		"receipt":         fmt.Sprintf("receipt_%s", uuid.New().String()[:8]),
		"payment_capture": 1,
	}

	var order RemoteOrder
	if err := c.do(ctx, http.MethodPost, "/orders", payload, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// FetchPayment retrieves a payment's current state from the gateway.
func (c *Client) FetchPayment(ctx context.Context, paymentID string) (*RemotePayment, error) {
	var payment RemotePayment
	if err := c.do(ctx, http.MethodGet, "/payments/"+paymentID, nil, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// RefundPayment initiates a refund. A zero amount refunds the full captured
// amount; a positive amount is converted to minor units on the wire.
func (c *Client) RefundPayment(ctx context.Context, paymentID string, amount decimal.Decimal, reason string) (*RemoteRefund, error) {
	payload := map[string]interface{}{
		"notes": map[string]string{"reason": reason},
	}
	if amount.GreaterThan(decimal.Zero) {
		payload["amount"] = amount.Mul(minorUnitFactor).Round(0).IntPart()
	}

	var refund RemoteRefund
	if err := c.do(ctx, http.MethodPost, "/payments/"+paymentID+"/refund", payload, &refund); err != nil {
		return nil, err
	}
	return &refund, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	var reqBody io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return nil
}

// KeyID returns the public key clients embed in their checkout widget.
func (c *Client) KeyID() string {
	return c.keyID
}

// VerifyPaymentSignature checks the client-supplied signature over
// "<gatewayOrderID>|<paymentID>" against the key secret.
func (c *Client) VerifyPaymentSignature(gatewayOrderID, paymentID, signature string) bool {
	expected := signHex(c.keySecret, []byte(gatewayOrderID+"|"+paymentID))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyWebhookSignature checks the header signature over the raw request
// body against the webhook secret.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	if c.webhookSecret == "" || signature == "" {
		return false
	}
	expected := signHex(c.webhookSecret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func signHex(secret string, data []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}
