package service

import (
	"context"
	"encoding/json"
	"fmt"

	"shop-order-service/internal/gateway"
	"shop-order-service/internal/models"
	"shop-order-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentService bridges orders and the payment gateway: intent creation,
// synchronous signature verification and asynchronous webhook handling.
type PaymentService struct {
	store     Store
	gateway   Gateway
	publisher Publisher
	logger    *zap.Logger
}

// NewPaymentService creates a new payment service. publisher may be nil.
func NewPaymentService(st Store, gw Gateway, publisher Publisher) *PaymentService {
	return &PaymentService{
		store:     st,
		gateway:   gw,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// GatewayOrderResponse is what the storefront needs to open the payment
// widget: the remote order plus the public key.
type GatewayOrderResponse struct {
	GatewayOrderID string `json:"gateway_order_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Key            string `json:"key"`
}

// CreateGatewayOrder registers a payment intent with the gateway. When an
// internal order id is supplied the remote id is attached to it so webhooks
// can find the order before any client-side confirmation arrives.
func (ps *PaymentService) CreateGatewayOrder(ctx context.Context, id Identity, amount decimal.Decimal, orderID int64) (*GatewayOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.CreateGatewayOrder")
	defer span.End()

	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("invalid amount")
	}

	if orderID != 0 {
		order, err := ps.store.GetOrderByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if !canAccessOrder(id, order, false) {
			return nil, ErrForbidden
		}
	}

	remote, err := ps.gateway.CreateOrder(ctx, amount)
	if err != nil {
		ps.logger.Error("Gateway order creation failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	if orderID != 0 {
		if err := ps.store.SetOrderGatewayOrderID(ctx, orderID, remote.ID); err != nil {
			ps.logger.Error("Failed to attach gateway order id",
				zap.Int64("order_id", orderID),
				zap.String("gateway_order_id", remote.ID),
				zap.Error(err))
		}
	}

	ps.logger.Info("Gateway order created",
		zap.String("gateway_order_id", remote.ID),
		zap.Int64("amount_minor", remote.Amount))

	return &GatewayOrderResponse{
		GatewayOrderID: remote.ID,
		Amount:         remote.Amount,
		Currency:       remote.Currency,
		Key:            ps.gateway.KeyID(),
	}, nil
}

// GetPaymentDetails fetches a payment's state from the gateway for the
// storefront's payment-status view.
func (ps *PaymentService) GetPaymentDetails(ctx context.Context, paymentID string) (*gateway.RemotePayment, error) {
	payment, err := ps.gateway.FetchPayment(ctx, paymentID)
	if err != nil {
		ps.logger.Error("Failed to fetch payment details",
			zap.String("payment_id", paymentID),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	return payment, nil
}

// Refund initiates a gateway refund. Admin only. A zero amount refunds the
// full captured amount.
func (ps *PaymentService) Refund(ctx context.Context, id Identity, paymentID string, amount decimal.Decimal, reason string) (*gateway.RemoteRefund, error) {
	if !id.IsAdmin() {
		return nil, ErrForbidden
	}
	if reason == "" {
		reason = "refund requested by admin"
	}

	refund, err := ps.gateway.RefundPayment(ctx, paymentID, amount, reason)
	if err != nil {
		util.RefundsTotal.WithLabelValues("failed").Inc()
		ps.logger.Error("Refund failed",
			zap.String("payment_id", paymentID),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	util.RefundsTotal.WithLabelValues("initiated").Inc()
	ps.logger.Info("Refund initiated",
		zap.String("payment_id", paymentID),
		zap.String("refund_id", refund.ID))
	return refund, nil
}

// VerifyAndConfirm is the synchronous confirmation path: the storefront
// submits the gateway order id, payment id and signature after the widget
// succeeds. A bad signature leaves the order untouched.
func (ps *PaymentService) VerifyAndConfirm(ctx context.Context, id Identity, orderID int64, gatewayOrderID, paymentID, signature string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.VerifyAndConfirm")
	defer span.End()

	if !ps.gateway.VerifyPaymentSignature(gatewayOrderID, paymentID, signature) {
		util.PaymentVerificationsTotal.WithLabelValues("invalid").Inc()
		return nil, ErrPaymentVerification
	}
	util.PaymentVerificationsTotal.WithLabelValues("valid").Inc()

	order, err := ps.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !canAccessOrder(id, order, false) {
		return nil, ErrForbidden
	}

	if order.GatewayOrderID == "" {
		if err := ps.store.SetOrderGatewayOrderID(ctx, orderID, gatewayOrderID); err != nil {
			ps.logger.Error("Failed to attach gateway order id", zap.Error(err))
		}
	}

	updated, err := ps.store.MarkOrderPaidTx(ctx, orderID, paymentID, signature)
	if err != nil {
		return nil, fmt.Errorf("failed to mark order paid: %w", err)
	}
	if updated {
		util.OrdersPaidTotal.Inc()
		ps.publishConfirmed(ctx, order.UserID, orderID, paymentID)
		ps.logger.Info("Payment verified",
			zap.Int64("order_id", orderID),
			zap.String("payment_id", paymentID))
	}

	return ps.store.GetOrderByID(ctx, orderID)
}

// ConfirmDirect is the owner-facing PUT /orders/:id/payment path. The order
// must already carry its gateway order id; the signature covers
// "<gatewayOrderID>|<paymentID>".
func (ps *PaymentService) ConfirmDirect(ctx context.Context, id Identity, orderID int64, paymentID, signature string) (*models.Order, error) {
	order, err := ps.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !canAccessOrder(id, order, false) {
		return nil, ErrForbidden
	}

	return ps.VerifyAndConfirm(ctx, id, orderID, order.GatewayOrderID, paymentID, signature)
}

// webhookEnvelope is the gateway's webhook body shape.
type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
			} `json:"entity"`
		} `json:"payment"`
		Order struct {
			Entity struct {
				ID string `json:"id"`
			} `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

// HandleWebhook processes a gateway webhook delivery. The signature covers
// the raw body; a mismatch rejects the event without touching any order.
// Every mutation is idempotent because gateways redeliver events.
func (ps *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandleWebhook")
	defer span.End()

	if !ps.gateway.VerifyWebhookSignature(body, signature) {
		util.WebhookEventsTotal.WithLabelValues("unknown", "invalid_signature").Inc()
		return ErrPaymentVerification
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		util.WebhookEventsTotal.WithLabelValues("unknown", "malformed").Inc()
		return fmt.Errorf("malformed webhook payload: %w", err)
	}

	switch envelope.Event {
	case "payment.captured":
		payment := envelope.Payload.Payment.Entity
		ps.handleCaptured(ctx, envelope.Event, payment.OrderID, payment.ID)

	case "payment.failed":
		payment := envelope.Payload.Payment.Entity
		ps.handleFailed(ctx, payment.OrderID)

	case "order.paid":
		ps.handleCaptured(ctx, envelope.Event, envelope.Payload.Order.Entity.ID, "")

	default:
		// Unknown events are acknowledged and ignored so the gateway
		// stops retrying them.
		util.WebhookEventsTotal.WithLabelValues("other", "ignored").Inc()
		ps.logger.Info("Ignoring webhook event", zap.String("event", envelope.Event))
	}

	return nil
}

func (ps *PaymentService) handleCaptured(ctx context.Context, event, gatewayOrderID, paymentID string) {
	updated, err := ps.store.MarkOrderPaidByGatewayOrderTx(ctx, gatewayOrderID, paymentID)
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues(event, "error").Inc()
		ps.logger.Error("Failed to apply captured payment",
			zap.String("gateway_order_id", gatewayOrderID),
			zap.Error(err))
		return
	}
	if !updated {
		// Redelivery for an already-paid order, or no matching order.
		util.WebhookEventsTotal.WithLabelValues(event, "noop").Inc()
		return
	}

	util.WebhookEventsTotal.WithLabelValues(event, "applied").Inc()
	util.OrdersPaidTotal.Inc()

	if order, err := ps.store.GetOrderByGatewayOrderID(ctx, gatewayOrderID); err == nil {
		ps.publishConfirmed(ctx, order.UserID, order.ID, paymentID)
		ps.logger.Info("Payment captured via webhook", zap.Int64("order_id", order.ID))
	}
}

func (ps *PaymentService) handleFailed(ctx context.Context, gatewayOrderID string) {
	updated, err := ps.store.MarkOrderPaymentFailedByGatewayOrder(ctx, gatewayOrderID, "gateway reported payment failure")
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues("payment.failed", "error").Inc()
		ps.logger.Error("Failed to flag failed payment",
			zap.String("gateway_order_id", gatewayOrderID),
			zap.Error(err))
		return
	}
	if !updated {
		util.WebhookEventsTotal.WithLabelValues("payment.failed", "noop").Inc()
		return
	}

	util.WebhookEventsTotal.WithLabelValues("payment.failed", "applied").Inc()

	if ps.publisher != nil {
		if order, err := ps.store.GetOrderByGatewayOrderID(ctx, gatewayOrderID); err == nil {
			event := &models.PaymentFailedEvent{
				BaseEvent:      newBaseEvent(models.EventTypePaymentFailed),
				OrderID:        order.ID,
				GatewayOrderID: gatewayOrderID,
				Reason:         "gateway reported payment failure",
			}
			if err := ps.publisher.PublishPaymentFailed(ctx, event); err != nil {
				ps.logger.Error("Failed to publish PaymentFailed event", zap.Error(err))
			}
		}
	}
}

func (ps *PaymentService) publishConfirmed(ctx context.Context, userID, orderID int64, paymentID string) {
	if ps.publisher == nil {
		return
	}
	event := &models.OrderConfirmedEvent{
		BaseEvent:        newBaseEvent(models.EventTypeOrderConfirmed),
		OrderID:          orderID,
		UserID:           userID,
		GatewayPaymentID: paymentID,
	}
	if err := ps.publisher.PublishOrderConfirmed(ctx, event); err != nil {
		ps.logger.Error("Failed to publish OrderConfirmed event", zap.Error(err))
	}
}
