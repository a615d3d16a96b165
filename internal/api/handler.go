package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"shop-order-service/internal/service"
	"shop-order-service/internal/store"
	"shop-order-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Handler contains HTTP handlers
type Handler struct {
	cartService    *service.CartService
	orderService   *service.OrderService
	paymentService *service.PaymentService
	catalogService *service.CatalogService
}

// NewHandler creates a new HTTP handler
func NewHandler(
	cartService *service.CartService,
	orderService *service.OrderService,
	paymentService *service.PaymentService,
	catalogService *service.CatalogService,
) *Handler {
	return &Handler{
		cartService:    cartService,
		orderService:   orderService,
		paymentService: paymentService,
		catalogService: catalogService,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")

	// Authenticated only by its header signature, so outside the
	// identity middleware.
	v1.POST("/payment/webhook", h.paymentWebhook)

	authed := v1.Group("")
	authed.Use(identityMiddleware())
	{
		authed.GET("/products", h.listProducts)
		authed.GET("/products/:id", h.getProduct)
		authed.PUT("/products/:id/stock", h.setProductStock)

		authed.GET("/cart", h.getCart)
		authed.POST("/cart/items", h.addCartItem)
		authed.PUT("/cart/items/:id", h.updateCartItem)
		authed.DELETE("/cart/items/:id", h.removeCartItem)
		authed.DELETE("/cart", h.clearCart)

		authed.POST("/orders", h.createOrder)
		authed.GET("/orders", h.listOrders)
		authed.GET("/orders/:id", h.getOrder)
		authed.PUT("/orders/:id/cancel", h.cancelOrder)
		authed.PUT("/orders/:id/payment", h.updateOrderPayment)
		authed.PUT("/orders/:id/status", h.setOrderStatus)
		authed.PUT("/orders/:id/deliver", h.markOrderDelivered)

		authed.POST("/payment/create-order", h.createGatewayOrder)
		authed.POST("/payment/verify", h.verifyPayment)
		authed.POST("/payment/cod", h.codCheckout)
		authed.POST("/payment/refund", h.refundPayment)
		authed.GET("/payment/:id", h.getPaymentDetails)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// --- catalog ---

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.catalogService.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": products})
}

func (h *Handler) getProduct(c *gin.Context) {
	productID, ok := pathID(c)
	if !ok {
		return
	}

	product, err := h.catalogService.Get(c.Request.Context(), productID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": product})
}

type setStockRequest struct {
	Stock *int `json:"stock" binding:"required,min=0"`
}

func (h *Handler) setProductStock(c *gin.Context) {
	productID, ok := pathID(c)
	if !ok {
		return
	}

	var req setStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	product, err := h.catalogService.SetStock(c.Request.Context(), callerIdentity(c), productID, *req.Stock)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Stock updated", "data": product})
}

// --- cart ---

func (h *Handler) getCart(c *gin.Context) {
	id := callerIdentity(c)
	view, err := h.cartService.Get(c.Request.Context(), id.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

type addCartItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity"`
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req addCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	id := callerIdentity(c)
	view, err := h.cartService.AddItem(c.Request.Context(), id.UserID, req.ProductID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Item added to cart", "data": view})
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity" binding:"required,min=1"`
}

func (h *Handler) updateCartItem(c *gin.Context) {
	itemID, ok := pathID(c)
	if !ok {
		return
	}

	var req updateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	id := callerIdentity(c)
	view, err := h.cartService.UpdateItem(c.Request.Context(), id.UserID, itemID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cart updated", "data": view})
}

func (h *Handler) removeCartItem(c *gin.Context) {
	itemID, ok := pathID(c)
	if !ok {
		return
	}

	id := callerIdentity(c)
	view, err := h.cartService.RemoveItem(c.Request.Context(), id.UserID, itemID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Item removed from cart", "data": view})
}

func (h *Handler) clearCart(c *gin.Context) {
	id := callerIdentity(c)
	if err := h.cartService.Clear(c.Request.Context(), id.UserID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cart cleared"})
}

// --- orders ---

func (h *Handler) createOrder(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	detail, err := h.orderService.Checkout(c.Request.Context(), callerIdentity(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Order created", "data": detail})
}

func (h *Handler) listOrders(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	status := c.Query("status")

	pageResp, err := h.orderService.List(c.Request.Context(), callerIdentity(c), status, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": pageResp})
}

func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	detail, err := h.orderService.Get(c.Request.Context(), callerIdentity(c), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": detail})
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	var req cancelOrderRequest
	_ = c.ShouldBindJSON(&req)

	order, err := h.orderService.Cancel(c.Request.Context(), callerIdentity(c), orderID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order cancelled", "data": order})
}

type orderPaymentRequest struct {
	PaymentID string `json:"payment_id" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

func (h *Handler) updateOrderPayment(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	var req orderPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	order, err := h.paymentService.ConfirmDirect(c.Request.Context(), callerIdentity(c), orderID, req.PaymentID, req.Signature)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Payment updated", "data": order})
}

type setStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Note   string `json:"note"`
}

func (h *Handler) setOrderStatus(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	order, err := h.orderService.SetStatus(c.Request.Context(), callerIdentity(c), orderID, req.Status, req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Status updated", "data": order})
}

func (h *Handler) markOrderDelivered(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	order, err := h.orderService.MarkDelivered(c.Request.Context(), callerIdentity(c), orderID, "")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order delivered", "data": order})
}

// --- payment ---

type createGatewayOrderRequest struct {
	Amount  decimal.Decimal `json:"amount" binding:"required"`
	OrderID int64           `json:"order_id"`
}

func (h *Handler) createGatewayOrder(c *gin.Context) {
	var req createGatewayOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	resp, err := h.paymentService.CreateGatewayOrder(c.Request.Context(), callerIdentity(c), req.Amount, req.OrderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type verifyPaymentRequest struct {
	OrderID        int64  `json:"order_id" binding:"required"`
	GatewayOrderID string `json:"gateway_order_id" binding:"required"`
	PaymentID      string `json:"payment_id" binding:"required"`
	Signature      string `json:"signature" binding:"required"`
}

func (h *Handler) verifyPayment(c *gin.Context) {
	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	order, err := h.paymentService.VerifyAndConfirm(c.Request.Context(), callerIdentity(c),
		req.OrderID, req.GatewayOrderID, req.PaymentID, req.Signature)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Payment verified", "data": order})
}

func (h *Handler) getPaymentDetails(c *gin.Context) {
	paymentID := c.Param("id")
	if paymentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Payment id required"})
		return
	}

	payment, err := h.paymentService.GetPaymentDetails(c.Request.Context(), paymentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": payment})
}

type refundRequest struct {
	PaymentID string          `json:"payment_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
}

func (h *Handler) refundPayment(c *gin.Context) {
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	refund, err := h.paymentService.Refund(c.Request.Context(), callerIdentity(c), req.PaymentID, req.Amount, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Refund initiated", "data": refund})
}

func (h *Handler) paymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unable to read body"})
		return
	}

	signature := c.GetHeader("X-Razorpay-Signature")
	if err := h.paymentService.HandleWebhook(c.Request.Context(), body, signature); err != nil {
		// Invalid signatures and malformed payloads get a 400; the
		// gateway will not retry them.
		c.JSON(http.StatusBadRequest, gin.H{"error": "Webhook rejected"})
		return
	}

	// Always 200 quickly on accepted events or the gateway retries.
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) codCheckout(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	req.CashOnDelivery = true

	detail, err := h.orderService.Checkout(c.Request.Context(), callerIdentity(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "COD order placed", "data": detail})
}

// --- plumbing ---

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return 0, false
	}
	return id, true
}

// respondError maps the service error taxonomy to HTTP status codes.
func respondError(c *gin.Context, err error) {
	var (
		unavailable *service.ProductUnavailableError
		stock       *service.InsufficientStockError
		mismatch    *service.PriceMismatchError
		transition  *service.InvalidTransitionError
	)

	switch {
	case errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrPaymentVerification),
		errors.As(err, &unavailable),
		errors.As(err, &stock),
		errors.As(err, &mismatch),
		errors.As(err, &transition):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})

	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})

	case errors.Is(err, service.ErrGateway):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Payment gateway unavailable"})

	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
