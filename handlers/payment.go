package handlers

import (
	"context"
	"net/http"

	"github.com/desietsy/desietsy-backend-go/middleware"
	"github.com/desietsy/desietsy-backend-go/models"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PaymentService interface {
	CreateIntent(ctx context.Context, buyerID primitive.ObjectID, amount float64) (*models.PaymentIntent, error)
	Verify(ctx context.Context, buyerID primitive.ObjectID, gatewayOrderID, paymentID, signature string) (*models.PaymentIntent, error)
}

type PaymentHandler struct {
	payments PaymentService
	keyID    string
}

func NewPaymentHandler(p PaymentService, keyID string) *PaymentHandler {
	return &PaymentHandler{payments: p, keyID: keyID}
}

func (h *PaymentHandler) CreatePaymentOrder(c echo.Context) error {
	var req struct {
		Amount *float64 `json:"amount"`
	}
	if err := c.Bind(&req); err != nil || req.Amount == nil {
		return badRequest(c, "Valid amount is required")
	}

	userID, _ := middleware.CurrentUserID(c)
	intent, err := h.payments.CreateIntent(c.Request().Context(), userID, *req.Amount)
	if err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"id":             intent.GatewayOrderID,
		"gatewayOrderId": intent.GatewayOrderID,
		"amount":         intent.AmountMinor,
		"currency":       intent.Currency,
		"receipt":        intent.Receipt,
		"keyId":          h.keyID,
	})
}

type verifyPaymentRequest struct {
	GatewayOrderID string `json:"gatewayOrderId"`
	PaymentID      string `json:"paymentId"`
	Signature      string `json:"signature"`

	// Field names used by the Razorpay checkout handler.
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
}

func (h *PaymentHandler) VerifyPayment(c echo.Context) error {
	var req verifyPaymentRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}

	userID, _ := middleware.CurrentUserID(c)
	intent, err := h.payments.Verify(
		c.Request().Context(),
		userID,
		firstNonEmpty(req.GatewayOrderID, req.RazorpayOrderID),
		firstNonEmpty(req.PaymentID, req.RazorpayPaymentID),
		firstNonEmpty(req.Signature, req.RazorpaySignature),
	)
	if err != nil {
		return respondError(c, err, http.StatusConflict)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":         string(intent.Status),
		"gatewayOrderId": intent.GatewayOrderID,
	})
}
