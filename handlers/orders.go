package handlers

import (
	"context"
	"net/http"

	"github.com/desietsy/desietsy-backend-go/ledger"
	"github.com/desietsy/desietsy-backend-go/middleware"
	"github.com/desietsy/desietsy-backend-go/models"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OrderLedger interface {
	Create(ctx context.Context, in ledger.CreateInput) (*models.Order, error)
	Get(ctx context.Context, id string) (*models.Order, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]models.OrderView, error)
	ListBySeller(ctx context.Context, sellerID string) ([]models.OrderView, error)
	AdvanceStatus(ctx context.Context, id string, status models.FulfillmentStatus) (*models.Order, error)
	Cancel(ctx context.Context, id string) (*models.Order, error)
}

type OrderHandler struct {
	ledger OrderLedger
}

func NewOrderHandler(l OrderLedger) *OrderHandler {
	return &OrderHandler{ledger: l}
}

// CreateOrderRequest accepts both the current field names and the ones older
// clients send.
type CreateOrderRequest struct {
	BuyerID         string              `json:"buyerId"`
	UserID          string              `json:"userId"`
	LineItems       []ledger.ItemInput  `json:"lineItems"`
	Items           []ledger.ItemInput  `json:"items"`
	TotalAmount     *float64            `json:"totalAmount"`
	Total           *float64            `json:"total"`
	DeliveryAddress string              `json:"deliveryAddress"`
	Address         string              `json:"address"`
	PaymentState    models.PaymentState `json:"paymentState"`
	PaymentStatus   models.PaymentState `json:"paymentStatus"`
	GatewayOrderID  string              `json:"gatewayOrderId"`
}

func (r CreateOrderRequest) input() ledger.CreateInput {
	in := ledger.CreateInput{
		BuyerID:         firstNonEmpty(r.BuyerID, r.UserID),
		Items:           r.LineItems,
		DeliveryAddress: firstNonEmpty(r.DeliveryAddress, r.Address),
		PaymentState:    models.PaymentState(firstNonEmpty(string(r.PaymentState), string(r.PaymentStatus))),
		GatewayOrderID:  r.GatewayOrderID,
	}
	if len(in.Items) == 0 {
		in.Items = r.Items
	}
	switch {
	case r.TotalAmount != nil:
		in.TotalAmount = *r.TotalAmount
	case r.Total != nil:
		in.TotalAmount = *r.Total
	}
	return in
}

func (h *OrderHandler) CreateOrder(c echo.Context) error {
	var req CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}

	userID, _ := middleware.CurrentUserID(c)
	in := req.input()
	if in.BuyerID == "" {
		in.BuyerID = userID.Hex()
	}
	if in.BuyerID != userID.Hex() && middleware.CurrentRole(c) != models.RoleAdmin {
		return forbidden(c)
	}

	order, err := h.ledger.Create(c.Request().Context(), in)
	if err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message": "Order placed",
		"order":   order,
	})
}

func (h *OrderHandler) GetOrder(c echo.Context) error {
	order, err := h.ledger.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}
	if !canView(c, order) {
		return forbidden(c)
	}
	return c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) GetBuyerOrders(c echo.Context) error {
	buyerID := c.Param("buyerId")
	if !isSelfOrAdmin(c, buyerID) {
		return forbidden(c)
	}
	orders, err := h.ledger.ListByBuyer(c.Request().Context(), buyerID)
	if err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}
	return c.JSON(http.StatusOK, orders)
}

func (h *OrderHandler) GetSellerOrders(c echo.Context) error {
	sellerID := c.Param("sellerId")
	if !isSelfOrAdmin(c, sellerID) {
		return forbidden(c)
	}
	orders, err := h.ledger.ListBySeller(c.Request().Context(), sellerID)
	if err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}
	return c.JSON(http.StatusOK, orders)
}

func (h *OrderHandler) UpdateOrderStatus(c echo.Context) error {
	var req struct {
		Status models.FulfillmentStatus `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}

	ctx := c.Request().Context()
	current, err := h.ledger.Get(ctx, c.Param("id"))
	if err != nil {
		return respondError(c, err, http.StatusConflict)
	}
	userID, _ := middleware.CurrentUserID(c)
	if middleware.CurrentRole(c) != models.RoleAdmin && !current.HasSeller(userID) {
		return forbidden(c)
	}

	order, err := h.ledger.AdvanceStatus(ctx, c.Param("id"), req.Status)
	if err != nil {
		return respondError(c, err, http.StatusConflict)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "Order status updated",
		"order":   order,
	})
}

func (h *OrderHandler) CancelOrder(c echo.Context) error {
	ctx := c.Request().Context()
	current, err := h.ledger.Get(ctx, c.Param("id"))
	if err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}
	userID, _ := middleware.CurrentUserID(c)
	if middleware.CurrentRole(c) != models.RoleAdmin && current.BuyerID != userID {
		return forbidden(c)
	}

	order, err := h.ledger.Cancel(ctx, c.Param("id"))
	if err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "Order cancelled",
		"order":   order,
	})
}

func canView(c echo.Context, order *models.Order) bool {
	if middleware.CurrentRole(c) == models.RoleAdmin {
		return true
	}
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		return false
	}
	return order.BuyerID == userID || order.HasSeller(userID)
}

func isSelfOrAdmin(c echo.Context, id string) bool {
	if middleware.CurrentRole(c) == models.RoleAdmin {
		return true
	}
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		return false
	}
	oid, err := primitive.ObjectIDFromHex(id)
	return err == nil && oid == userID
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
