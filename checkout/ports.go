package checkout

import (
	"context"

	"github.com/desietsy/desietsy-backend-go/models"
	"github.com/shopspring/decimal"
)

type LineItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// OrderRequest is what the client asserts about a new order. The server
// derives sellers and recomputes the total.
type OrderRequest struct {
	BuyerID         string              `json:"buyerId"`
	Items           []LineItem          `json:"items"`
	TotalAmount     float64             `json:"totalAmount"`
	DeliveryAddress string              `json:"deliveryAddress"`
	PaymentState    models.PaymentState `json:"paymentState"`
	GatewayOrderID  string              `json:"gatewayOrderId,omitempty"`
}

type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (*models.Order, error)
}

// Intent is a gateway order awaiting payment. Amount is in minor units.
type Intent struct {
	GatewayOrderID string `json:"gatewayOrderId"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Receipt        string `json:"receipt,omitempty"`
}

// PaymentConfirmation is what the gateway widget hands back on success.
type PaymentConfirmation struct {
	GatewayOrderID string `json:"gatewayOrderId"`
	PaymentID      string `json:"paymentId"`
	Signature      string `json:"signature"`
}

type PaymentGateway interface {
	CreateIntent(ctx context.Context, amount decimal.Decimal) (*Intent, error)
	VerifyPayment(ctx context.Context, conf PaymentConfirmation) error
}

type Prefill struct {
	Name    string
	Email   string
	Contact string
}

type WidgetRequest struct {
	Intent  Intent
	Prefill Prefill
	Address string
}

// Widget runs the gateway's interactive payment flow. onComplete may be
// called from any goroutine, at any time, more than once, or never.
type Widget interface {
	Open(ctx context.Context, req WidgetRequest, onComplete func(PaymentConfirmation)) error
}

type ConfirmationItem struct {
	Title    string  `json:"title"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

type Confirmation struct {
	OrderID       string             `json:"orderId"`
	BuyerEmail    string             `json:"customerEmail"`
	BuyerName     string             `json:"customerName"`
	Items         []ConfirmationItem `json:"items"`
	TotalAmount   float64            `json:"totalAmount"`
	PaymentMethod string             `json:"paymentMethod"`
}

type Notifier interface {
	SendOrderConfirmation(ctx context.Context, c Confirmation) error
}
