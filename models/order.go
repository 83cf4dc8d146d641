package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PaymentState string

const (
	PaymentPending PaymentState = "Pending"
	PaymentPaid    PaymentState = "Paid"
)

func (p PaymentState) Valid() bool {
	return p == PaymentPending || p == PaymentPaid
}

type FulfillmentStatus string

const (
	StatusPlaced         FulfillmentStatus = "Placed"
	StatusProcessing     FulfillmentStatus = "Processing"
	StatusShipped        FulfillmentStatus = "Shipped"
	StatusOutForDelivery FulfillmentStatus = "Out for Delivery"
	StatusDelivered      FulfillmentStatus = "Delivered"
	StatusCancelled      FulfillmentStatus = "Cancelled"
)

// FulfillmentSequence is the conventional forward order of statuses.
// Cancelled sits outside the sequence.
var FulfillmentSequence = []FulfillmentStatus{
	StatusPlaced,
	StatusProcessing,
	StatusShipped,
	StatusOutForDelivery,
	StatusDelivered,
}

// TerminalStatuses can never be left once reached.
var TerminalStatuses = []FulfillmentStatus{StatusDelivered, StatusCancelled}

func (s FulfillmentStatus) Valid() bool {
	return s == StatusCancelled || s.Rank() >= 0
}

func (s FulfillmentStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Rank is the position of s in FulfillmentSequence, or -1.
func (s FulfillmentStatus) Rank() int {
	for i, st := range FulfillmentSequence {
		if st == s {
			return i
		}
	}
	return -1
}

// Next returns the status following s, if any.
func (s FulfillmentStatus) Next() (FulfillmentStatus, bool) {
	r := s.Rank()
	if r < 0 || r+1 >= len(FulfillmentSequence) {
		return "", false
	}
	return FulfillmentSequence[r+1], true
}

type LineItem struct {
	ProductID primitive.ObjectID `bson:"productId" json:"productId"`
	Quantity  int                `bson:"quantity" json:"quantity"`
	SellerID  primitive.ObjectID `bson:"artisan" json:"artisan"`
}

type Order struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	BuyerID        primitive.ObjectID `bson:"user" json:"user"`
	Items          []LineItem         `bson:"items" json:"items"`
	Total          float64            `bson:"total" json:"total"`
	PaymentState   PaymentState       `bson:"paymentStatus" json:"paymentStatus"`
	Status         FulfillmentStatus  `bson:"status" json:"status"`
	Address        string             `bson:"address" json:"address"`
	GatewayOrderID string             `bson:"gatewayOrderId,omitempty" json:"gatewayOrderId,omitempty"`
	PlacedAt       time.Time          `bson:"placedAt" json:"placedAt"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// HasSeller reports whether any line of the order belongs to sellerID.
func (o *Order) HasSeller(sellerID primitive.ObjectID) bool {
	for _, it := range o.Items {
		if it.SellerID == sellerID {
			return true
		}
	}
	return false
}

// ResolvedLine is a line item joined with the product's current listing.
// The snapshot may have drifted since the order was placed.
type ResolvedLine struct {
	LineItem
	Product *Product `json:"product,omitempty"`
}

// OrderView is an order prepared for display to a buyer or a seller.
type OrderView struct {
	Order
	Items []ResolvedLine `json:"items"`
	Buyer *UserSummary   `json:"buyer,omitempty"`
}
