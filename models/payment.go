package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type IntentStatus string

const (
	IntentCreated   IntentStatus = "created"
	IntentCaptured  IntentStatus = "captured"
	IntentFulfilled IntentStatus = "fulfilled"
	IntentExpired   IntentStatus = "expired"
	IntentOrphaned  IntentStatus = "orphaned"
)

// PaymentIntent records one gateway order. GatewayOrderID is the idempotency
// key tying a captured payment to at most one Order.
type PaymentIntent struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	GatewayOrderID string             `bson:"gatewayOrderId" json:"gatewayOrderId"`
	BuyerID        primitive.ObjectID `bson:"buyer,omitempty" json:"buyer,omitempty"`
	Amount         float64            `bson:"amount" json:"amount"`
	AmountMinor    int64              `bson:"amountMinor" json:"amountMinor"`
	Currency       string             `bson:"currency" json:"currency"`
	Receipt        string             `bson:"receipt" json:"receipt"`
	Status         IntentStatus       `bson:"status" json:"status"`
	PaymentID      string             `bson:"paymentId,omitempty" json:"paymentId,omitempty"`
	OrderID        primitive.ObjectID `bson:"orderId,omitempty" json:"orderId,omitempty"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
	CapturedAt     *time.Time         `bson:"capturedAt,omitempty" json:"capturedAt,omitempty"`
	ExpiresAt      time.Time          `bson:"expiresAt" json:"expiresAt"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updatedAt"`
}
