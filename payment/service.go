package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/desietsy/desietsy-backend-go/logging"
	"github.com/desietsy/desietsy-backend-go/metrics"
	"github.com/desietsy/desietsy-backend-go/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Gateway interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*GatewayOrder, error)
}

type IntentStore interface {
	Insert(ctx context.Context, intent *models.PaymentIntent) error
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.PaymentIntent, error)
	Transition(ctx context.Context, gatewayOrderID string, from []models.IntentStatus, to models.IntentStatus, extra bson.M) (*models.PaymentIntent, error)
	ListStale(ctx context.Context, status models.IntentStatus, field string, before time.Time, limit int64) ([]models.PaymentIntent, error)
}

type Config struct {
	KeySecret string
	Currency  string
	IntentTTL time.Duration
}

type Service struct {
	gateway Gateway
	intents IntentStore
	cfg     Config
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(gateway Gateway, intents IntentStore, cfg Config, m *metrics.Metrics) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.IntentTTL <= 0 {
		cfg.IntentTTL = 30 * time.Minute
	}
	return &Service{gateway: gateway, intents: intents, cfg: cfg, metrics: m, now: time.Now}
}

// ToMinor converts a major-unit amount to minor units, rounding half away
// from zero.
func ToMinor(amount float64) int64 {
	return decimal.NewFromFloat(amount).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func newReceipt() string {
	// Razorpay caps receipts at 40 characters.
	return "receipt_order_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

// CreateIntent opens a gateway order for amount (major units) and records it
// as a created intent.
func (s *Service) CreateIntent(ctx context.Context, buyerID primitive.ObjectID, amount float64) (*models.PaymentIntent, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return nil, fmt.Errorf("%w: valid amount is required", models.ErrValidation)
	}
	minor := ToMinor(amount)
	if minor < 1 {
		return nil, fmt.Errorf("%w: valid amount is required", models.ErrValidation)
	}

	receipt := newReceipt()
	order, err := s.gateway.CreateOrder(ctx, minor, s.cfg.Currency, receipt)
	if err != nil {
		if !errors.Is(err, models.ErrDependency) {
			err = fmt.Errorf("%w: %v", models.ErrDependency, err)
		}
		return nil, err
	}

	now := s.now()
	intent := &models.PaymentIntent{
		GatewayOrderID: order.ID,
		BuyerID:        buyerID,
		Amount:         amount,
		AmountMinor:    order.Amount,
		Currency:       order.Currency,
		Receipt:        receipt,
		Status:         models.IntentCreated,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.cfg.IntentTTL),
		UpdatedAt:      now,
	}
	if err := s.intents.Insert(ctx, intent); err != nil {
		return nil, fmt.Errorf("record payment intent: %w", err)
	}

	s.metrics.IntentCreated()
	logging.FromContext(ctx).Info("payment intent created",
		"gateway_order_id", intent.GatewayOrderID,
		"amount_minor", intent.AmountMinor,
		"currency", intent.Currency,
	)
	return intent, nil
}

// Verify checks the checkout signature and marks buyerID's intent captured.
// Repeating a successful verification returns the same intent.
func (s *Service) Verify(ctx context.Context, buyerID primitive.ObjectID, gatewayOrderID, paymentID, signature string) (*models.PaymentIntent, error) {
	if gatewayOrderID == "" || paymentID == "" || signature == "" {
		return nil, fmt.Errorf("%w: gatewayOrderId, paymentId and signature are required", models.ErrValidation)
	}
	if !VerifySignature(s.cfg.KeySecret, gatewayOrderID, paymentID, signature) {
		logging.FromContext(ctx).Warn("payment signature mismatch", "gateway_order_id", gatewayOrderID, "payment_id", paymentID)
		return nil, fmt.Errorf("%w: invalid payment signature", models.ErrValidation)
	}

	existing, err := s.intents.FindByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(existing, buyerID); err != nil {
		return nil, err
	}

	now := s.now()
	// A late payment on an expired intent is still money received.
	intent, err := s.intents.Transition(ctx, gatewayOrderID,
		[]models.IntentStatus{models.IntentCreated, models.IntentExpired},
		models.IntentCaptured,
		bson.M{"paymentId": paymentID, "capturedAt": now},
	)
	if err == nil {
		logging.FromContext(ctx).Info("payment captured", "gateway_order_id", gatewayOrderID, "payment_id", paymentID)
		return intent, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	if existing, err = s.intents.FindByGatewayOrderID(ctx, gatewayOrderID); err != nil {
		return nil, err
	}
	if existing.PaymentID == paymentID {
		return existing, nil
	}
	return nil, fmt.Errorf("%w: payment intent is %s", models.ErrInvalidState, existing.Status)
}

// checkOwner rejects an intent opened by a different buyer.
func checkOwner(intent *models.PaymentIntent, buyerID primitive.ObjectID) error {
	if intent.BuyerID == buyerID {
		return nil
	}
	return fmt.Errorf("%w: payment %s belongs to another buyer", models.ErrConflict, intent.GatewayOrderID)
}

// CapturedIntent returns buyerID's intent if its payment was captured and no
// order consumed it yet.
func (s *Service) CapturedIntent(ctx context.Context, gatewayOrderID string, buyerID primitive.ObjectID) (*models.PaymentIntent, error) {
	intent, err := s.intents.FindByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown payment %s", models.ErrValidation, gatewayOrderID)
		}
		return nil, err
	}
	if err := checkOwner(intent, buyerID); err != nil {
		return nil, err
	}
	switch intent.Status {
	case models.IntentCaptured, models.IntentOrphaned:
		return intent, nil
	default:
		return nil, fmt.Errorf("%w: payment %s is %s, not captured", models.ErrValidation, gatewayOrderID, intent.Status)
	}
}

// LinkOrder records that orderID consumed the payment.
func (s *Service) LinkOrder(ctx context.Context, gatewayOrderID string, orderID primitive.ObjectID) error {
	_, err := s.intents.Transition(ctx, gatewayOrderID,
		[]models.IntentStatus{models.IntentCaptured, models.IntentOrphaned},
		models.IntentFulfilled,
		bson.M{"orderId": orderID},
	)
	return err
}
