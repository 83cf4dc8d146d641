package payment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/desietsy/desietsy-backend-go/events"
	"github.com/desietsy/desietsy-backend-go/metrics"
	"github.com/desietsy/desietsy-backend-go/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const sweepBatch = 100

type OrderLookup interface {
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error)
}

// Reconciler flags money captured without an order and expires intents the
// buyer never paid.
type Reconciler struct {
	intents IntentStore
	orders  OrderLookup
	events  events.Publisher
	metrics *metrics.Metrics
	log     *slog.Logger
	grace   time.Duration
	now     func() time.Time
}

type Report struct {
	Linked   int
	Orphaned int
	Expired  int
}

func NewReconciler(intents IntentStore, orders OrderLookup, pub events.Publisher, m *metrics.Metrics, log *slog.Logger, grace time.Duration) *Reconciler {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Reconciler{
		intents: intents,
		orders:  orders,
		events:  pub,
		metrics: m,
		log:     log.With("component", "reconciler"),
		grace:   grace,
		now:     time.Now,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.log.Info("reconciler started", "interval", interval.String(), "grace", r.grace.String())
	for {
		select {
		case <-ctx.Done():
			r.log.Info("reconciler stopped")
			return
		case <-ticker.C:
			rep, err := r.Sweep(ctx)
			if err != nil {
				r.log.Error("reconcile sweep failed", "error", err)
				continue
			}
			if rep != (Report{}) {
				r.log.Info("reconcile sweep", "linked", rep.Linked, "orphaned", rep.Orphaned, "expired", rep.Expired)
			}
		}
	}
}

func (r *Reconciler) Sweep(ctx context.Context) (Report, error) {
	var rep Report
	now := r.now()

	captured, err := r.intents.ListStale(ctx, models.IntentCaptured, "capturedAt", now.Add(-r.grace), sweepBatch)
	if err != nil {
		return rep, err
	}
	for _, in := range captured {
		order, err := r.orders.FindByGatewayOrderID(ctx, in.GatewayOrderID)
		switch {
		case err == nil:
			if _, err := r.intents.Transition(ctx, in.GatewayOrderID,
				[]models.IntentStatus{models.IntentCaptured}, models.IntentFulfilled,
				bson.M{"orderId": order.ID},
			); err != nil && !errors.Is(err, models.ErrNotFound) {
				return rep, err
			}
			rep.Linked++
			r.metrics.IntentReconciled("linked")
		case errors.Is(err, models.ErrNotFound):
			moved, err := r.settle(ctx, in, models.IntentCaptured, models.IntentOrphaned, events.PaymentOrphaned)
			if err != nil {
				return rep, err
			}
			if !moved {
				continue
			}
			r.log.Error("payment captured without order",
				"gateway_order_id", in.GatewayOrderID,
				"payment_id", in.PaymentID,
				"amount", in.Amount,
				"buyer_id", hexOrEmpty(in.BuyerID),
			)
			rep.Orphaned++
		default:
			return rep, err
		}
	}

	stale, err := r.intents.ListStale(ctx, models.IntentCreated, "expiresAt", now, sweepBatch)
	if err != nil {
		return rep, err
	}
	for _, in := range stale {
		moved, err := r.settle(ctx, in, models.IntentCreated, models.IntentExpired, events.PaymentExpired)
		if err != nil {
			return rep, err
		}
		if moved {
			rep.Expired++
		}
	}
	return rep, nil
}

func (r *Reconciler) settle(ctx context.Context, in models.PaymentIntent, from, to models.IntentStatus, eventType string) (bool, error) {
	updated, err := r.intents.Transition(ctx, in.GatewayOrderID, []models.IntentStatus{from}, to, nil)
	if errors.Is(err, models.ErrNotFound) {
		// Moved on since it was listed.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	r.metrics.IntentReconciled(string(to))
	if err := r.events.Publish(ctx, events.New(eventType, updated.GatewayOrderID, updated)); err != nil {
		r.log.Error("publish payment event", "type", eventType, "gateway_order_id", updated.GatewayOrderID, "error", err)
	}
	return true, nil
}

func hexOrEmpty(id primitive.ObjectID) string {
	if id.IsZero() {
		return ""
	}
	return id.Hex()
}
