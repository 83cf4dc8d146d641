package payment

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/desietsy/desietsy-backend-go/events"
	"github.com/desietsy/desietsy-backend-go/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type orderIndex map[string]models.Order

func (o orderIndex) FindByGatewayOrderID(_ context.Context, gid string) (*models.Order, error) {
	order, ok := o[gid]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &order, nil
}

type capture struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *capture) Publish(_ context.Context, ev events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func TestSweep(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	old := now.Add(-time.Hour)
	recent := now.Add(-time.Minute)

	store := newMemIntents()
	seed := []models.PaymentIntent{
		{GatewayOrderID: "order_orphan", Status: models.IntentCaptured, CapturedAt: &old, PaymentID: "pay_1", Amount: 300},
		{GatewayOrderID: "order_linked", Status: models.IntentCaptured, CapturedAt: &old},
		{GatewayOrderID: "order_fresh", Status: models.IntentCaptured, CapturedAt: &recent},
		{GatewayOrderID: "order_stale", Status: models.IntentCreated, ExpiresAt: old},
		{GatewayOrderID: "order_open", Status: models.IntentCreated, ExpiresAt: now.Add(time.Hour)},
	}
	for i := range seed {
		require.NoError(t, store.Insert(context.Background(), &seed[i]))
	}
	linkedOrder := models.Order{ID: primitive.NewObjectID(), GatewayOrderID: "order_linked"}
	orders := orderIndex{"order_linked": linkedOrder}
	pub := &capture{}

	r := NewReconciler(store, orders, pub, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), 10*time.Minute)
	r.now = func() time.Time { return now }

	rep, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Linked: 1, Orphaned: 1, Expired: 1}, rep)

	assert.Equal(t, models.IntentOrphaned, store.intents["order_orphan"].Status)
	assert.Equal(t, models.IntentFulfilled, store.intents["order_linked"].Status)
	assert.Equal(t, linkedOrder.ID, store.intents["order_linked"].OrderID)
	assert.Equal(t, models.IntentCaptured, store.intents["order_fresh"].Status)
	assert.Equal(t, models.IntentExpired, store.intents["order_stale"].Status)
	assert.Equal(t, models.IntentCreated, store.intents["order_open"].Status)

	require.Len(t, pub.events, 2)
	assert.Equal(t, events.PaymentOrphaned, pub.events[0].Type)
	assert.Equal(t, "order_orphan", pub.events[0].Key)
	assert.Equal(t, events.PaymentExpired, pub.events[1].Type)

	// A second sweep has nothing left to do.
	rep, err = r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{}, rep)
}

func TestOrphanedIntentCanStillBecomeAnOrder(t *testing.T) {
	ctx := context.Background()
	store := newMemIntents()
	old := time.Now().Add(-time.Hour)
	buyer := primitive.NewObjectID()
	require.NoError(t, store.Insert(ctx, &models.PaymentIntent{GatewayOrderID: "order_late", BuyerID: buyer, Status: models.IntentOrphaned, CapturedAt: &old}))

	svc := newService(&stubGateway{}, store)
	_, err := svc.CapturedIntent(ctx, "order_late", buyer)
	require.NoError(t, err)
	require.NoError(t, svc.LinkOrder(ctx, "order_late", primitive.NewObjectID()))
	assert.Equal(t, models.IntentFulfilled, store.intents["order_late"].Status)
}

func TestRunStopsOnCancel(t *testing.T) {
	r := NewReconciler(newMemIntents(), orderIndex{}, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, 5*time.Millisecond)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
}
