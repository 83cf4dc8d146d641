package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/desietsy/desietsy-backend-go/cart"
	"github.com/desietsy/desietsy-backend-go/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type stubPlacer struct {
	mu       sync.Mutex
	err      error
	requests []OrderRequest
}

func (s *stubPlacer) PlaceOrder(_ context.Context, req OrderRequest) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return &models.Order{
		ID:             primitive.NewObjectID(),
		Total:          req.TotalAmount,
		PaymentState:   req.PaymentState,
		Status:         models.StatusPlaced,
		Address:        req.DeliveryAddress,
		GatewayOrderID: req.GatewayOrderID,
	}, nil
}

func (s *stubPlacer) calls() []OrderRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]OrderRequest(nil), s.requests...)
}

type stubGateway struct {
	createErr error
	verifyErr error
	amounts   []decimal.Decimal
	verified  []PaymentConfirmation
}

func (g *stubGateway) CreateIntent(_ context.Context, amount decimal.Decimal) (*Intent, error) {
	g.amounts = append(g.amounts, amount)
	if g.createErr != nil {
		return nil, g.createErr
	}
	return &Intent{GatewayOrderID: "order_123", Amount: amount.Mul(decimal.NewFromInt(100)).IntPart(), Currency: "INR"}, nil
}

func (g *stubGateway) VerifyPayment(_ context.Context, conf PaymentConfirmation) error {
	g.verified = append(g.verified, conf)
	return g.verifyErr
}

type stubWidget struct {
	mu       sync.Mutex
	req      WidgetRequest
	callback func(PaymentConfirmation)
	err      error
}

func (w *stubWidget) Open(_ context.Context, req WidgetRequest, onComplete func(PaymentConfirmation)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.req = req
	w.callback = onComplete
	return nil
}

func (w *stubWidget) pay() {
	w.mu.Lock()
	cb := w.callback
	w.mu.Unlock()
	cb(PaymentConfirmation{GatewayOrderID: "order_123", PaymentID: "pay_1", Signature: "sig"})
}

type stubNotifier struct {
	err  error
	sent []Confirmation
}

func (n *stubNotifier) SendOrderConfirmation(_ context.Context, c Confirmation) error {
	n.sent = append(n.sent, c)
	return n.err
}

type harness struct {
	orch     *Orchestrator
	store    *cart.Store
	placer   *stubPlacer
	gateway  *stubGateway
	widget   *stubWidget
	notifier *stubNotifier
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	store, err := cart.Open(cart.NewMemoryStorage(), nil)
	require.NoError(t, err)
	_, err = store.AddToCart(cart.Snapshot{ProductID: "pA", Title: "Terracotta lamp", Price: 100, ArtisanID: "s1"})
	require.NoError(t, err)
	_, err = store.AddToCart(cart.Snapshot{ProductID: "pA", Title: "Terracotta lamp", Price: 100, ArtisanID: "s1"})
	require.NoError(t, err)

	h := &harness{
		store:    store,
		placer:   &stubPlacer{},
		gateway:  &stubGateway{},
		widget:   &stubWidget{},
		notifier: &stubNotifier{},
	}
	h.orch = New(store, h.placer, h.gateway, h.widget, h.notifier, opts...)
	return h
}

func validRequest(mode PaymentMode) Request {
	return Request{
		Buyer: Buyer{ID: primitive.NewObjectID().Hex(), Name: "Meera", Email: "meera@example.com"},
		Delivery: DeliveryDetails{
			Name:    "Meera",
			Mobile:  "9876543210",
			Pincode: "560001",
			State:   "Karnataka",
			City:    "Bengaluru",
			Address: "4 Church Street",
		},
		Mode: mode,
	}
}

func TestCashOnDelivery(t *testing.T) {
	h := newHarness(t)

	p, err := h.orch.Checkout(context.Background(), validRequest(ModeCOD))
	require.NoError(t, err)
	res, err := p.Wait(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.PaymentPending, res.Order.PaymentState)
	assert.Equal(t, 200.0, res.Order.Total)
	assert.Empty(t, res.Warning)

	reqs := h.placer.calls()
	require.Len(t, reqs, 1)
	assert.Equal(t, []LineItem{{ProductID: "pA", Quantity: 2}}, reqs[0].Items)
	assert.Empty(t, reqs[0].GatewayOrderID)
	assert.Contains(t, reqs[0].DeliveryAddress, "4 Church Street")

	require.Len(t, h.notifier.sent, 1)
	assert.Equal(t, "Cash on Delivery", h.notifier.sent[0].PaymentMethod)
	assert.Equal(t, res.Order.ID.Hex(), h.notifier.sent[0].OrderID)

	assert.True(t, h.store.State().Empty())
	assert.Empty(t, h.gateway.amounts)
}

func TestCashOnDeliveryCreateFailureKeepsCart(t *testing.T) {
	h := newHarness(t)
	h.placer.err = models.ErrDependency

	_, err := h.orch.Checkout(context.Background(), validRequest(ModeCOD))
	assert.ErrorIs(t, err, models.ErrDependency)
	assert.Equal(t, 2, h.store.State().ItemCount())
	assert.Empty(t, h.notifier.sent)
}

func TestCashOnDeliveryEmailFailureIsAWarning(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("smtp down")

	p, err := h.orch.Checkout(context.Background(), validRequest(ModeCOD))
	require.NoError(t, err)
	res, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, WarnEmailFailed, res.Warning)
	assert.True(t, h.store.State().Empty())
}

func TestPreconditionsBlockSideEffects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"missing pincode", func(r *Request) { r.Delivery.Pincode = "" }},
		{"blank city", func(r *Request) { r.Delivery.City = "  " }},
		{"no buyer", func(r *Request) { r.Buyer.ID = "" }},
		{"no payment mode", func(r *Request) { r.Mode = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			req := validRequest(ModeGateway)
			tt.mutate(&req)

			_, err := h.orch.Checkout(context.Background(), req)
			assert.ErrorIs(t, err, models.ErrValidation)
			assert.Empty(t, h.placer.calls())
			assert.Empty(t, h.gateway.amounts)
			assert.Equal(t, 2, h.store.State().ItemCount())
		})
	}
}

func TestEmptyCartIsRejected(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.Clear()
	require.NoError(t, err)

	_, err = h.orch.Checkout(context.Background(), validRequest(ModeCOD))
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestGatewayPaid(t *testing.T) {
	h := newHarness(t)

	p, err := h.orch.Checkout(context.Background(), validRequest(ModeGateway))
	require.NoError(t, err)
	assert.Equal(t, "order_123", p.Intent.GatewayOrderID)
	assert.Equal(t, int64(20000), h.widget.req.Intent.Amount)
	assert.Equal(t, "9876543210", h.widget.req.Prefill.Contact)
	assert.Equal(t, 1, h.orch.Outstanding())

	// Nothing happens until the widget reports back.
	assert.Empty(t, h.placer.calls())
	assert.Equal(t, 2, h.store.State().ItemCount())

	go h.widget.pay()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := p.Wait(ctx)
	require.NoError(t, err)

	assert.Equal(t, models.PaymentPaid, res.Order.PaymentState)
	assert.Equal(t, "order_123", res.Order.GatewayOrderID)
	require.Len(t, h.gateway.verified, 1)
	assert.Equal(t, "pay_1", h.gateway.verified[0].PaymentID)
	require.Len(t, h.notifier.sent, 1)
	assert.Equal(t, "Razorpay", h.notifier.sent[0].PaymentMethod)
	assert.True(t, h.store.State().Empty())
	assert.Zero(t, h.orch.Outstanding())
}

func TestGatewayDuplicateCallbackIgnored(t *testing.T) {
	h := newHarness(t)
	p, err := h.orch.Checkout(context.Background(), validRequest(ModeGateway))
	require.NoError(t, err)

	h.widget.pay()
	h.widget.pay()

	<-p.Done()
	assert.Len(t, h.placer.calls(), 1)
	assert.Len(t, h.notifier.sent, 1)
}

func TestGatewayCallbackNeverFires(t *testing.T) {
	h := newHarness(t, WithPendingTTL(20*time.Millisecond))

	p, err := h.orch.Checkout(context.Background(), validRequest(ModeGateway))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = p.Wait(ctx)
	assert.ErrorIs(t, err, ErrPaymentExpired)

	assert.Empty(t, h.placer.calls())
	assert.Equal(t, 2, h.store.State().ItemCount())
	assert.Zero(t, h.orch.Outstanding())

	// A late callback after expiry does not create an order.
	h.widget.pay()
	assert.Empty(t, h.placer.calls())
}

func TestGatewayIntentFailure(t *testing.T) {
	h := newHarness(t)
	h.gateway.createErr = errors.New("connection refused")

	_, err := h.orch.Checkout(context.Background(), validRequest(ModeGateway))
	assert.ErrorIs(t, err, models.ErrDependency)
	assert.Nil(t, h.widget.callback)
	assert.Empty(t, h.placer.calls())
	assert.Zero(t, h.orch.Outstanding())
}

func TestGatewayWidgetFailure(t *testing.T) {
	h := newHarness(t)
	h.widget.err = errors.New("no terminal")

	_, err := h.orch.Checkout(context.Background(), validRequest(ModeGateway))
	assert.ErrorIs(t, err, models.ErrDependency)
	assert.Zero(t, h.orch.Outstanding())
}

func TestGatewayVerificationFailure(t *testing.T) {
	h := newHarness(t)
	h.gateway.verifyErr = models.ErrValidation

	p, err := h.orch.Checkout(context.Background(), validRequest(ModeGateway))
	require.NoError(t, err)
	h.widget.pay()

	_, err = p.Wait(context.Background())
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Empty(t, h.placer.calls())
	assert.Equal(t, 2, h.store.State().ItemCount())
}

func TestGatewayCreateFailureAfterPayment(t *testing.T) {
	h := newHarness(t)
	h.placer.err = models.ErrDependency

	p, err := h.orch.Checkout(context.Background(), validRequest(ModeGateway))
	require.NoError(t, err)
	h.widget.pay()

	_, err = p.Wait(context.Background())
	assert.ErrorIs(t, err, models.ErrDependency)
	assert.Equal(t, 2, h.store.State().ItemCount())
	assert.Empty(t, h.notifier.sent)
}

func TestGatewayKeepsItemsAddedDuringPayment(t *testing.T) {
	h := newHarness(t)
	p, err := h.orch.Checkout(context.Background(), validRequest(ModeGateway))
	require.NoError(t, err)

	_, err = h.store.AddToCart(cart.Snapshot{ProductID: "pB", Title: "Jute bag", Price: 50})
	require.NoError(t, err)
	h.widget.pay()

	res, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 200.0, res.Order.Total)

	items := h.store.State().Items()
	require.Len(t, items, 1)
	assert.Equal(t, "pB", items[0].ProductID)
}

func TestGatewayKeepsUnitsAddedDuringPayment(t *testing.T) {
	h := newHarness(t)
	p, err := h.orch.Checkout(context.Background(), validRequest(ModeGateway))
	require.NoError(t, err)

	// Two lamps were paid for; the buyer adds a third before the callback.
	_, err = h.store.AddToCart(cart.Snapshot{ProductID: "pA", Title: "Terracotta lamp", Price: 100, ArtisanID: "s1"})
	require.NoError(t, err)
	h.widget.pay()

	res, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 200.0, res.Order.Total)

	items := h.store.State().Items()
	require.Len(t, items, 1)
	assert.Equal(t, "pA", items[0].ProductID)
	assert.Equal(t, 1, items[0].Quantity)
}

func TestGatewayRemovesLineReducedDuringPayment(t *testing.T) {
	h := newHarness(t)
	p, err := h.orch.Checkout(context.Background(), validRequest(ModeGateway))
	require.NoError(t, err)

	_, err = h.store.SetQuantity("pA", -1)
	require.NoError(t, err)
	h.widget.pay()

	_, err = p.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, h.store.State().Empty())
}

func TestParsePaymentMode(t *testing.T) {
	m, err := ParsePaymentMode("UPI")
	require.NoError(t, err)
	assert.Equal(t, ModeGateway, m)

	m, err = ParsePaymentMode("cod")
	require.NoError(t, err)
	assert.Equal(t, ModeCOD, m)

	_, err = ParsePaymentMode("")
	assert.ErrorIs(t, err, models.ErrValidation)
}
