package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/desietsy/desietsy-backend-go/events"
	"github.com/desietsy/desietsy-backend-go/models"
	"github.com/desietsy/desietsy-backend-go/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type memOrders struct {
	mu     sync.Mutex
	orders map[primitive.ObjectID]models.Order
}

func newMemOrders() *memOrders {
	return &memOrders{orders: map[primitive.ObjectID]models.Order{}}
}

func (m *memOrders) Insert(_ context.Context, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.orders {
		if o.GatewayOrderID != "" && existing.GatewayOrderID == o.GatewayOrderID {
			return models.ErrConflict
		}
	}
	m.orders[o.ID] = *o
	return nil
}

func (m *memOrders) FindByID(_ context.Context, id primitive.ObjectID) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &o, nil
}

func (m *memOrders) FindByGatewayOrderID(_ context.Context, gid string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.GatewayOrderID == gid {
			o := o
			return &o, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memOrders) FindByBuyer(_ context.Context, id primitive.ObjectID) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Order{}
	for _, o := range m.orders {
		if o.BuyerID == id {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memOrders) FindBySeller(_ context.Context, id primitive.ObjectID) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Order{}
	for _, o := range m.orders {
		if o.HasSeller(id) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memOrders) UpdateStatus(_ context.Context, id primitive.ObjectID, status models.FulfillmentStatus, g repository.StatusGuard) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if len(g.In) > 0 && !contains(g.In, o.Status) {
		return nil, models.ErrNotFound
	}
	if contains(g.NotIn, o.Status) {
		return nil, models.ErrNotFound
	}
	o.Status = status
	m.orders[id] = o
	return &o, nil
}

func contains(list []models.FulfillmentStatus, s models.FulfillmentStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type memCatalog map[primitive.ObjectID]models.Product

func (c memCatalog) FindByIDs(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.Product, error) {
	out := map[primitive.ObjectID]models.Product{}
	for _, id := range ids {
		if p, ok := c[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type memUsers map[primitive.ObjectID]models.UserSummary

func (u memUsers) FindSummaries(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.UserSummary, error) {
	out := map[primitive.ObjectID]models.UserSummary{}
	for _, id := range ids {
		if s, ok := u[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

type stubPayments struct {
	intents map[string]models.PaymentIntent
	linked  map[string]primitive.ObjectID
}

func (s *stubPayments) CapturedIntent(_ context.Context, gid string, _ primitive.ObjectID) (*models.PaymentIntent, error) {
	in, ok := s.intents[gid]
	if !ok {
		return nil, models.ErrNotFound
	}
	if in.Status != models.IntentCaptured {
		return nil, errors.Join(models.ErrValidation, errors.New("payment not captured"))
	}
	return &in, nil
}

func (s *stubPayments) LinkOrder(_ context.Context, gid string, orderID primitive.ObjectID) error {
	if s.linked == nil {
		s.linked = map[string]primitive.ObjectID{}
	}
	s.linked[gid] = orderID
	return nil
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	ledger   *Ledger
	orders   *memOrders
	payments *stubPayments
	events   *recorder
	buyer    primitive.ObjectID
	sellerA  primitive.ObjectID
	sellerB  primitive.ObjectID
	vase     models.Product
	shawl    models.Product
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		orders:   newMemOrders(),
		payments: &stubPayments{intents: map[string]models.PaymentIntent{}},
		events:   &recorder{},
		buyer:    primitive.NewObjectID(),
		sellerA:  primitive.NewObjectID(),
		sellerB:  primitive.NewObjectID(),
	}
	f.vase = models.Product{ID: primitive.NewObjectID(), Title: "Blue pottery vase", Price: 450, ArtisanID: f.sellerA, IsApproved: true}
	f.shawl = models.Product{ID: primitive.NewObjectID(), Title: "Pashmina shawl", Price: 1200.5, ArtisanID: f.sellerB, IsApproved: true}
	catalog := memCatalog{f.vase.ID: f.vase, f.shawl.ID: f.shawl}
	users := memUsers{f.buyer: {ID: f.buyer, Name: "Asha", Email: "asha@example.com"}}

	fixed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	base := []Option{
		WithPayments(f.payments),
		WithPublisher(f.events),
		WithClock(func() time.Time { return fixed }),
	}
	f.ledger = New(f.orders, catalog, users, append(base, opts...)...)
	return f
}

func (f *fixture) place(t *testing.T) *models.Order {
	t.Helper()
	o, err := f.ledger.Create(context.Background(), CreateInput{
		BuyerID:         f.buyer.Hex(),
		Items:           []ItemInput{{ProductID: f.vase.ID.Hex(), Quantity: 2}},
		TotalAmount:     900,
		DeliveryAddress: "Asha, 12 MG Road, Jaipur, 302001, 9876543210",
		PaymentState:    models.PaymentPending,
	})
	require.NoError(t, err)
	return o
}

func TestCreateCashOnDelivery(t *testing.T) {
	f := newFixture(t)

	o, err := f.ledger.Create(context.Background(), CreateInput{
		BuyerID: f.buyer.Hex(),
		Items: []ItemInput{
			{ProductID: f.vase.ID.Hex(), Quantity: 2},
			{ProductID: f.shawl.ID.Hex(), Quantity: 1},
		},
		TotalAmount:     2100.5,
		DeliveryAddress: "  Asha, 12 MG Road  ",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusPlaced, o.Status)
	assert.Equal(t, models.PaymentPending, o.PaymentState)
	assert.Equal(t, "Asha, 12 MG Road", o.Address)
	assert.Equal(t, 2100.5, o.Total)
	assert.Empty(t, o.GatewayOrderID)
	require.Len(t, o.Items, 2)
	assert.Equal(t, f.sellerA, o.Items[0].SellerID)
	assert.Equal(t, f.sellerB, o.Items[1].SellerID)
	assert.Equal(t, []string{events.OrderPlaced}, f.events.types())
}

func TestCreateIgnoresClientTotal(t *testing.T) {
	f := newFixture(t)

	o, err := f.ledger.Create(context.Background(), CreateInput{
		BuyerID:         f.buyer.Hex(),
		Items:           []ItemInput{{ProductID: f.vase.ID.Hex(), Quantity: 3}},
		TotalAmount:     1,
		DeliveryAddress: "somewhere",
	})
	require.NoError(t, err)
	assert.Equal(t, 1350.0, o.Total)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	valid := func() CreateInput {
		return CreateInput{
			BuyerID:         f.buyer.Hex(),
			Items:           []ItemInput{{ProductID: f.vase.ID.Hex(), Quantity: 1}},
			DeliveryAddress: "somewhere",
		}
	}

	tests := []struct {
		name   string
		mutate func(*CreateInput)
	}{
		{"empty items", func(in *CreateInput) { in.Items = nil }},
		{"blank address", func(in *CreateInput) { in.DeliveryAddress = "   " }},
		{"bad buyer", func(in *CreateInput) { in.BuyerID = "nope" }},
		{"zero quantity", func(in *CreateInput) { in.Items[0].Quantity = 0 }},
		{"unknown product", func(in *CreateInput) { in.Items[0].ProductID = primitive.NewObjectID().Hex() }},
		{"bad product id", func(in *CreateInput) { in.Items[0].ProductID = "xyz" }},
		{"unknown payment state", func(in *CreateInput) { in.PaymentState = "Refunded" }},
		{"paid without gateway id", func(in *CreateInput) { in.PaymentState = models.PaymentPaid }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid()
			tt.mutate(&in)
			_, err := f.ledger.Create(context.Background(), in)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
	assert.Empty(t, f.events.types())
}

func TestCreatePaidRequiresCapturedIntent(t *testing.T) {
	f := newFixture(t)
	f.payments.intents["order_pending"] = models.PaymentIntent{GatewayOrderID: "order_pending", BuyerID: f.buyer, Status: models.IntentCreated, Amount: 450, AmountMinor: 45000}

	in := CreateInput{
		BuyerID:         f.buyer.Hex(),
		Items:           []ItemInput{{ProductID: f.vase.ID.Hex(), Quantity: 1}},
		DeliveryAddress: "somewhere",
		PaymentState:    models.PaymentPaid,
		GatewayOrderID:  "order_pending",
	}
	_, err := f.ledger.Create(context.Background(), in)
	assert.ErrorIs(t, err, models.ErrValidation)

	in.GatewayOrderID = "order_unknown"
	_, err = f.ledger.Create(context.Background(), in)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCreatePaidIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.payments.intents["order_abc"] = models.PaymentIntent{GatewayOrderID: "order_abc", BuyerID: f.buyer, Status: models.IntentCaptured, Amount: 450, AmountMinor: 45000}

	in := CreateInput{
		BuyerID:         f.buyer.Hex(),
		Items:           []ItemInput{{ProductID: f.vase.ID.Hex(), Quantity: 1}},
		TotalAmount:     450,
		DeliveryAddress: "somewhere",
		PaymentState:    models.PaymentPaid,
		GatewayOrderID:  "order_abc",
	}
	first, err := f.ledger.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, first.PaymentState)
	assert.Equal(t, first.ID, f.payments.linked["order_abc"])

	second, err := f.ledger.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	all, err := f.orders.FindByBuyer(context.Background(), f.buyer)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, []string{events.OrderPlaced}, f.events.types())

	in.BuyerID = primitive.NewObjectID().Hex()
	_, err = f.ledger.Create(context.Background(), in)
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestCreatePaidRejectsAmountMismatch(t *testing.T) {
	f := newFixture(t)
	f.payments.intents["order_cheap"] = models.PaymentIntent{GatewayOrderID: "order_cheap", BuyerID: f.buyer, Status: models.IntentCaptured, Amount: 1, AmountMinor: 100}

	_, err := f.ledger.Create(context.Background(), CreateInput{
		BuyerID:         f.buyer.Hex(),
		Items:           []ItemInput{{ProductID: f.vase.ID.Hex(), Quantity: 10}},
		TotalAmount:     1,
		DeliveryAddress: "somewhere",
		PaymentState:    models.PaymentPaid,
		GatewayOrderID:  "order_cheap",
	})
	assert.ErrorIs(t, err, models.ErrValidation)

	all, err := f.orders.FindByBuyer(context.Background(), f.buyer)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, f.payments.linked)
	assert.Empty(t, f.events.types())
}

func TestCreatePaidMatchesFractionalTotal(t *testing.T) {
	f := newFixture(t)
	f.payments.intents["order_shawl"] = models.PaymentIntent{GatewayOrderID: "order_shawl", BuyerID: f.buyer, Status: models.IntentCaptured, Amount: 2401, AmountMinor: 240100}

	o, err := f.ledger.Create(context.Background(), CreateInput{
		BuyerID:         f.buyer.Hex(),
		Items:           []ItemInput{{ProductID: f.shawl.ID.Hex(), Quantity: 2}},
		TotalAmount:     2401,
		DeliveryAddress: "somewhere",
		PaymentState:    models.PaymentPaid,
		GatewayOrderID:  "order_shawl",
	})
	require.NoError(t, err)
	assert.Equal(t, 2401.0, o.Total)
}

func TestCreatePaidRejectsAnotherBuyersPayment(t *testing.T) {
	f := newFixture(t)
	owner := primitive.NewObjectID()
	f.payments.intents["order_theirs"] = models.PaymentIntent{GatewayOrderID: "order_theirs", BuyerID: owner, Status: models.IntentCaptured, Amount: 450, AmountMinor: 45000}

	_, err := f.ledger.Create(context.Background(), CreateInput{
		BuyerID:         f.buyer.Hex(),
		Items:           []ItemInput{{ProductID: f.vase.ID.Hex(), Quantity: 1}},
		TotalAmount:     450,
		DeliveryAddress: "somewhere",
		PaymentState:    models.PaymentPaid,
		GatewayOrderID:  "order_theirs",
	})
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Empty(t, f.payments.linked)
	assert.Empty(t, f.events.types())
}

func TestCancelFromEveryOpenStatus(t *testing.T) {
	tests := []struct {
		name    string
		reach   []models.FulfillmentStatus
		wantErr error
	}{
		{"placed", nil, nil},
		{"processing", []models.FulfillmentStatus{models.StatusProcessing}, nil},
		{"shipped", []models.FulfillmentStatus{models.StatusProcessing, models.StatusShipped}, nil},
		{"out for delivery", []models.FulfillmentStatus{models.StatusShipped, models.StatusOutForDelivery}, nil},
		{"delivered", []models.FulfillmentStatus{models.StatusDelivered}, models.ErrInvalidState},
		{"cancelled", []models.FulfillmentStatus{models.StatusCancelled}, models.ErrInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			o := f.place(t)
			id := o.ID.Hex()
			for _, st := range tt.reach {
				if st == models.StatusCancelled {
					_, err := f.ledger.Cancel(ctx, id)
					require.NoError(t, err)
					continue
				}
				_, err := f.ledger.AdvanceStatus(ctx, id, st)
				require.NoError(t, err)
			}
			before, err := f.ledger.Get(ctx, id)
			require.NoError(t, err)

			got, err := f.ledger.Cancel(ctx, id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				stored, err := f.ledger.Get(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, before.Status, stored.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, models.StatusCancelled, got.Status)
		})
	}
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.place(t)

	got, err := f.ledger.Cancel(ctx, o.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)

	_, err = f.ledger.Cancel(ctx, o.ID.Hex())
	assert.ErrorIs(t, err, models.ErrInvalidState)

	_, err = f.ledger.Cancel(ctx, primitive.NewObjectID().Hex())
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.ledger.Cancel(ctx, "garbage")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestCancelDeliveredFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.place(t)

	_, err := f.ledger.AdvanceStatus(ctx, o.ID.Hex(), models.StatusDelivered)
	require.NoError(t, err)

	_, err = f.ledger.Cancel(ctx, o.ID.Hex())
	assert.ErrorIs(t, err, models.ErrInvalidState)

	stored, err := f.ledger.Get(ctx, o.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, stored.Status)
}

func TestAdvanceStatusMonotonic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.place(t)
	id := o.ID.Hex()

	got, err := f.ledger.AdvanceStatus(ctx, id, models.StatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, got.Status)

	got, err = f.ledger.AdvanceStatus(ctx, id, models.StatusShipped)
	require.NoError(t, err)
	assert.Equal(t, models.StatusShipped, got.Status)

	// Repeating the current status is a no-op.
	got, err = f.ledger.AdvanceStatus(ctx, id, models.StatusShipped)
	require.NoError(t, err)
	assert.Equal(t, models.StatusShipped, got.Status)

	_, err = f.ledger.AdvanceStatus(ctx, id, models.StatusPlaced)
	assert.ErrorIs(t, err, models.ErrInvalidState)

	_, err = f.ledger.AdvanceStatus(ctx, id, models.StatusCancelled)
	assert.ErrorIs(t, err, models.ErrInvalidState)

	_, err = f.ledger.AdvanceStatus(ctx, id, "Lost")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.ledger.AdvanceStatus(ctx, primitive.NewObjectID().Hex(), models.StatusShipped)
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.Equal(t, []string{events.OrderPlaced, events.OrderStatusChanged, events.OrderStatusChanged}, f.events.types())
}

func TestAdvanceStatusPermissive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithPolicy(PolicyPermissive))
	o := f.place(t)
	id := o.ID.Hex()

	_, err := f.ledger.AdvanceStatus(ctx, id, models.StatusDelivered)
	require.NoError(t, err)

	got, err := f.ledger.AdvanceStatus(ctx, id, models.StatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, got.Status)

	_, err = f.ledger.AdvanceStatus(ctx, primitive.NewObjectID().Hex(), models.StatusShipped)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestListBySellerReturnsWholeOrders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	mixed, err := f.ledger.Create(ctx, CreateInput{
		BuyerID: f.buyer.Hex(),
		Items: []ItemInput{
			{ProductID: f.vase.ID.Hex(), Quantity: 1},
			{ProductID: f.shawl.ID.Hex(), Quantity: 1},
		},
		DeliveryAddress: "somewhere",
	})
	require.NoError(t, err)
	f.place(t)

	views, err := f.ledger.ListBySeller(ctx, f.sellerB.Hex())
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, mixed.ID, views[0].ID)
	require.Len(t, views[0].Items, 2)
	require.NotNil(t, views[0].Items[1].Product)
	assert.Equal(t, "Pashmina shawl", views[0].Items[1].Product.Title)
	require.NotNil(t, views[0].Buyer)
	assert.Equal(t, "asha@example.com", views[0].Buyer.Email)

	views, err = f.ledger.ListBySeller(ctx, primitive.NewObjectID().Hex())
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestListByBuyer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.place(t)
	f.place(t)

	views, err := f.ledger.ListByBuyer(ctx, f.buyer.Hex())
	require.NoError(t, err)
	require.Len(t, views, 2)
	for _, v := range views {
		require.Len(t, v.Items, 1)
		require.NotNil(t, v.Items[0].Product)
		assert.Equal(t, f.vase.Title, v.Items[0].Product.Title)
	}

	_, err = f.ledger.ListByBuyer(ctx, "bogus")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyMonotonic, p)

	p, err = ParsePolicy("Permissive")
	require.NoError(t, err)
	assert.Equal(t, PolicyPermissive, p)

	_, err = ParsePolicy("chaotic")
	assert.Error(t, err)
}
