// Package ledger owns order creation, fulfillment status changes and
// cancellation rules.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desietsy/desietsy-backend-go/events"
	"github.com/desietsy/desietsy-backend-go/logging"
	"github.com/desietsy/desietsy-backend-go/metrics"
	"github.com/desietsy/desietsy-backend-go/models"
	"github.com/desietsy/desietsy-backend-go/repository"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
)

type OrderStore interface {
	Insert(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error)
	FindByBuyer(ctx context.Context, buyerID primitive.ObjectID) ([]models.Order, error)
	FindBySeller(ctx context.Context, sellerID primitive.ObjectID) ([]models.Order, error)
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.FulfillmentStatus, guard repository.StatusGuard) (*models.Order, error)
}

type Catalog interface {
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.Product, error)
}

type Directory interface {
	FindSummaries(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.UserSummary, error)
}

// Payments confirms that the buyer's gateway payment was captured before a
// paid order is accepted, and records which order consumed it.
type Payments interface {
	CapturedIntent(ctx context.Context, gatewayOrderID string, buyerID primitive.ObjectID) (*models.PaymentIntent, error)
	LinkOrder(ctx context.Context, gatewayOrderID string, orderID primitive.ObjectID) error
}

type Ledger struct {
	orders   OrderStore
	catalog  Catalog
	users    Directory
	payments Payments
	events   events.Publisher
	metrics  *metrics.Metrics
	policy   Policy
	now      func() time.Time
}

type Option func(*Ledger)

func WithPayments(p Payments) Option { return func(l *Ledger) { l.payments = p } }
func WithPublisher(p events.Publisher) Option { return func(l *Ledger) { l.events = p } }
func WithMetrics(m *metrics.Metrics) Option { return func(l *Ledger) { l.metrics = m } }
func WithPolicy(p Policy) Option { return func(l *Ledger) { l.policy = p } }
func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }

func New(orders OrderStore, catalog Catalog, users Directory, opts ...Option) *Ledger {
	l := &Ledger{
		orders:  orders,
		catalog: catalog,
		users:   users,
		events:  events.Nop{},
		policy:  PolicyMonotonic,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type ItemInput struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// CreateInput carries what a client may assert about a new order. Seller
// references are never taken from the client.
type CreateInput struct {
	BuyerID         string
	Items           []ItemInput
	TotalAmount     float64
	DeliveryAddress string
	PaymentState    models.PaymentState
	GatewayOrderID  string
}

func (l *Ledger) Create(ctx context.Context, in CreateInput) (*models.Order, error) {
	log := logging.FromContext(ctx).With("component", "ledger")

	buyerID, err := parseID("buyer", in.BuyerID)
	if err != nil {
		return nil, err
	}
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("%w: order has no items", models.ErrValidation)
	}
	address := strings.TrimSpace(in.DeliveryAddress)
	if address == "" {
		return nil, fmt.Errorf("%w: delivery address required", models.ErrValidation)
	}
	state := in.PaymentState
	if state == "" {
		state = models.PaymentPending
	}
	if !state.Valid() {
		return nil, fmt.Errorf("%w: unknown payment state %q", models.ErrValidation, in.PaymentState)
	}

	ids := make([]primitive.ObjectID, len(in.Items))
	for i, it := range in.Items {
		id, err := parseID("product", it.ProductID)
		if err != nil {
			return nil, err
		}
		if it.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity for product %s must be at least 1", models.ErrValidation, it.ProductID)
		}
		ids[i] = id
	}

	var intent *models.PaymentIntent
	gatewayOrderID := strings.TrimSpace(in.GatewayOrderID)
	if state == models.PaymentPaid {
		if gatewayOrderID == "" {
			return nil, fmt.Errorf("%w: paid orders require a gateway order id", models.ErrValidation)
		}
		existing, err := l.orders.FindByGatewayOrderID(ctx, gatewayOrderID)
		if err == nil {
			if existing.BuyerID != buyerID {
				return nil, fmt.Errorf("%w: payment belongs to another order", models.ErrConflict)
			}
			log.Info("order already placed for payment", "gateway_order_id", gatewayOrderID, "order_id", existing.ID.Hex())
			return existing, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		if l.payments == nil {
			return nil, fmt.Errorf("%w: payment verification unavailable", models.ErrDependency)
		}
		if intent, err = l.payments.CapturedIntent(ctx, gatewayOrderID, buyerID); err != nil {
			return nil, err
		}
		if intent.BuyerID != buyerID {
			return nil, fmt.Errorf("%w: payment belongs to another buyer", models.ErrConflict)
		}
	} else {
		// Only a paid order consumes a payment intent.
		gatewayOrderID = ""
	}

	products, err := l.catalog.FindByIDs(ctx, uniqueIDs(ids))
	if err != nil {
		return nil, fmt.Errorf("resolve products: %w", err)
	}

	items := make([]models.LineItem, len(in.Items))
	total := decimal.Zero
	for i, it := range in.Items {
		p, ok := products[ids[i]]
		if !ok || p.ArtisanID.IsZero() {
			return nil, fmt.Errorf("%w: product not found: %s", models.ErrValidation, it.ProductID)
		}
		items[i] = models.LineItem{ProductID: p.ID, Quantity: it.Quantity, SellerID: p.ArtisanID}
		total = total.Add(decimal.NewFromFloat(p.Price).Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	if intent != nil {
		// The captured payment must cover exactly the catalog total.
		if minor := total.Mul(decimal.NewFromInt(100)).Round(0).IntPart(); minor != intent.AmountMinor {
			log.Warn("paid amount does not match order total",
				"gateway_order_id", gatewayOrderID,
				"paid_minor", intent.AmountMinor,
				"total_minor", minor,
			)
			return nil, fmt.Errorf("%w: payment amount does not match order total", models.ErrValidation)
		}
	}
	if client := decimal.NewFromFloat(in.TotalAmount); !client.Equal(total) {
		log.Warn("order total drift",
			"buyer_id", buyerID.Hex(),
			"client_total", client.String(),
			"catalog_total", total.String(),
		)
	}

	now := l.now()
	order := &models.Order{
		ID:             primitive.NewObjectID(),
		BuyerID:        buyerID,
		Items:          items,
		Total:          total.InexactFloat64(),
		PaymentState:   state,
		Status:         models.StatusPlaced,
		Address:        address,
		GatewayOrderID: gatewayOrderID,
		PlacedAt:       now,
		UpdatedAt:      now,
	}

	if err := l.orders.Insert(ctx, order); err != nil {
		if errors.Is(err, models.ErrConflict) && gatewayOrderID != "" {
			// Lost a race with a concurrent submission for the same payment.
			return l.orders.FindByGatewayOrderID(ctx, gatewayOrderID)
		}
		return nil, fmt.Errorf("insert order: %w", err)
	}

	if intent != nil {
		if err := l.payments.LinkOrder(ctx, gatewayOrderID, order.ID); err != nil {
			log.Error("link payment to order", "gateway_order_id", gatewayOrderID, "order_id", order.ID.Hex(), "error", err)
		}
	}

	l.metrics.OrderCreated(string(state))
	l.publish(ctx, events.OrderPlaced, order)
	log.Info("order placed", "order_id", order.ID.Hex(), "payment_state", state, "total", order.Total)
	return order, nil
}

func (l *Ledger) Get(ctx context.Context, id string) (*models.Order, error) {
	oid, err := parseID("order", id)
	if err != nil {
		return nil, err
	}
	return l.orders.FindByID(ctx, oid)
}

// ListByBuyer returns the buyer's orders with every line joined to the
// product's current listing.
func (l *Ledger) ListByBuyer(ctx context.Context, buyerID string) ([]models.OrderView, error) {
	oid, err := parseID("buyer", buyerID)
	if err != nil {
		return nil, err
	}
	orders, err := l.orders.FindByBuyer(ctx, oid)
	if err != nil {
		return nil, err
	}
	products, err := l.catalog.FindByIDs(ctx, productIDs(orders))
	if err != nil {
		return nil, fmt.Errorf("resolve products: %w", err)
	}
	return buildViews(orders, products, nil), nil
}

// ListBySeller returns every order holding at least one of the seller's
// lines. Orders are returned whole; callers filter lines for display.
func (l *Ledger) ListBySeller(ctx context.Context, sellerID string) ([]models.OrderView, error) {
	oid, err := parseID("seller", sellerID)
	if err != nil {
		return nil, err
	}
	orders, err := l.orders.FindBySeller(ctx, oid)
	if err != nil {
		return nil, err
	}

	var (
		products map[primitive.ObjectID]models.Product
		buyers   map[primitive.ObjectID]models.UserSummary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = l.catalog.FindByIDs(gctx, productIDs(orders))
		return err
	})
	g.Go(func() error {
		if l.users == nil {
			return nil
		}
		ids := make([]primitive.ObjectID, len(orders))
		for i := range orders {
			ids[i] = orders[i].BuyerID
		}
		var err error
		buyers, err = l.users.FindSummaries(gctx, uniqueIDs(ids))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolve seller orders: %w", err)
	}
	return buildViews(orders, products, buyers), nil
}

func (l *Ledger) AdvanceStatus(ctx context.Context, id string, status models.FulfillmentStatus) (*models.Order, error) {
	oid, err := parseID("order", id)
	if err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", models.ErrValidation, status)
	}

	var guard repository.StatusGuard
	if l.policy == PolicyMonotonic {
		current, err := l.orders.FindByID(ctx, oid)
		if err != nil {
			return nil, err
		}
		same, err := checkTransition(current.Status, status)
		if err != nil {
			return nil, err
		}
		if same {
			return current, nil
		}
		guard.In = []models.FulfillmentStatus{current.Status}
	}

	order, err := l.orders.UpdateStatus(ctx, oid, status, guard)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) && l.policy == PolicyMonotonic {
			return nil, fmt.Errorf("%w: order status changed concurrently", models.ErrConflict)
		}
		return nil, err
	}

	l.metrics.StatusChanged(string(order.Status))
	l.publish(ctx, events.OrderStatusChanged, order)
	logging.FromContext(ctx).Info("order status updated", "order_id", id, "status", order.Status, "policy", l.policy.String())
	return order, nil
}

// Cancel moves any non-terminal order to Cancelled in one conditional write.
func (l *Ledger) Cancel(ctx context.Context, id string) (*models.Order, error) {
	oid, err := parseID("order", id)
	if err != nil {
		return nil, err
	}

	order, err := l.orders.UpdateStatus(ctx, oid, models.StatusCancelled, repository.StatusGuard{
		NotIn: models.TerminalStatuses,
	})
	if errors.Is(err, models.ErrNotFound) {
		if _, ferr := l.orders.FindByID(ctx, oid); ferr != nil {
			return nil, ferr
		}
		return nil, fmt.Errorf("%w: order cannot be cancelled anymore", models.ErrInvalidState)
	}
	if err != nil {
		return nil, err
	}

	l.metrics.StatusChanged(string(models.StatusCancelled))
	l.publish(ctx, events.OrderCancelled, order)
	logging.FromContext(ctx).Info("order cancelled", "order_id", id)
	return order, nil
}

func (l *Ledger) publish(ctx context.Context, typ string, order *models.Order) {
	ev := events.New(typ, order.ID.Hex(), order)
	if err := l.events.Publish(ctx, ev); err != nil {
		logging.FromContext(ctx).Error("publish order event", "type", typ, "order_id", order.ID.Hex(), "error", err)
	}
}

func parseID(kind, s string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(s))
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: invalid %s id %q", models.ErrValidation, kind, s)
	}
	return id, nil
}

func uniqueIDs(ids []primitive.ObjectID) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]struct{}, len(ids))
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func productIDs(orders []models.Order) []primitive.ObjectID {
	var ids []primitive.ObjectID
	for i := range orders {
		for _, it := range orders[i].Items {
			ids = append(ids, it.ProductID)
		}
	}
	return uniqueIDs(ids)
}

func buildViews(orders []models.Order, products map[primitive.ObjectID]models.Product, buyers map[primitive.ObjectID]models.UserSummary) []models.OrderView {
	views := make([]models.OrderView, len(orders))
	for i, o := range orders {
		lines := make([]models.ResolvedLine, len(o.Items))
		for j, it := range o.Items {
			lines[j] = models.ResolvedLine{LineItem: it}
			if p, ok := products[it.ProductID]; ok {
				p := p
				lines[j].Product = &p
			}
		}
		views[i] = models.OrderView{Order: o, Items: lines}
		if b, ok := buyers[o.BuyerID]; ok {
			b := b
			views[i].Buyer = &b
		}
	}
	return views
}
