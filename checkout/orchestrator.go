// Package checkout turns the staged cart into an order, either on a cash on
// delivery basis or after a gateway payment completes.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/desietsy/desietsy-backend-go/cart"
	"github.com/desietsy/desietsy-backend-go/models"
)

const (
	DefaultPendingTTL = 15 * time.Minute

	WarnEmailFailed    = "order saved but email failed"
	WarnCartNotCleared = "order saved but cart could not be cleared"
)

type Result struct {
	Order   *models.Order
	Mode    PaymentMode
	Warning string
}

type Orchestrator struct {
	cart     *cart.Store
	orders   OrderPlacer
	gateway  PaymentGateway
	widget   Widget
	notifier Notifier
	log      *slog.Logger
	ttl      time.Duration

	mu      sync.Mutex
	pending map[string]*Pending
}

type Option func(*Orchestrator)

func WithPendingTTL(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.ttl = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

func New(store *cart.Store, orders OrderPlacer, gateway PaymentGateway, widget Widget, notifier Notifier, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cart:     store,
		orders:   orders,
		gateway:  gateway,
		widget:   widget,
		notifier: notifier,
		log:      slog.Default(),
		ttl:      DefaultPendingTTL,
		pending:  make(map[string]*Pending),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Checkout validates the request and starts the chosen payment path. All
// preconditions are checked before anything is created or charged.
//
// For cash on delivery the returned Pending is already resolved. For gateway
// payments it resolves when the widget reports completion or the pending TTL
// elapses.
func (o *Orchestrator) Checkout(ctx context.Context, req Request) (*Pending, error) {
	st := o.cart.State()
	if st.Empty() {
		return nil, fmt.Errorf("%w: your cart is empty", models.ErrValidation)
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	p := newPending(context.WithoutCancel(ctx), req, st)
	switch req.Mode {
	case ModeCOD:
		res, err := o.cashOnDelivery(ctx, p)
		if err != nil {
			return nil, err
		}
		p.resolve(res, nil)
		return p, nil
	default:
		if err := o.startGateway(ctx, p); err != nil {
			return nil, err
		}
		return p, nil
	}
}

func (o *Orchestrator) cashOnDelivery(ctx context.Context, p *Pending) (*Result, error) {
	order, err := o.orders.PlaceOrder(ctx, p.orderRequest(models.PaymentPending, ""))
	if err != nil {
		return nil, err
	}
	res := &Result{Order: order, Mode: ModeCOD}
	o.finish(ctx, p, res)
	return res, nil
}

func (o *Orchestrator) startGateway(ctx context.Context, p *Pending) error {
	intent, err := o.gateway.CreateIntent(ctx, p.amount)
	if err != nil {
		if errors.Is(err, models.ErrValidation) {
			return err
		}
		return fmt.Errorf("%w: payment initiation failed: %v", models.ErrDependency, err)
	}
	p.Intent = intent
	gid := intent.GatewayOrderID

	o.mu.Lock()
	o.pending[gid] = p
	p.timer = time.AfterFunc(o.ttl, func() { o.expire(gid) })
	o.mu.Unlock()

	wreq := WidgetRequest{
		Intent: *intent,
		Prefill: Prefill{
			Name:    p.req.Delivery.Name,
			Email:   p.req.Buyer.Email,
			Contact: p.req.Delivery.Mobile,
		},
		Address: p.req.Delivery.Address,
	}
	if err := o.widget.Open(ctx, wreq, func(conf PaymentConfirmation) { o.complete(gid, conf) }); err != nil {
		o.take(gid)
		p.resolve(nil, err)
		return fmt.Errorf("%w: payment widget: %v", models.ErrDependency, err)
	}
	o.log.Info("gateway checkout started", "gateway_order_id", gid, "amount", intent.Amount, "currency", intent.Currency)
	return nil
}

// complete is the widget's resumption point.
func (o *Orchestrator) complete(gid string, conf PaymentConfirmation) {
	p := o.take(gid)
	if p == nil {
		o.log.Warn("ignoring payment callback for unknown or settled checkout", "gateway_order_id", gid, "payment_id", conf.PaymentID)
		return
	}
	if conf.GatewayOrderID == "" {
		conf.GatewayOrderID = gid
	}
	res, err := o.settle(p.ctx, p, conf)
	if err != nil {
		o.log.Error("gateway checkout failed", "gateway_order_id", gid, "payment_id", conf.PaymentID, "error", err)
	}
	p.resolve(res, err)
}

func (o *Orchestrator) settle(ctx context.Context, p *Pending, conf PaymentConfirmation) (*Result, error) {
	if conf.GatewayOrderID != p.Intent.GatewayOrderID {
		return nil, fmt.Errorf("%w: payment confirmation is for a different order", models.ErrValidation)
	}
	if err := o.gateway.VerifyPayment(ctx, conf); err != nil {
		return nil, err
	}
	order, err := o.orders.PlaceOrder(ctx, p.orderRequest(models.PaymentPaid, conf.GatewayOrderID))
	if err != nil {
		return nil, err
	}
	res := &Result{Order: order, Mode: ModeGateway}
	o.finish(ctx, p, res)
	return res, nil
}

// finish runs the post-order steps: notification, then cart clearing. Neither
// failure undoes the order.
func (o *Orchestrator) finish(ctx context.Context, p *Pending, res *Result) {
	if err := o.notifier.SendOrderConfirmation(ctx, p.confirmation(res.Order)); err != nil {
		o.log.Warn("order confirmation failed", "order_id", res.Order.ID.Hex(), "error", err)
		res.Warning = WarnEmailFailed
	}

	var err error
	if res.Mode == ModeCOD {
		_, err = o.cart.Clear()
	} else {
		// Only the paid units leave the cart; anything added while the buyer
		// was paying stays.
		_, err = o.cart.Update(func(st cart.State) cart.State {
			for _, e := range p.lines {
				if q := quantityOf(st, e.ProductID); q > e.Quantity {
					st = st.SetQuantity(e.ProductID, -e.Quantity)
				} else {
					st = st.RemoveFromCart(e.ProductID)
				}
			}
			return st
		})
	}
	if err != nil {
		o.log.Error("clear cart after order", "order_id", res.Order.ID.Hex(), "error", err)
		if res.Warning == "" {
			res.Warning = WarnCartNotCleared
		}
	}
}

func quantityOf(st cart.State, productID string) int {
	for _, e := range st.Items() {
		if e.ProductID == productID {
			return e.Quantity
		}
	}
	return 0
}

func (o *Orchestrator) expire(gid string) {
	p := o.take(gid)
	if p == nil {
		return
	}
	o.log.Info("gateway checkout expired", "gateway_order_id", gid)
	p.resolve(nil, ErrPaymentExpired)
}

func (o *Orchestrator) take(gid string) *Pending {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.pending[gid]
	if !ok {
		return nil
	}
	delete(o.pending, gid)
	if p.timer != nil {
		p.timer.Stop()
	}
	return p
}

// Outstanding reports how many gateway checkouts are awaiting a callback.
func (o *Orchestrator) Outstanding() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

func (p *Pending) orderRequest(state models.PaymentState, gatewayOrderID string) OrderRequest {
	items := make([]LineItem, len(p.lines))
	for i, e := range p.lines {
		items[i] = LineItem{ProductID: e.ProductID, Quantity: e.Quantity}
	}
	return OrderRequest{
		BuyerID:         p.req.Buyer.ID,
		Items:           items,
		TotalAmount:     p.amount.InexactFloat64(),
		DeliveryAddress: p.req.Delivery.Format(),
		PaymentState:    state,
		GatewayOrderID:  gatewayOrderID,
	}
}

func (p *Pending) confirmation(order *models.Order) Confirmation {
	items := make([]ConfirmationItem, len(p.lines))
	for i, e := range p.lines {
		items[i] = ConfirmationItem{Title: e.Title, Quantity: e.Quantity, Price: e.Price}
	}
	total := p.amount.InexactFloat64()
	if order.Total > 0 {
		total = order.Total
	}
	return Confirmation{
		OrderID:       order.ID.Hex(),
		BuyerEmail:    p.req.Buyer.Email,
		BuyerName:     p.req.Buyer.Name,
		Items:         items,
		TotalAmount:   total,
		PaymentMethod: p.req.Mode.Label(),
	}
}
