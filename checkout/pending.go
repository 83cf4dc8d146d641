package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/desietsy/desietsy-backend-go/cart"
	"github.com/shopspring/decimal"
)

// ErrPaymentExpired resolves a gateway checkout whose completion callback did
// not arrive within the pending TTL. No order exists and the cart is intact.
var ErrPaymentExpired = errors.New("checkout: payment window expired")

// Pending tracks one checkout until it resolves. A cash-on-delivery checkout
// is resolved before it is returned.
type Pending struct {
	Intent *Intent

	req    Request
	lines  []cart.Entry
	amount decimal.Decimal
	ctx    context.Context
	timer  *time.Timer

	once   sync.Once
	done   chan struct{}
	result *Result
	err    error
}

func newPending(ctx context.Context, req Request, st cart.State) *Pending {
	return &Pending{
		req:    req,
		lines:  st.Items(),
		amount: st.AmountDue(),
		ctx:    ctx,
		done:   make(chan struct{}),
	}
}

// Done is closed once the checkout has a result.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the checkout resolves or ctx is done. Giving up on ctx
// does not cancel the checkout.
func (p *Pending) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pending) resolve(res *Result, err error) bool {
	resolved := false
	p.once.Do(func() {
		p.result, p.err = res, err
		if p.timer != nil {
			p.timer.Stop()
		}
		close(p.done)
		resolved = true
	})
	return resolved
}
