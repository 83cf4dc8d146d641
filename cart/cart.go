// Package cart holds the shopper's cart and wishlist between sessions.
//
// State is an immutable value: every mutation returns a new State and leaves
// the receiver untouched. Store wraps a State, mirrors it to a Storage after
// each mutation and rehydrates it on Open.
package cart

import (
	"github.com/desietsy/desietsy-backend-go/models"
	"github.com/shopspring/decimal"
)

// Snapshot captures a product as it looked when it was added. Later price
// changes in the catalog do not reach it.
type Snapshot struct {
	ProductID string  `json:"_id"`
	Title     string  `json:"title"`
	Image     string  `json:"image,omitempty"`
	Price     float64 `json:"price"`
	ArtisanID string  `json:"artisanId"`
}

func SnapshotOf(p models.Product) Snapshot {
	return Snapshot{
		ProductID: p.ID.Hex(),
		Title:     p.Title,
		Image:     p.Image,
		Price:     p.Price,
		ArtisanID: p.ArtisanID.Hex(),
	}
}

type Entry struct {
	Snapshot
	Quantity int `json:"quantity"`
}

// Subtotal is price × quantity.
func (e Entry) Subtotal() decimal.Decimal {
	return decimal.NewFromFloat(e.Price).Mul(decimal.NewFromInt(int64(e.Quantity)))
}

type State struct {
	items    []Entry
	wishlist []Snapshot
}

func NewState(items []Entry, wishlist []Snapshot) State {
	s := State{}
	for _, e := range items {
		if e.ProductID == "" {
			continue
		}
		if e.Quantity < 1 {
			e.Quantity = 1
		}
		if i := s.indexOf(e.ProductID); i >= 0 {
			s.items[i].Quantity += e.Quantity
			continue
		}
		s.items = append(s.items, e)
	}
	for _, w := range wishlist {
		if w.ProductID != "" && !s.InWishlist(w.ProductID) {
			s.wishlist = append(s.wishlist, w)
		}
	}
	return s
}

// Items returns a copy of the cart entries in insertion order.
func (s State) Items() []Entry {
	return append([]Entry(nil), s.items...)
}

func (s State) Empty() bool {
	return len(s.items) == 0
}

// AddToCart increments the quantity of an existing entry or appends a new
// one with quantity 1.
func (s State) AddToCart(p Snapshot) State {
	items := s.Items()
	if i := s.indexOf(p.ProductID); i >= 0 {
		items[i].Quantity++
	} else {
		items = append(items, Entry{Snapshot: p, Quantity: 1})
	}
	return State{items: items, wishlist: s.wishlist}
}

func (s State) RemoveFromCart(productID string) State {
	i := s.indexOf(productID)
	if i < 0 {
		return s
	}
	items := make([]Entry, 0, len(s.items)-1)
	items = append(items, s.items[:i]...)
	items = append(items, s.items[i+1:]...)
	return State{items: items, wishlist: s.wishlist}
}

// SetQuantity adjusts an entry by delta, never going below 1.
func (s State) SetQuantity(productID string, delta int) State {
	i := s.indexOf(productID)
	if i < 0 {
		return s
	}
	q := s.items[i].Quantity + delta
	if q < 1 {
		q = 1
	}
	if q == s.items[i].Quantity {
		return s
	}
	items := s.Items()
	items[i].Quantity = q
	return State{items: items, wishlist: s.wishlist}
}

func (s State) Clear() State {
	return State{wishlist: s.wishlist}
}

func (s State) ItemCount() int {
	n := 0
	for _, e := range s.items {
		n += e.Quantity
	}
	return n
}

func (s State) AmountDue() decimal.Decimal {
	total := decimal.Zero
	for _, e := range s.items {
		total = total.Add(e.Subtotal())
	}
	return total
}

func (s State) indexOf(productID string) int {
	for i, e := range s.items {
		if e.ProductID == productID {
			return i
		}
	}
	return -1
}
