package cart

func (s State) Wishlist() []Snapshot {
	return append([]Snapshot(nil), s.wishlist...)
}

func (s State) InWishlist(productID string) bool {
	return s.wishIndex(productID) >= 0
}

// AddToWishlist is a set insert; a present product is left as is.
func (s State) AddToWishlist(p Snapshot) State {
	if s.InWishlist(p.ProductID) {
		return s
	}
	return State{items: s.items, wishlist: append(s.Wishlist(), p)}
}

func (s State) RemoveFromWishlist(productID string) State {
	i := s.wishIndex(productID)
	if i < 0 {
		return s
	}
	wl := make([]Snapshot, 0, len(s.wishlist)-1)
	wl = append(wl, s.wishlist[:i]...)
	wl = append(wl, s.wishlist[i+1:]...)
	return State{items: s.items, wishlist: wl}
}

// MoveToCart adds a wishlisted product to the cart and drops it from the
// wishlist. Unknown ids are a no-op.
func (s State) MoveToCart(productID string) State {
	i := s.wishIndex(productID)
	if i < 0 {
		return s
	}
	return s.AddToCart(s.wishlist[i]).RemoveFromWishlist(productID)
}

func (s State) wishIndex(productID string) int {
	for i, w := range s.wishlist {
		if w.ProductID == productID {
			return i
		}
	}
	return -1
}
