package cart

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Store is the single owner of the shopper's State. It is safe for use from
// multiple goroutines; payment callbacks clear the cart from their own.
type Store struct {
	mu      sync.Mutex
	state   State
	storage Storage
	log     *slog.Logger
}

// Open rehydrates the cart and wishlist from storage. Missing or unreadable
// documents start out empty.
func Open(storage Storage, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{storage: storage, log: log}

	var items []Entry
	if err := s.load(CartKey, &items); err != nil {
		return nil, err
	}
	var wishlist []Snapshot
	if err := s.load(WishlistKey, &wishlist); err != nil {
		return nil, err
	}
	s.state = NewState(items, wishlist)
	return s, nil
}

func (s *Store) load(key string, v any) error {
	data, err := s.storage.Load(key)
	if errors.Is(err, ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.log.Warn("discarding corrupt local state", "key", key, "error", err)
	}
	return nil
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Update applies fn and persists the result. On a storage error the previous
// state is kept, in memory and on disk.
func (s *Store) Update(fn func(State) State) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := fn(s.state)
	if err := s.persist(s.state, next); err != nil {
		return s.state, err
	}
	s.state = next
	return next, nil
}

type document struct {
	key        string
	prev, next []byte
}

// persist writes the documents that differ between prev and next. If a later
// write fails, the earlier ones are restored.
func (s *Store) persist(prev, next State) error {
	var docs []document
	for _, d := range []struct {
		key        string
		prev, next any
	}{
		{CartKey, nonNil(prev.items), nonNil(next.items)},
		{WishlistKey, nonNil(prev.wishlist), nonNil(next.wishlist)},
	} {
		p, err := json.Marshal(d.prev)
		if err != nil {
			return err
		}
		n, err := json.Marshal(d.next)
		if err != nil {
			return err
		}
		if !bytes.Equal(p, n) {
			docs = append(docs, document{key: d.key, prev: p, next: n})
		}
	}

	for i, d := range docs {
		if err := s.storage.Save(d.key, d.next); err != nil {
			for _, done := range docs[:i] {
				if rerr := s.storage.Save(done.key, done.prev); rerr != nil {
					s.log.Error("restore local state", "key", done.key, "error", rerr)
				}
			}
			return fmt.Errorf("save %s: %w", d.key, err)
		}
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (s *Store) AddToCart(p Snapshot) (State, error) {
	return s.Update(func(st State) State { return st.AddToCart(p) })
}

func (s *Store) RemoveFromCart(productID string) (State, error) {
	return s.Update(func(st State) State { return st.RemoveFromCart(productID) })
}

func (s *Store) SetQuantity(productID string, delta int) (State, error) {
	return s.Update(func(st State) State { return st.SetQuantity(productID, delta) })
}

func (s *Store) Clear() (State, error) {
	return s.Update(State.Clear)
}

func (s *Store) AddToWishlist(p Snapshot) (State, error) {
	return s.Update(func(st State) State { return st.AddToWishlist(p) })
}

func (s *Store) RemoveFromWishlist(productID string) (State, error) {
	return s.Update(func(st State) State { return st.RemoveFromWishlist(productID) })
}

func (s *Store) MoveToCart(productID string) (State, error) {
	return s.Update(func(st State) State { return st.MoveToCart(productID) })
}
