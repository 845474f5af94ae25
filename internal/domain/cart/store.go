// Package cart holds the shopping cart of a single shop session.
package cart

import (
	"context"
	"sync"
	"time"

	"github.com/example/tree-shop/internal/infrastructure/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const AggregateType = "Cart"

// Product is what a shop listing hands to AddToCart.
type Product struct {
	ID    int             `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// CartItem is one product line. ID is the product id.
type CartItem struct {
	ID       int             `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// Subtotal returns price * quantity for the line
func (i CartItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Snapshot is a point-in-time copy of the cart handed to listeners and views.
type Snapshot struct {
	CartID     string          `json:"cart_id"`
	Items      []CartItem      `json:"items"`
	ItemCount  int             `json:"item_count"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// Listener is called after every mutation with the resulting cart. Listeners
// may read the store but must not mutate it.
type Listener func(Snapshot)

type listenerEntry struct {
	id int
	fn Listener
}

// Store is the single source of truth for one session's cart. It is shared by
// reference between every view of the shop flow.
type Store struct {
	id       string
	recorder store.EventStoreInterface
	logger   *zap.Logger

	// notifyMu keeps event recording and listener calls in mutation order.
	notifyMu sync.Mutex

	mu             sync.RWMutex
	items          []CartItem
	listeners      []listenerEntry
	nextListenerID int
}

type Option func(*Store)

// WithRecorder records an activity event for every mutation.
func WithRecorder(recorder store.EventStoreInterface) Option {
	return func(s *Store) {
		s.recorder = recorder
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates an empty cart identified by id
func NewStore(id string, opts ...Option) *Store {
	s := &Store{
		id:     id,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("cart_id", id))
	return s
}

func (s *Store) ID() string {
	return s.id
}

// AddToCart increments the quantity of an existing line or appends a new line
// with quantity 1. Input is stored as given. The returned snapshot is the
// cart right after this add.
func (s *Store) AddToCart(ctx context.Context, p Product) Snapshot {
	return s.mutate(ctx, func() (string, any, bool) {
		for i := range s.items {
			if s.items[i].ID == p.ID {
				s.items[i].Quantity++
				return EventItemAdded, ItemAddedToCart{
					CartID:    s.id,
					ProductID: p.ID,
					Name:      s.items[i].Name,
					Price:     s.items[i].Price,
					Quantity:  s.items[i].Quantity,
					AddedAt:   time.Now(),
				}, true
			}
		}
		s.items = append(s.items, CartItem{
			ID:       p.ID,
			Name:     p.Name,
			Price:    p.Price,
			Quantity: 1,
		})
		return EventItemAdded, ItemAddedToCart{
			CartID:    s.id,
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  1,
			AddedAt:   time.Now(),
		}, true
	})
}

// RemoveFromCart drops the whole line for id. Unknown ids are ignored.
func (s *Store) RemoveFromCart(ctx context.Context, id int) Snapshot {
	return s.mutate(ctx, func() (string, any, bool) {
		for i, item := range s.items {
			if item.ID != id {
				continue
			}
			s.items = append(s.items[:i:i], s.items[i+1:]...)
			return EventItemRemoved, ItemRemovedFromCart{
				CartID:    s.id,
				ProductID: id,
				Quantity:  item.Quantity,
				RemovedAt: time.Now(),
			}, true
		}
		return "", nil, false
	})
}

// Clear empties the cart
func (s *Store) Clear(ctx context.Context) Snapshot {
	return s.mutate(ctx, func() (string, any, bool) {
		count := itemCount(s.items)
		s.items = nil
		return EventCartCleared, CartCleared{
			CartID:    s.id,
			ItemCount: count,
			ClearedAt: time.Now(),
		}, true
	})
}

// Discard empties the cart and records that its session ended. It is the
// last event recorded for the cart.
func (s *Store) Discard(ctx context.Context, reason string) Snapshot {
	return s.mutate(ctx, func() (string, any, bool) {
		count := itemCount(s.items)
		s.items = nil
		return EventCartDiscarded, CartDiscarded{
			CartID:      s.id,
			ItemCount:   count,
			Reason:      reason,
			DiscardedAt: time.Now(),
		}, true
	})
}

// Items returns the lines in the order they were first added
func (s *Store) Items() []CartItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]CartItem(nil), s.items...)
}

// ItemCount returns the sum of all quantities
func (s *Store) ItemCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return itemCount(s.items)
}

// TotalPrice returns the sum of price * quantity, computed on every call
func (s *Store) TotalPrice() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return totalPrice(s.items)
}

func (s *Store) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items) == 0
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe registers a listener and returns a function that removes it
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextListenerID++
	id := s.nextListenerID
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) mutate(ctx context.Context, apply func() (eventType string, data any, changed bool)) Snapshot {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	eventType, data, changed := apply()
	snap := s.snapshotLocked()
	listeners := append([]listenerEntry(nil), s.listeners...)
	s.mu.Unlock()

	if !changed {
		return snap
	}

	s.record(ctx, eventType, data)
	for _, l := range listeners {
		l.fn(snap)
	}
	return snap
}

// record is best effort: a failed append leaves the cart as mutated.
func (s *Store) record(ctx context.Context, eventType string, data any) {
	if s.recorder == nil {
		return
	}
	if _, err := s.recorder.Append(ctx, s.id, AggregateType, eventType, data); err != nil {
		s.logger.Warn("failed to record cart event",
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		CartID:     s.id,
		Items:      append([]CartItem{}, s.items...),
		ItemCount:  itemCount(s.items),
		TotalPrice: totalPrice(s.items),
	}
}

func itemCount(items []CartItem) int {
	count := 0
	for _, item := range items {
		count += item.Quantity
	}
	return count
}

func totalPrice(items []CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}
