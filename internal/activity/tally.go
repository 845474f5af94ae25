// Package activity aggregates cart events consumed from Kafka into running
// per-tree counts.
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/example/tree-shop/internal/domain/cart"
	"github.com/example/tree-shop/internal/infrastructure/store"
	"go.uber.org/zap"
)

// ProductActivity is the tally for one tree
type ProductActivity struct {
	ProductID int    `json:"product_id"`
	Name      string `json:"name"`
	// Added counts every add-to-cart tap.
	Added int `json:"added"`
	// InCarts is the quantity currently sitting in carts.
	InCarts int `json:"in_carts"`
}

type Tally struct {
	mu       sync.Mutex
	products map[int]*ProductActivity
	carts    map[string]map[int]int // cartID -> productID -> quantity
	versions map[string]int         // cartID -> last applied version
	logger   *zap.Logger
}

func NewTally(logger *zap.Logger) *Tally {
	return &Tally{
		products: make(map[int]*ProductActivity),
		carts:    make(map[string]map[int]int),
		versions: make(map[string]int),
		logger:   logger,
	}
}

// HandleEvent applies one Kafka message. Redelivered events (version not
// newer than the last one applied for the cart) are skipped.
func (t *Tally) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("failed to decode event: %w", err)
	}
	if event.AggregateType != cart.AggregateType {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if event.Version <= t.versions[event.AggregateID] {
		t.logger.Debug("skipping duplicate event",
			zap.String("cart_id", event.AggregateID),
			zap.Int("version", event.Version))
		return nil
	}

	if err := t.apply(event); err != nil {
		return err
	}
	t.versions[event.AggregateID] = event.Version
	return nil
}

func (t *Tally) apply(event store.Event) error {
	switch event.EventType {
	case cart.EventItemAdded:
		var e cart.ItemAddedToCart
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return fmt.Errorf("failed to decode %s: %w", event.EventType, err)
		}
		p := t.product(e.ProductID)
		if e.Name != "" {
			p.Name = e.Name
		}
		p.Added++
		lines := t.lines(e.CartID)
		p.InCarts += e.Quantity - lines[e.ProductID]
		lines[e.ProductID] = e.Quantity

	case cart.EventItemRemoved:
		var e cart.ItemRemovedFromCart
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return fmt.Errorf("failed to decode %s: %w", event.EventType, err)
		}
		lines := t.lines(e.CartID)
		t.product(e.ProductID).InCarts -= lines[e.ProductID]
		delete(lines, e.ProductID)

	case cart.EventCartCleared:
		var e cart.CartCleared
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return fmt.Errorf("failed to decode %s: %w", event.EventType, err)
		}
		t.release(e.CartID)

	case cart.EventCartDiscarded:
		var e cart.CartDiscarded
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return fmt.Errorf("failed to decode %s: %w", event.EventType, err)
		}
		t.release(e.CartID)

	default:
		t.logger.Debug("ignoring event", zap.String("event_type", event.EventType))
	}
	return nil
}

// release takes every line of a cart out of InCarts
func (t *Tally) release(cartID string) {
	for productID, qty := range t.carts[cartID] {
		t.product(productID).InCarts -= qty
	}
	delete(t.carts, cartID)
}

func (t *Tally) product(id int) *ProductActivity {
	p, ok := t.products[id]
	if !ok {
		p = &ProductActivity{ProductID: id}
		t.products[id] = p
	}
	return p
}

func (t *Tally) lines(cartID string) map[int]int {
	lines, ok := t.carts[cartID]
	if !ok {
		lines = make(map[int]int)
		t.carts[cartID] = lines
	}
	return lines
}

// Snapshot returns the tallies ordered by product id
func (t *Tally) Snapshot() []ProductActivity {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]ProductActivity, 0, len(t.products))
	for _, p := range t.products {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ProductID < out[j].ProductID
	})
	return out
}
