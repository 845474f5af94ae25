package cart

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventItemAdded     = "ItemAddedToCart"
	EventItemRemoved   = "ItemRemovedFromCart"
	EventCartCleared   = "CartCleared"
	EventCartDiscarded = "CartDiscarded" // once, when the owning session ends
)

// ItemAddedToCart is recorded for every addToCart. Quantity is the line
// quantity after the add.
type ItemAddedToCart struct {
	CartID    string          `json:"cart_id"`
	ProductID int             `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	AddedAt   time.Time       `json:"added_at"`
}

// ItemRemovedFromCart carries the quantity of the whole line that was dropped.
type ItemRemovedFromCart struct {
	CartID    string    `json:"cart_id"`
	ProductID int       `json:"product_id"`
	Quantity  int       `json:"quantity"`
	RemovedAt time.Time `json:"removed_at"`
}

type CartCleared struct {
	CartID    string    `json:"cart_id"`
	ItemCount int       `json:"item_count"`
	ClearedAt time.Time `json:"cleared_at"`
}

type CartDiscarded struct {
	CartID      string    `json:"cart_id"`
	ItemCount   int       `json:"item_count"`
	Reason      string    `json:"reason"`
	DiscardedAt time.Time `json:"discarded_at"`
}
