package cart

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/example/tree-shop/internal/infrastructure/store/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	oak   = Product{ID: 1, Name: "Oak", Price: decimal.RequireFromString("29.99")}
	pine  = Product{ID: 2, Name: "Pine", Price: decimal.RequireFromString("24.99")}
	maple = Product{ID: 3, Name: "Maple", Price: decimal.RequireFromString("34.99")}
)

func newTestStore() (*Store, *mocks.MockEventStore) {
	eventStore := mocks.NewMockEventStore()
	return NewStore("session-123", WithRecorder(eventStore)), eventStore
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(expected).Equal(actual), "expected %s, got %s", expected, actual)
}

// ============================================
// Empty cart
// ============================================

func TestStore_Empty(t *testing.T) {
	s, _ := newTestStore()

	assert.Empty(t, s.Items())
	assert.Equal(t, 0, s.ItemCount())
	assertDecimal(t, "0", s.TotalPrice())
	assert.True(t, s.IsEmpty())
	assert.Equal(t, "session-123", s.ID())
}

// ============================================
// AddToCart
// ============================================

func TestStore_AddToCart_DistinctProducts(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	for _, p := range []Product{oak, pine, maple} {
		s.AddToCart(ctx, p)
	}

	items := s.Items()
	require.Len(t, items, 3)
	for i, p := range []Product{oak, pine, maple} {
		assert.Equal(t, p.ID, items[i].ID)
		assert.Equal(t, p.Name, items[i].Name)
		assert.Equal(t, 1, items[i].Quantity)
	}
	assert.Equal(t, 3, s.ItemCount())
}

func TestStore_AddToCart_SameProductIncrements(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	s.AddToCart(ctx, oak)
	s.AddToCart(ctx, oak)

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, 2, s.ItemCount())
}

func TestStore_AddToCart_KeepsFirstPrice(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	s.AddToCart(ctx, oak)
	s.AddToCart(ctx, Product{ID: oak.ID, Name: "Oak", Price: decimal.RequireFromString("99.00")})

	items := s.Items()
	require.Len(t, items, 1)
	assertDecimal(t, "29.99", items[0].Price)
	assertDecimal(t, "59.98", s.TotalPrice())
}

func TestStore_AddToCart_AcceptsUnvalidatedInput(t *testing.T) {
	s, _ := newTestStore()

	s.AddToCart(context.Background(), Product{ID: 0, Name: "", Price: decimal.RequireFromString("-5")})

	require.Len(t, s.Items(), 1)
	assertDecimal(t, "-5", s.TotalPrice())
}

func TestStore_Scenario_OakOakPine(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	s.AddToCart(ctx, Product{ID: 1, Name: "Oak", Price: decimal.RequireFromString("29.99")})
	s.AddToCart(ctx, Product{ID: 1, Name: "Oak", Price: decimal.RequireFromString("29.99")})
	s.AddToCart(ctx, Product{ID: 2, Name: "Pine", Price: decimal.RequireFromString("24.99")})

	items := s.Items()
	require.Len(t, items, 2)
	assert.Equal(t, 1, items[0].ID)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, 2, items[1].ID)
	assert.Equal(t, 1, items[1].Quantity)
	assert.Equal(t, 3, s.ItemCount())
	assert.Equal(t, "84.97", s.TotalPrice().StringFixed(2))
}

// ============================================
// RemoveFromCart
// ============================================

func TestStore_RemoveFromCart_WholeLine(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	s.AddToCart(ctx, oak)
	s.AddToCart(ctx, oak)
	s.AddToCart(ctx, oak)
	s.AddToCart(ctx, pine)

	s.RemoveFromCart(ctx, oak.ID)

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, pine.ID, items[0].ID)
	assert.Equal(t, 1, s.ItemCount())
	assertDecimal(t, "24.99", s.TotalPrice())
}

func TestStore_RemoveFromCart_UnknownID(t *testing.T) {
	s, eventStore := newTestStore()
	ctx := context.Background()
	s.AddToCart(ctx, oak)
	s.AddToCart(ctx, pine)
	before := s.Items()

	s.RemoveFromCart(ctx, 42)

	assert.Equal(t, before, s.Items())
	assert.Len(t, eventStore.AppendCalls, 2)
}

func TestStore_RemoveFromCart_LastItemEmptiesCart(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	s.AddToCart(ctx, oak)
	s.RemoveFromCart(ctx, oak.ID)

	assert.True(t, s.IsEmpty())
	assert.Equal(t, 0, s.ItemCount())

	s.AddToCart(ctx, maple)
	assert.False(t, s.IsEmpty())
}

func TestStore_RemoveFromCart_PreservesOrder(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	s.AddToCart(ctx, oak)
	s.AddToCart(ctx, pine)
	s.AddToCart(ctx, maple)

	s.RemoveFromCart(ctx, pine.ID)

	items := s.Items()
	require.Len(t, items, 2)
	assert.Equal(t, oak.ID, items[0].ID)
	assert.Equal(t, maple.ID, items[1].ID)
}

// ============================================
// Derived values
// ============================================

func TestStore_TotalPrice_RecomputedAfterEveryMutation(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	steps := []struct {
		name     string
		mutate   func()
		expected string
	}{
		{"add oak", func() { s.AddToCart(ctx, oak) }, "29.99"},
		{"add maple", func() { s.AddToCart(ctx, maple) }, "64.98"},
		{"add oak again", func() { s.AddToCart(ctx, oak) }, "94.97"},
		{"remove oak", func() { s.RemoveFromCart(ctx, oak.ID) }, "34.99"},
		{"clear", func() { s.Clear(ctx) }, "0"},
	}

	for _, step := range steps {
		step.mutate()
		assertDecimal(t, step.expected, s.TotalPrice())

		sum := decimal.Zero
		for _, item := range s.Items() {
			sum = sum.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
		assert.True(t, sum.Equal(s.TotalPrice()), step.name)
	}
}

func TestStore_Items_ReturnsCopy(t *testing.T) {
	s, _ := newTestStore()
	s.AddToCart(context.Background(), oak)

	items := s.Items()
	items[0].Quantity = 100

	assert.Equal(t, 1, s.ItemCount())
}

// ============================================
// Clear
// ============================================

func TestStore_Clear(t *testing.T) {
	s, eventStore := newTestStore()
	ctx := context.Background()
	s.AddToCart(ctx, oak)
	s.AddToCart(ctx, oak)

	s.Clear(ctx)

	assert.True(t, s.IsEmpty())
	calls := eventStore.AppendCalls
	require.Len(t, calls, 3)
	data := calls[2].Data.(CartCleared)
	assert.Equal(t, EventCartCleared, calls[2].EventType)
	assert.Equal(t, 2, data.ItemCount)
}

// ============================================
// Events
// ============================================

func TestStore_RecordsEvents(t *testing.T) {
	s, eventStore := newTestStore()
	ctx := context.Background()

	s.AddToCart(ctx, oak)
	s.AddToCart(ctx, oak)
	s.RemoveFromCart(ctx, oak.ID)

	calls := eventStore.AppendCalls
	require.Len(t, calls, 3)
	for _, call := range calls {
		assert.Equal(t, "session-123", call.AggregateID)
		assert.Equal(t, AggregateType, call.AggregateType)
	}

	added := calls[1].Data.(ItemAddedToCart)
	assert.Equal(t, EventItemAdded, calls[1].EventType)
	assert.Equal(t, oak.ID, added.ProductID)
	assert.Equal(t, 2, added.Quantity)

	removed := calls[2].Data.(ItemRemovedFromCart)
	assert.Equal(t, EventItemRemoved, calls[2].EventType)
	assert.Equal(t, 2, removed.Quantity)
}

func TestStore_RecorderFailureDoesNotFailMutation(t *testing.T) {
	s, eventStore := newTestStore()
	eventStore.AppendErr = errors.New("store unavailable")

	s.AddToCart(context.Background(), oak)

	assert.Equal(t, 1, s.ItemCount())
	assert.Len(t, eventStore.AppendCalls, 1)
}

func TestStore_WithoutRecorder(t *testing.T) {
	s := NewStore("bare")

	s.AddToCart(context.Background(), pine)

	assert.Equal(t, 1, s.ItemCount())
}

// ============================================
// Listeners
// ============================================

func TestStore_Subscribe_NotifiedInOrder(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	var counts []int
	s.Subscribe(func(snap Snapshot) {
		counts = append(counts, snap.ItemCount)
	})

	s.AddToCart(ctx, oak)
	s.AddToCart(ctx, oak)
	s.AddToCart(ctx, pine)
	s.RemoveFromCart(ctx, 99)
	s.RemoveFromCart(ctx, oak.ID)

	assert.Equal(t, []int{1, 2, 3, 1}, counts)
}

func TestStore_Subscribe_ListenerCanReadStore(t *testing.T) {
	s, _ := newTestStore()

	var seen string
	s.Subscribe(func(snap Snapshot) {
		seen = s.TotalPrice().StringFixed(2)
	})
	s.AddToCart(context.Background(), maple)

	assert.Equal(t, "34.99", seen)
}

func TestStore_Unsubscribe(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	calls := 0
	unsubscribe := s.Subscribe(func(Snapshot) { calls++ })
	s.AddToCart(ctx, oak)
	unsubscribe()
	s.AddToCart(ctx, oak)

	assert.Equal(t, 1, calls)
}

// ============================================
// Concurrency
// ============================================

func TestStore_ConcurrentAdds(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AddToCart(ctx, oak)
		}()
	}
	wg.Wait()

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, workers, items[0].Quantity)
}

// ============================================
// Returned snapshots
// ============================================

func TestStore_MutationsReturnResultingCart(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	snap := s.AddToCart(ctx, oak)
	assert.Equal(t, 1, snap.ItemCount)
	assert.Equal(t, "session-123", snap.CartID)

	snap = s.AddToCart(ctx, pine)
	require.Len(t, snap.Items, 2)
	assertDecimal(t, "54.98", snap.TotalPrice)

	snap = s.RemoveFromCart(ctx, 42)
	assert.Equal(t, 2, snap.ItemCount)

	snap = s.RemoveFromCart(ctx, oak.ID)
	assert.Equal(t, 1, snap.ItemCount)

	snap = s.Clear(ctx)
	assert.Empty(t, snap.Items)
	assertDecimal(t, "0", snap.TotalPrice)
}

func TestStore_ConcurrentAdds_EachSnapshotHoldsOwnAdd(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	const workers = 50
	counts := make(chan int, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			counts <- s.AddToCart(ctx, oak).ItemCount
		}()
	}
	wg.Wait()
	close(counts)

	seen := make(map[int]bool)
	for c := range counts {
		assert.False(t, seen[c], "count %d returned twice", c)
		seen[c] = true
	}
	for i := 1; i <= workers; i++ {
		assert.True(t, seen[i], "no add observed count %d", i)
	}
}

// ============================================
// Discard
// ============================================

func TestStore_Discard(t *testing.T) {
	s, eventStore := newTestStore()
	ctx := context.Background()
	s.AddToCart(ctx, oak)
	s.AddToCart(ctx, oak)
	s.AddToCart(ctx, pine)

	var notified []int
	s.Subscribe(func(snap Snapshot) { notified = append(notified, snap.ItemCount) })

	snap := s.Discard(ctx, "closed")

	assert.Empty(t, snap.Items)
	assert.True(t, s.IsEmpty())
	assert.Equal(t, []int{0}, notified)

	calls := eventStore.AppendCalls
	require.Len(t, calls, 4)
	assert.Equal(t, EventCartDiscarded, calls[3].EventType)
	data := calls[3].Data.(CartDiscarded)
	assert.Equal(t, "session-123", data.CartID)
	assert.Equal(t, 3, data.ItemCount)
	assert.Equal(t, "closed", data.Reason)
}
