package mocks

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/example/tree-shop/internal/infrastructure/store"
	"github.com/google/uuid"
)

// MockEventStore records cart activity in memory for tests. It also records
// which carts were forgotten when their session ended.
type MockEventStore struct {
	mu     sync.RWMutex
	events map[string][]store.Event

	AppendCalls []AppendCall
	AppendErr   error
	Forgotten   []string
}

// AppendCall is one recorded Append
type AppendCall struct {
	AggregateID   string
	AggregateType string
	EventType     string
	Data          any
}

func NewMockEventStore() *MockEventStore {
	return &MockEventStore{
		events:      make(map[string][]store.Event),
		AppendCalls: make([]AppendCall, 0),
	}
}

// Append records the call; unless AppendErr is set the event is kept too
func (m *MockEventStore) Append(ctx context.Context, cartID, aggregateType, eventType string, data any) (*store.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AppendCalls = append(m.AppendCalls, AppendCall{
		AggregateID:   cartID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          data,
	})
	if m.AppendErr != nil {
		return nil, m.AppendErr
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	event := store.Event{
		ID:            uuid.NewString(),
		AggregateID:   cartID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          payload,
		Timestamp:     time.Now(),
		Version:       len(m.events[cartID]) + 1,
	}
	m.events[cartID] = append(m.events[cartID], event)
	return &event, nil
}

func (m *MockEventStore) GetEvents(cartID string) []store.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.events[cartID]
}

func (m *MockEventStore) GetAllEvents() []store.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []store.Event
	for _, events := range m.events {
		all = append(all, events...)
	}
	return all
}

// Forget drops a cart's events and remembers that it was asked to
func (m *MockEventStore) Forget(cartID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.events, cartID)
	m.Forgotten = append(m.Forgotten, cartID)
}

// Calls returns a copy of the recorded Append calls
func (m *MockEventStore) Calls() []AppendCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]AppendCall(nil), m.AppendCalls...)
}

// EventTypes returns the event types appended for a cart, in order
func (m *MockEventStore) EventTypes(cartID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var types []string
	for _, call := range m.AppendCalls {
		if call.AggregateID == cartID {
			types = append(types, call.EventType)
		}
	}
	return types
}
