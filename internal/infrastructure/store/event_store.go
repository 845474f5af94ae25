package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultQueueSize      = 1024
	defaultPublishTimeout = 5 * time.Second
)

// Event represents a cart activity event
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	Data          json.RawMessage `json:"data"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
}

// EventStore keeps cart activity in memory and forwards it to a publisher.
// Events are an audit trail only; carts are never rebuilt from them.
//
// Publishing happens on a single background goroutine so Append never waits
// on the broker. Events are published in append order. When the queue is full
// the event is kept locally and its publish is dropped.
type EventStore struct {
	mu     sync.RWMutex
	events map[string][]Event // aggregateID -> events
	closed bool

	publisher      Publisher
	queue          chan Event
	done           chan struct{}
	queueSize      int
	publishTimeout time.Duration
	logger         *zap.Logger
}

type EventStoreOption func(*EventStore)

func WithLogger(logger *zap.Logger) EventStoreOption {
	return func(es *EventStore) {
		es.logger = logger
	}
}

func WithQueueSize(n int) EventStoreOption {
	return func(es *EventStore) {
		es.queueSize = n
	}
}

// WithPublishTimeout bounds each call to the publisher
func WithPublishTimeout(d time.Duration) EventStoreOption {
	return func(es *EventStore) {
		es.publishTimeout = d
	}
}

// NewEventStore creates an event store. publisher may be nil; when it is not,
// Close must be called to flush pending publishes.
func NewEventStore(publisher Publisher, opts ...EventStoreOption) *EventStore {
	es := &EventStore{
		events:         make(map[string][]Event),
		publisher:      publisher,
		queueSize:      defaultQueueSize,
		publishTimeout: defaultPublishTimeout,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(es)
	}

	if publisher != nil {
		es.queue = make(chan Event, es.queueSize)
		es.done = make(chan struct{})
		go es.publishLoop()
	}
	return es
}

// Append stores an event and queues it for publishing
func (es *EventStore) Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*Event, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", eventType, err)
	}

	es.mu.Lock()
	defer es.mu.Unlock()

	version := len(es.events[aggregateID]) + 1
	event := Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          jsonData,
		Timestamp:     time.Now(),
		Version:       version,
	}
	es.events[aggregateID] = append(es.events[aggregateID], event)

	if es.queue != nil && !es.closed {
		select {
		case es.queue <- event:
		default:
			es.logger.Warn("publish queue full, dropping event",
				zap.String("cart_id", aggregateID),
				zap.String("event_type", eventType),
				zap.Int("version", version))
		}
	}

	return &event, nil
}

func (es *EventStore) publishLoop() {
	defer close(es.done)

	for event := range es.queue {
		ctx, cancel := context.WithTimeout(context.Background(), es.publishTimeout)
		err := es.publisher.Publish(ctx, event.AggregateID, event)
		cancel()
		if err != nil {
			es.logger.Warn("failed to publish event",
				zap.String("cart_id", event.AggregateID),
				zap.String("event_type", event.EventType),
				zap.Int("version", event.Version),
				zap.Error(err))
		}
	}
}

// Close stops accepting publishes and waits for queued ones to finish
func (es *EventStore) Close() {
	es.mu.Lock()
	if es.closed || es.queue == nil {
		es.closed = true
		es.mu.Unlock()
		return
	}
	es.closed = true
	close(es.queue)
	es.mu.Unlock()

	<-es.done
}

// GetEvents returns all events for an aggregate
func (es *EventStore) GetEvents(aggregateID string) []Event {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return append([]Event(nil), es.events[aggregateID]...)
}

// GetAllEvents returns all events
func (es *EventStore) GetAllEvents() []Event {
	es.mu.RLock()
	defer es.mu.RUnlock()

	var all []Event
	for _, events := range es.events {
		all = append(all, events...)
	}
	return all
}

// Forget drops the events of a discarded aggregate
func (es *EventStore) Forget(aggregateID string) {
	es.mu.Lock()
	defer es.mu.Unlock()
	delete(es.events, aggregateID)
}
