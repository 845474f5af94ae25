// Package session scopes one cart to one activation of the shop flow.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/example/tree-shop/internal/domain/cart"
	"github.com/example/tree-shop/internal/infrastructure/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrSessionNotFound = errors.New("shop session not found")

// Session is an open shop flow and the cart it owns
type Session struct {
	ID       string
	Cart     *cart.Store
	OpenedAt time.Time

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// LastSeen returns when the session was last opened or looked up
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Forgetter drops recorded activity for a discarded cart
type Forgetter interface {
	Forget(aggregateID string)
}

// Manager owns the open sessions
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	recorder store.EventStoreInterface
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewManager creates a manager whose sessions expire after ttl of inactivity.
// recorder may be nil.
func NewManager(recorder store.EventStoreInterface, ttl time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		recorder: recorder,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// Open starts a new shop session with an empty cart
func (m *Manager) Open(ctx context.Context) *Session {
	id := uuid.New().String()
	now := m.now()

	opts := []cart.Option{cart.WithLogger(m.logger)}
	if m.recorder != nil {
		opts = append(opts, cart.WithRecorder(m.recorder))
	}

	s := &Session{
		ID:       id,
		Cart:     cart.NewStore(id, opts...),
		OpenedAt: now,
		lastSeen: now,
	}

	m.mu.Lock()
	m.sessions[id] = s
	count := len(m.sessions)
	m.mu.Unlock()

	m.logger.Info("shop session opened", zap.String("session_id", id), zap.Int("open_sessions", count))
	return s
}

// Get returns an open session and marks it as active
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touch(m.now())
	return s, nil
}

// Close discards a session and its cart
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	m.discard(ctx, s, "closed")
	return nil
}

// Len returns the number of open sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep discards sessions idle for longer than the ttl and returns how many
// were removed.
func (m *Manager) Sweep(ctx context.Context, now time.Time) int {
	var expired []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.LastSeen()) > m.ttl {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		m.discard(ctx, s, "expired")
	}
	return len(expired)
}

// Run sweeps every interval until ctx is done
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(ctx, m.now()); n > 0 {
				m.logger.Info("expired idle shop sessions", zap.Int("count", n))
			}
		}
	}
}

// discard records the cart's terminal event before its local activity is
// forgotten, so consumers can release whatever the cart still held.
func (m *Manager) discard(ctx context.Context, s *Session, reason string) {
	itemCount := s.Cart.ItemCount()
	s.Cart.Discard(ctx, reason)
	if f, ok := m.recorder.(Forgetter); ok {
		f.Forget(s.ID)
	}
	m.logger.Info("shop session discarded",
		zap.String("session_id", s.ID),
		zap.String("reason", reason),
		zap.Int("item_count", itemCount))
}
