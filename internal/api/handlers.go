package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/tree-shop/internal/api/middleware"
	"github.com/example/tree-shop/internal/auth"
	"github.com/example/tree-shop/internal/catalog"
	"github.com/example/tree-shop/internal/domain/cart"
	"github.com/example/tree-shop/internal/session"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Handlers struct {
	catalog  catalog.Catalog
	sessions *session.Manager
	tokens   *auth.SessionTokens
	logger   *zap.Logger
}

func NewHandlers(c catalog.Catalog, sessions *session.Manager, tokens *auth.SessionTokens, logger *zap.Logger) *Handlers {
	return &Handlers{
		catalog:  c,
		sessions: sessions,
		tokens:   tokens,
		logger:   logger,
	}
}

type sessionResponse struct {
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type productsResponse struct {
	Products  []catalog.Product `json:"products"`
	ItemCount int               `json:"item_count"`
}

type cartLine struct {
	cart.CartItem
	Subtotal decimal.Decimal `json:"subtotal"`
}

type cartResponse struct {
	CartID     string          `json:"cart_id"`
	Items      []cartLine      `json:"items"`
	ItemCount  int             `json:"item_count"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

func newCartResponse(snap cart.Snapshot) cartResponse {
	lines := make([]cartLine, 0, len(snap.Items))
	for _, item := range snap.Items {
		lines = append(lines, cartLine{CartItem: item, Subtotal: item.Subtotal()})
	}
	return cartResponse{
		CartID:     snap.CartID,
		Items:      lines,
		ItemCount:  snap.ItemCount,
		TotalPrice: snap.TotalPrice,
	}
}

// Session Handlers

func (h *Handlers) OpenSession(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Open(r.Context())

	token, expiresAt, err := h.tokens.Issue(s.ID)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.String("session_id", s.ID), zap.Error(err))
		_ = h.sessions.Close(r.Context(), s.ID)
		respondError(w, "failed to open session", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/shop",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	respondJSON(w, http.StatusCreated, sessionResponse{
		SessionID: s.ID,
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

func (h *Handlers) CloseSession(w http.ResponseWriter, r *http.Request) {
	s := mustSession(r)
	if err := h.sessions.Close(r.Context(), s.ID); err != nil {
		respondError(w, err.Error(), http.StatusNotFound)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:   middleware.SessionCookie,
		Value:  "",
		Path:   "/shop",
		MaxAge: -1,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Shop listing

func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	s := mustSession(r)

	products, err := h.catalog.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list products", zap.Error(err))
		respondError(w, "failed to list products", http.StatusInternalServerError)
		return
	}
	if products == nil {
		products = []catalog.Product{}
	}

	respondJSON(w, http.StatusOK, productsResponse{
		Products:  products,
		ItemCount: s.Cart.ItemCount(),
	})
}

// Cart Handlers

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	s := mustSession(r)
	respondJSON(w, http.StatusOK, newCartResponse(s.Cart.Snapshot()))
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	s := mustSession(r)

	var req struct {
		ID *int `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID == nil {
		respondError(w, "id is required", http.StatusBadRequest)
		return
	}

	product, err := h.catalog.Get(r.Context(), *req.ID)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			respondError(w, err.Error(), http.StatusNotFound)
			return
		}
		h.logger.Error("failed to look up product", zap.Int("product_id", *req.ID), zap.Error(err))
		respondError(w, "failed to look up product", http.StatusInternalServerError)
		return
	}

	snap := s.Cart.AddToCart(r.Context(), product.CartProduct())
	respondJSON(w, http.StatusOK, newCartResponse(snap))
}

func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	s := mustSession(r)

	id, err := strconv.Atoi(extractPathParam(r.URL.Path, "/shop/cart/items/"))
	if err != nil {
		respondError(w, "invalid product id", http.StatusBadRequest)
		return
	}

	snap := s.Cart.RemoveFromCart(r.Context(), id)
	respondJSON(w, http.StatusOK, newCartResponse(snap))
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	s := mustSession(r)
	respondJSON(w, http.StatusOK, newCartResponse(s.Cart.Clear(r.Context())))
}

// Checkout is handled outside this service.
func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	s := mustSession(r)
	snap := s.Cart.Snapshot()
	h.logger.Info("checkout requested",
		zap.String("session_id", s.ID),
		zap.Int("item_count", snap.ItemCount),
		zap.String("total_price", snap.TotalPrice.StringFixed(2)))
	respondError(w, "checkout is not available", http.StatusNotImplemented)
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": h.sessions.Len(),
	})
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, status, map[string]string{"error": message})
}

func extractPathParam(path, prefix string) string {
	return strings.Trim(strings.TrimPrefix(path, prefix), "/")
}

// mustSession returns the session placed in the context by SessionMiddleware.
// Routes using it are always wrapped by that middleware.
func mustSession(r *http.Request) *session.Session {
	s, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		panic("api: handler used without SessionMiddleware")
	}
	return s
}
