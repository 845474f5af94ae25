package api

import (
	"net/http"
	"time"

	"github.com/example/tree-shop/internal/api/middleware"
	"github.com/example/tree-shop/internal/auth"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Handlers *Handlers
	Tokens   *auth.SessionTokens
	Sessions middleware.SessionLookup
	Logger   *zap.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	handlers := cfg.Handlers
	withSession := middleware.SessionMiddleware(cfg.Tokens, cfg.Sessions)

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.Health(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	// Sessions
	mux.HandleFunc("/shop/sessions", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handlers.OpenSession(w, r)
		case http.MethodDelete:
			withSession(http.HandlerFunc(handlers.CloseSession)).ServeHTTP(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	// Shop listing
	mux.Handle("/shop/products", withSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.ListProducts(w, r)
		default:
			methodNotAllowed(w)
		}
	})))

	// Cart
	mux.Handle("/shop/cart", withSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetCart(w, r)
		case http.MethodDelete:
			handlers.ClearCart(w, r)
		default:
			methodNotAllowed(w)
		}
	})))

	mux.Handle("/shop/cart/items", withSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handlers.AddToCart(w, r)
		default:
			methodNotAllowed(w)
		}
	})))

	mux.Handle("/shop/cart/items/", withSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodDelete:
			handlers.RemoveFromCart(w, r)
		default:
			methodNotAllowed(w)
		}
	})))

	mux.Handle("/shop/cart/checkout", withSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handlers.Checkout(w, r)
		default:
			methodNotAllowed(w)
		}
	})))

	return withLogging(cfg.Logger, mux)
}

func methodNotAllowed(w http.ResponseWriter) {
	respondError(w, "method not allowed", http.StatusMethodNotAllowed)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func withLogging(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}
