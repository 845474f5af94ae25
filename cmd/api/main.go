package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/example/tree-shop/internal/api"
	"github.com/example/tree-shop/internal/auth"
	"github.com/example/tree-shop/internal/catalog"
	"github.com/example/tree-shop/internal/config"
	"github.com/example/tree-shop/internal/infrastructure/kafka"
	"github.com/example/tree-shop/internal/infrastructure/store"
	"github.com/example/tree-shop/internal/logging"
	"github.com/example/tree-shop/internal/session"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New("tree-shop-api", cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cfg.ValidateSecret(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Catalog: PostgreSQL when configured, otherwise the built-in trees
	var trees catalog.Catalog
	if cfg.DatabaseURL != "" {
		db, err := catalog.ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
		}
		defer db.Close()

		pg := catalog.NewPostgresCatalog(db)
		if err := pg.Migrate(ctx, catalog.DefaultTrees()); err != nil {
			logger.Fatal("failed to migrate catalog", zap.Error(err))
		}
		trees = pg
		logger.Info("catalog: PostgreSQL")
	} else {
		trees = catalog.NewMemoryCatalog(catalog.DefaultTrees()...)
		logger.Info("catalog: in-memory")
	}

	// Cart activity is published to Kafka when brokers are configured
	var publisher store.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		publisher = producer
		logger.Info("publishing cart activity",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic))
	}
	// Publishing runs off the request path; Close drains what is queued and is
	// deferred after producer.Close so it runs first.
	eventStore := store.NewEventStore(publisher,
		store.WithLogger(logger.Named("events")),
		store.WithPublishTimeout(cfg.PublishTimeout),
		store.WithQueueSize(cfg.PublishQueueSize))
	defer eventStore.Close()

	sessions := session.NewManager(eventStore, cfg.SessionTTL, logger.Named("session"))
	tokens := auth.NewSessionTokens(cfg.SessionSecret, cfg.SessionTTL)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sessions.Run(ctx, cfg.SweepInterval)
	}()

	handlers := api.NewHandlers(trees, sessions, tokens, logger.Named("api"))
	router := api.NewRouter(api.RouterConfig{
		Handlers: handlers,
		Tokens:   tokens,
		Sessions: sessions,
		Logger:   logger.Named("http"),
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: cfg.HTTPReadHeaderTimeout,
		ReadTimeout:       cfg.HTTPReadTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}

	go func() {
		logger.Info("server started", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}

	wg.Wait()
}
