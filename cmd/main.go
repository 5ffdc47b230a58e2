package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fjod/go_cart/marketplace-cart/internal/cart"
	carthttp "github.com/fjod/go_cart/marketplace-cart/internal/http"
	"github.com/fjod/go_cart/marketplace-cart/internal/logger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := loadConfig()

	log := logger.New(logger.Options{
		Service: "marketplace-cart",
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
	})

	ctx := context.Background()
	kv, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer closeStore()
	log.Info("store ready", "backend", cfg.StoreBackend)

	registry := cart.NewRegistry(kv, log, cfg.WriteTimeout)

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go registry.RunJanitor(janitorCtx, cfg.JanitorInterval, cfg.CartIdleTTL)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(carthttp.NewRouter(registry, cfg.RequestTimeout), "marketplace-cart"),
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		log.Info("cart service starting", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
	stopJanitor()

	// carts still queued for writing go out before the store is closed
	if err := registry.Close(shutdownCtx); err != nil {
		log.Warn("not every cart was flushed", "error", err)
	}

	log.Info("server exited", slog.Int("carts", registry.Len()))
}
