package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wbpmisueso/internal/auth"
	"wbpmisueso/internal/cache"
	"wbpmisueso/internal/config"
	"wbpmisueso/internal/database"
	"wbpmisueso/internal/events"
	"wbpmisueso/internal/handlers"
	"wbpmisueso/internal/ledger"
	"wbpmisueso/internal/schema"
	"wbpmisueso/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, database.Options{
		Driver:      cfg.DBDriver,
		DSN:         cfg.DBDSN,
		MaxAttempts: 10,
		RetryDelay:  2 * time.Second,
	})
	if err != nil {
		log.Fatalf("database error: %v", err)
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		log.Fatalf("database error: %v", err)
	}
	if err := schema.New(db, logger).EnsureCoreColumns(ctx); err != nil {
		log.Fatalf("schema error: %v", err)
	}

	backend, err := cache.New(cache.Options{Backend: cfg.CacheBackend, Dir: cfg.CacheDir, Logger: logger})
	if err != nil {
		log.Fatalf("cache error: %v", err)
	}
	defer backend.Close()
	invalidator := cache.NewInvalidator(backend, logger)

	h := &handlers.Handler{
		Auth: auth.NewService(db),
		Ledger: ledger.NewService(db, ledger.Options{
			Invalidator: invalidator,
			Cache:       backend,
			Overrun:     ledger.NewOverrunPolicy(cfg.OverrunStatuses...),
			Logger:      logger,
		}),
		Events: events.NewService(db, invalidator, logger),
		DB:     db,
	}
	r := server.NewRouter(cfg, h)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("server shutdown", "error", err)
		}
	}()

	log.Printf("starting server on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}
