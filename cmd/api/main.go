package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"staffledger/api"
	"staffledger/auth"
	"staffledger/config"
	"staffledger/credit"
	"staffledger/db"
	"staffledger/discount"
	"staffledger/outbox"
	"staffledger/posting"
	"staffledger/rates"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		logger.Error("bootstrap database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	events := outbox.NewWriter()

	authService := auth.NewService(auth.NewRepository(pool), cfg.JWT.Secret, time.Duration(cfg.JWT.Expiration)*time.Second)

	rateService := rates.NewService(pool, rates.NewRepository(pool), rates.Config{
		DefaultCredits:  cfg.Pricing.DefaultCredits,
		FallbackEnabled: cfg.Pricing.FallbackEnabled,
	})

	discountEngine := discount.NewEngine(pool, discount.NewRepository(pool), discount.Config{
		CommissionBasis: discount.Basis(cfg.Commission.Basis),
		DueMonths:       cfg.Commission.DueMonths,
	}).WithOutbox(events)

	ledger := credit.NewLedger(pool, credit.NewRepository(pool)).
		WithOutbox(events).
		WithDiscounts(discountEngine)

	postingService := posting.NewService(pool, posting.NewRepository(pool), rateService, ledger).
		WithOutbox(events)

	handler := api.NewHandler(authService, ledger, rateService, postingService, discountEngine)
	handler.RegisterRoutes()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      handler.Mux,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
		}
	}()

	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}
