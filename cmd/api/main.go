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

	"golang.org/x/sync/errgroup"

	"github.com/sidestake/exchange/internal/app"
	"github.com/sidestake/exchange/internal/auth"
	"github.com/sidestake/exchange/internal/catalog"
	"github.com/sidestake/exchange/internal/guard"
	"github.com/sidestake/exchange/internal/handler"
	"github.com/sidestake/exchange/internal/infra"
	"github.com/sidestake/exchange/internal/matchmaking"
	"github.com/sidestake/exchange/internal/notify"
	"github.com/sidestake/exchange/internal/provider"
	"github.com/sidestake/exchange/internal/reconciler"
	"github.com/sidestake/exchange/internal/repository"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to postgres")

	if err := infra.RunMigrations(cfg.DSN(), logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, 24*time.Hour, time.Hour)

	producer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	defer producer.Close()
	notifier := notify.NewKafkaNotifier(producer, logger)

	userRepo := repository.NewUserRepository()
	fightRepo := repository.NewFightRepository()
	dealRepo := repository.NewDealRepository()
	waitRepo := repository.NewInvoiceWaitRepository()
	transferRepo := repository.NewTransferLogRepository()

	circuit := guard.NewCircuitBreaker(5, 30*time.Second)
	cryptoPay := provider.NewCryptoPayClient(cfg.CryptoPayBaseURL, cfg.CryptoPayToken, cfg.CryptoDefaultAsset)

	engine := matchmaking.NewEngine(pool, cryptoPay, circuit,
		userRepo, fightRepo, dealRepo, waitRepo, transferRepo, notifier, logger)

	rec := reconciler.New(pool, waitRepo, cryptoPay, engine, circuit,
		time.Duration(cfg.ReconcileIntervalSeconds)*time.Second, logger)

	// Force-sync endpoint works only when the catalog source is configured;
	// the continuous loop lives in cmd/syncer.
	var syncer handler.CatalogSyncer
	if cfg.GSheetSpreadsheetID != "" {
		sheet := catalog.NewSheetClient("", cfg.GSheetAPIKey, cfg.GSheetSpreadsheetID, cfg.GSheetRange)
		syncer = catalog.NewSynchronizer(pool, fightRepo, sheet, circuit,
			time.Duration(cfg.GSheetPollSeconds)*time.Second, logger)
	}

	router := app.NewRouter(app.RouterDeps{
		Pool:          pool,
		JWTMgr:        jwtMgr,
		Engine:        engine,
		Watcher:       rec,
		Fights:        fightRepo,
		Syncer:        syncer,
		Logger:        logger,
		ServiceAPIKey: cfg.ServiceAPIKey,
		AdminAPIKey:   cfg.AdminAPIKey,
	})

	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("api server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return rec.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("server stopped gracefully")
	return nil
}
