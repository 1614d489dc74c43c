package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sidestake/exchange/internal/guard"
	"github.com/sidestake/exchange/internal/infra"
	"github.com/sidestake/exchange/internal/notify"
	"github.com/sidestake/exchange/internal/provider"
	"github.com/sidestake/exchange/internal/repository"
	"github.com/sidestake/exchange/internal/settlement"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("settler failed", "error", err)
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

	producer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	defer producer.Close()
	notifier := notify.NewKafkaNotifier(producer, logger)

	userRepo := repository.NewUserRepository()
	fightRepo := repository.NewFightRepository()
	dealRepo := repository.NewDealRepository()
	transferRepo := repository.NewTransferLogRepository()

	circuit := guard.NewCircuitBreaker(5, 30*time.Second)
	cryptoPay := provider.NewCryptoPayClient(cfg.CryptoPayBaseURL, cfg.CryptoPayToken, cfg.CryptoDefaultAsset)

	engine := settlement.NewEngine(pool, cryptoPay, circuit,
		userRepo, dealRepo, transferRepo, notifier,
		cfg.FeePct, cfg.SettleBatch,
		time.Duration(cfg.SettleTickSeconds)*time.Second, logger)

	reminder := settlement.NewReminder(pool, fightRepo, notifier,
		cfg.AdminIDs(), 10*time.Minute, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(gctx) })
	g.Go(func() error { return reminder.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("settler stopped gracefully")
	return nil
}
