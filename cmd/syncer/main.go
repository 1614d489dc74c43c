package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sidestake/exchange/internal/catalog"
	"github.com/sidestake/exchange/internal/guard"
	"github.com/sidestake/exchange/internal/infra"
	"github.com/sidestake/exchange/internal/repository"
)

func main() {
	once := flag.Bool("once", false, "run a single sync and exit")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger, *once); err != nil {
		logger.Error("syncer failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, once bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.GSheetSpreadsheetID == "" {
		return fmt.Errorf("GSHEET_SPREADSHEET_ID is required")
	}

	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to postgres")

	sheet := catalog.NewSheetClient("", cfg.GSheetAPIKey, cfg.GSheetSpreadsheetID, cfg.GSheetRange)
	circuit := guard.NewCircuitBreaker(5, time.Minute)
	sync := catalog.NewSynchronizer(pool, repository.NewFightRepository(), sheet, circuit,
		time.Duration(cfg.GSheetPollSeconds)*time.Second, logger)

	if once {
		return sync.SyncOnce(ctx)
	}

	if err := sync.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("syncer stopped gracefully")
	return nil
}
