package catalog

import (
	"context"
	"log/slog"
	"time"

	"github.com/sidestake/exchange/internal/guard"
	"github.com/sidestake/exchange/internal/repository"
)

const sourceKey = "sheets"

// RowSource abstracts the spreadsheet read for testing.
type RowSource interface {
	FetchRows(ctx context.Context) ([][]string, error)
}

// Synchronizer mirrors the spreadsheet into the fight table: upsert every row,
// then prune fights that vanished from the sheet. Pruning never touches a
// fight that still has live deals.
type Synchronizer struct {
	db       repository.DBTX
	fights   repository.FightRepository
	source   RowSource
	circuit  *guard.CircuitBreaker
	interval time.Duration
	logger   *slog.Logger
}

// NewSynchronizer creates a catalog synchronizer.
func NewSynchronizer(db repository.DBTX, fights repository.FightRepository, source RowSource, circuit *guard.CircuitBreaker, interval time.Duration, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		db:       db,
		fights:   fights,
		source:   source,
		circuit:  circuit,
		interval: interval,
		logger:   logger,
	}
}

// Run syncs on a fixed interval until the context is canceled.
func (s *Synchronizer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("catalog sync started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("catalog sync stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.SyncOnce(ctx); err != nil {
				s.logger.Error("catalog sync failed", "error", err)
			}
		}
	}
}

// SyncOnce performs one full upsert-and-prune pass.
func (s *Synchronizer) SyncOnce(ctx context.Context) error {
	if err := s.circuit.Allow(sourceKey); err != nil {
		s.logger.Warn("skipping catalog sync", "error", err)
		return nil
	}

	grid, err := s.source.FetchRows(ctx)
	if err != nil {
		s.circuit.RecordFailure(sourceKey)
		return err
	}
	s.circuit.RecordSuccess(sourceKey)

	fights, skipped := ParseFights(grid)
	for _, reason := range skipped {
		s.logger.Warn("sheet row skipped", "reason", reason)
	}

	touched := make([]int64, 0, len(fights))
	for i := range fights {
		id, err := s.fights.Upsert(ctx, s.db, &fights[i])
		if err != nil {
			return err
		}
		touched = append(touched, id)
	}

	deleted, retained, err := s.fights.PruneUntouched(ctx, s.db, touched)
	if err != nil {
		return err
	}

	if len(retained) > 0 {
		s.logger.Warn("prune refused fights with live deals", "fight_ids", retained)
	}
	s.logger.Info("catalog synced",
		"upserted", len(touched), "deleted", len(deleted), "retained", len(retained), "skipped", len(skipped))
	return nil
}
