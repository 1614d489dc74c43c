package settlement

import (
	"context"
	"log/slog"
	"time"

	"github.com/sidestake/exchange/internal/domain"
	"github.com/sidestake/exchange/internal/notify"
	"github.com/sidestake/exchange/internal/repository"
)

// Reminder nags operators about fights whose start time passed without a
// recorded result. Payouts cannot run until someone records the winner.
type Reminder struct {
	db       repository.DBTX
	fights   repository.FightRepository
	notifier notify.Notifier
	adminIDs []int64
	logger   *slog.Logger

	interval time.Duration
	repeat   time.Duration
	notified map[int64]time.Time
}

// NewReminder creates a reminder worker. adminIDs are the chat identities of
// operators who can record results.
func NewReminder(db repository.DBTX, fights repository.FightRepository, notifier notify.Notifier, adminIDs []int64, interval time.Duration, logger *slog.Logger) *Reminder {
	return &Reminder{
		db:       db,
		fights:   fights,
		notifier: notifier,
		adminIDs: adminIDs,
		logger:   logger,
		interval: interval,
		repeat:   6 * time.Hour,
		notified: make(map[int64]time.Time),
	}
}

// Run ticks until the context is canceled.
func (r *Reminder) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("result reminder started", "interval", r.interval, "admins", len(r.adminIDs))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("result reminder stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.Tick(ctx); err != nil {
				r.logger.Error("reminder tick failed", "error", err)
			}
		}
	}
}

// Tick notifies admins about overdue fights, at most once per repeat window
// per fight.
func (r *Reminder) Tick(ctx context.Context) error {
	if len(r.adminIDs) == 0 {
		return nil
	}

	overdue, err := r.fights.ListOverdue(ctx, r.db, 20)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, f := range overdue {
		if last, ok := r.notified[f.ID]; ok && now.Sub(last) < r.repeat {
			continue
		}
		r.notified[f.ID] = now

		r.logger.Warn("fight result overdue", "fight_id", f.ID, "title", f.Title)
		for _, adminID := range r.adminIDs {
			r.notifier.Notify(ctx, domain.Notification{
				Kind:                domain.NotifyResultOverdue,
				RecipientExternalID: adminID,
				FightID:             f.ID,
				FightTitle:          f.Title,
				OccurredAt:          now,
			})
		}
	}
	return nil
}
