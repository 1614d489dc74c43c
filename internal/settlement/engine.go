// Package settlement turns finished fights into money movement: winner
// payouts net of the house fee, refunds for orphaned legs, and compensating
// refunds for stranded payments. Every outbound transfer carries a
// deterministic spend_id so a crashed pass can be replayed safely.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sidestake/exchange/internal/domain"
	"github.com/sidestake/exchange/internal/guard"
	"github.com/sidestake/exchange/internal/infra"
	"github.com/sidestake/exchange/internal/notify"
	"github.com/sidestake/exchange/internal/provider"
	"github.com/sidestake/exchange/internal/repository"
)

const providerKey = "cryptopay"

// Transferer is the provider surface settlement needs to move funds out.
type Transferer interface {
	Transfer(ctx context.Context, externalUserID, amountCents int64, spendID string) error
}

// DB is the pool surface the engine needs.
type DB interface {
	repository.DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Engine drains settled fights in three passes per tick.
type Engine struct {
	db        DB
	transfer  Transferer
	circuit   *guard.CircuitBreaker
	users     repository.UserRepository
	deals     repository.DealRepository
	transfers repository.TransferLogRepository
	notifier  notify.Notifier
	logger    *slog.Logger

	feeBasisPoints int64
	batch          int
	interval       time.Duration
}

// NewEngine creates a settlement engine. feePct is the house cut on the
// pooled stake of a matched deal, e.g. 0.10.
func NewEngine(
	db DB,
	transfer Transferer,
	circuit *guard.CircuitBreaker,
	users repository.UserRepository,
	deals repository.DealRepository,
	transfers repository.TransferLogRepository,
	notifier notify.Notifier,
	feePct float64,
	batch int,
	interval time.Duration,
	logger *slog.Logger,
) *Engine {
	if batch <= 0 {
		batch = 100
	}
	return &Engine{
		db:             db,
		transfer:       transfer,
		circuit:        circuit,
		users:          users,
		deals:          deals,
		transfers:      transfers,
		notifier:       notifier,
		logger:         logger,
		feeBasisPoints: infra.FeeBasisPoints(feePct),
		batch:          batch,
		interval:       interval,
	}
}

// Run ticks until the context is canceled. Each tick is independent; a failed
// pass is retried wholesale on the next tick.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.logger.Info("settlement engine started", "interval", e.interval, "batch", e.batch)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("settlement engine stopped")
			return ctx.Err()
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick runs one payout, refund, and stranded-refund pass.
func (e *Engine) Tick(ctx context.Context) {
	if err := e.PayoutPass(ctx); err != nil {
		e.logger.Error("payout pass failed", "error", err)
	}
	if err := e.RefundPass(ctx); err != nil {
		e.logger.Error("refund pass failed", "error", err)
	}
	if err := e.StrandedPass(ctx); err != nil {
		e.logger.Error("stranded refund pass failed", "error", err)
	}
}

// PayoutPass pays winners of matched deals on done fights. The winner gets
// the pooled stake minus the fee; the loser leg gets a loss notification.
func (e *Engine) PayoutPass(ctx context.Context) error {
	tx, err := e.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin payout tx: %w", err)
	}
	defer tx.Rollback(ctx)

	candidates, err := e.deals.SelectForPayout(ctx, tx, e.batch)
	if err != nil {
		return err
	}

	var events []domain.Notification
	for _, c := range candidates {
		evs, err := e.payoutOne(ctx, tx, c)
		if err != nil {
			// Provider trouble: commit what succeeded, retry the rest next tick.
			e.logger.Error("payout failed", "deal_id", c.Deal.ID, "error", err)
			break
		}
		events = append(events, evs...)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit payout tx: %w", err)
	}
	for _, ev := range events {
		e.notifier.Notify(ctx, ev)
	}
	return nil
}

func (e *Engine) payoutOne(ctx context.Context, tx pgx.Tx, c repository.SettleCandidate) ([]domain.Notification, error) {
	if c.WinnerSide == nil {
		return nil, fmt.Errorf("deal %d: fight done without winner", c.Deal.ID)
	}
	winner := *c.WinnerSide

	winnerID, err := c.Deal.WinnerUserID(winner)
	if err != nil {
		return nil, err
	}
	loserID, err := c.Deal.WinnerUserID(winner.Opposite())
	if err != nil {
		return nil, err
	}

	total := c.Deal.TotalCents()
	fee := infra.ComputeFee(total, e.feeBasisPoints)
	net := total - fee

	winnerUser, err := e.users.FindByID(ctx, tx, winnerID)
	if err != nil {
		return nil, err
	}
	loserUser, err := e.users.FindByID(ctx, tx, loserID)
	if err != nil {
		return nil, err
	}
	if winnerUser == nil || loserUser == nil {
		return nil, fmt.Errorf("deal %d: participant rows missing", c.Deal.ID)
	}

	spendID := domain.PayoutSpendID(c.Deal.ID)
	if err := e.sendTransfer(ctx, winnerUser.ExternalID, net, spendID); err != nil {
		return nil, err
	}

	dealID := c.Deal.ID
	if err := e.transfers.InsertSent(ctx, tx, &domain.TransferLog{
		ID:          uuid.New(),
		SpendID:     spendID,
		Kind:        domain.TransferPayout,
		Status:      domain.TransferSent,
		DealID:      &dealID,
		UserID:      winnerID,
		AmountCents: net,
		FeeCents:    fee,
	}); err != nil {
		return nil, err
	}

	ok, err := e.deals.UpdateStatus(ctx, tx, c.Deal.ID, domain.DealMatched, domain.DealSettled)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("deal %d: settle transition lost", c.Deal.ID)
	}

	e.logger.Info("payout sent",
		"deal_id", c.Deal.ID, "winner_user_id", winnerID, "net_cents", net, "fee_cents", fee)

	now := time.Now().UTC()
	winnerName := c.Side1Name
	if winner == domain.Side2 {
		winnerName = c.Side2Name
	}
	return []domain.Notification{
		{
			Kind:                domain.NotifyPayoutSent,
			RecipientExternalID: winnerUser.ExternalID,
			DealID:              c.Deal.ID,
			FightTitle:          c.FightTitle,
			WinnerName:          winnerName,
			AmountCents:         net,
			FeeCents:            fee,
			OccurredAt:          now,
		},
		{
			Kind:                domain.NotifyDealLost,
			RecipientExternalID: loserUser.ExternalID,
			DealID:              c.Deal.ID,
			FightTitle:          c.FightTitle,
			WinnerName:          winnerName,
			OccurredAt:          now,
		},
	}, nil
}

// RefundPass refunds paid legs that never found an opponent before the fight
// finished. The full stake goes back; no fee is taken on refunds.
func (e *Engine) RefundPass(ctx context.Context) error {
	tx, err := e.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin refund tx: %w", err)
	}
	defer tx.Rollback(ctx)

	candidates, err := e.deals.SelectForRefund(ctx, tx, e.batch)
	if err != nil {
		return err
	}

	var events []domain.Notification
	for _, c := range candidates {
		ev, err := e.refundOne(ctx, tx, c)
		if err != nil {
			e.logger.Error("refund failed", "deal_id", c.Deal.ID, "error", err)
			break
		}
		if ev != nil {
			events = append(events, *ev)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit refund tx: %w", err)
	}
	for _, ev := range events {
		e.notifier.Notify(ctx, ev)
	}
	return nil
}

func (e *Engine) refundOne(ctx context.Context, tx pgx.Tx, c repository.SettleCandidate) (*domain.Notification, error) {
	user, err := e.users.FindByID(ctx, tx, c.Deal.User1ID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("deal %d: creator row missing", c.Deal.ID)
	}

	spendID := domain.RefundSpendID(c.Deal.ID)
	if err := e.sendTransfer(ctx, user.ExternalID, c.Deal.Amount1Cents, spendID); err != nil {
		return nil, err
	}

	dealID := c.Deal.ID
	if err := e.transfers.InsertSent(ctx, tx, &domain.TransferLog{
		ID:          uuid.New(),
		SpendID:     spendID,
		Kind:        domain.TransferRefund,
		Status:      domain.TransferSent,
		DealID:      &dealID,
		UserID:      c.Deal.User1ID,
		AmountCents: c.Deal.Amount1Cents,
	}); err != nil {
		return nil, err
	}

	ok, err := e.deals.UpdateStatus(ctx, tx, c.Deal.ID, domain.DealAwaitingMatch, domain.DealVoid)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("deal %d: void transition lost", c.Deal.ID)
	}

	e.logger.Info("orphan refund sent",
		"deal_id", c.Deal.ID, "user_id", c.Deal.User1ID, "amount_cents", c.Deal.Amount1Cents)

	return &domain.Notification{
		Kind:                domain.NotifyRefundSent,
		RecipientExternalID: user.ExternalID,
		DealID:              c.Deal.ID,
		FightTitle:          c.FightTitle,
		AmountCents:         c.Deal.Amount1Cents,
		OccurredAt:          time.Now().UTC(),
	}, nil
}

// StrandedPass sends queued compensating refunds for payments that landed
// after their target was gone.
func (e *Engine) StrandedPass(ctx context.Context) error {
	tx, err := e.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin stranded tx: %w", err)
	}
	defer tx.Rollback(ctx)

	pending, err := e.transfers.SelectPending(ctx, tx, e.batch)
	if err != nil {
		return err
	}

	var events []domain.Notification
	for _, t := range pending {
		user, err := e.users.FindByID(ctx, tx, t.UserID)
		if err != nil {
			return err
		}
		if user == nil {
			e.logger.Error("stranded refund without user", "transfer_id", t.ID, "user_id", t.UserID)
			continue
		}

		if err := e.sendTransfer(ctx, user.ExternalID, t.AmountCents, t.SpendID); err != nil {
			e.logger.Error("stranded refund failed", "transfer_id", t.ID, "error", err)
			break
		}
		if err := e.transfers.MarkSent(ctx, tx, t.ID); err != nil {
			return err
		}

		e.logger.Info("stranded refund sent",
			"transfer_id", t.ID, "user_id", t.UserID, "amount_cents", t.AmountCents)
		events = append(events, domain.Notification{
			Kind:                domain.NotifyStrandedRefund,
			RecipientExternalID: user.ExternalID,
			AmountCents:         t.AmountCents,
			OccurredAt:          time.Now().UTC(),
		})
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit stranded tx: %w", err)
	}
	for _, ev := range events {
		e.notifier.Notify(ctx, ev)
	}
	return nil
}

// sendTransfer moves funds through the provider. A duplicate spend_id means a
// previous pass already sent this exact transfer, so it counts as success.
func (e *Engine) sendTransfer(ctx context.Context, externalUserID, amountCents int64, spendID string) error {
	if err := e.circuit.Allow(providerKey); err != nil {
		return err
	}
	err := e.transfer.Transfer(ctx, externalUserID, amountCents, spendID)
	if errors.Is(err, provider.ErrDuplicateSpendID) {
		e.circuit.RecordSuccess(providerKey)
		e.logger.Warn("transfer already sent", "spend_id", spendID)
		return nil
	}
	if err != nil {
		e.circuit.RecordFailure(providerKey)
		return err
	}
	e.circuit.RecordSuccess(providerKey)
	return nil
}
