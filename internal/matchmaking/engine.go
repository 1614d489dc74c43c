// Package matchmaking turns paid invoices into deals: a paid NEW intent either
// fills the oldest opposing open deal at the same stake or opens a new one, and
// a paid MATCH intent fills the specific deal it targeted.
package matchmaking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sidestake/exchange/internal/domain"
	"github.com/sidestake/exchange/internal/guard"
	"github.com/sidestake/exchange/internal/notify"
	"github.com/sidestake/exchange/internal/provider"
	"github.com/sidestake/exchange/internal/repository"
)

const providerKey = "cryptopay"

// InvoiceIssuer is the provider surface the engine needs to open escrow.
type InvoiceIssuer interface {
	CreateInvoice(ctx context.Context, amountCents int64, description, payload string) (*provider.Invoice, error)
}

// DB is the pool surface the engine needs: plain queries plus transactions.
type DB interface {
	repository.DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// IntentTicket is handed back to the chat surface so it can show the user a
// payment link and poll for completion.
type IntentTicket struct {
	InvoiceID   int64  `json:"invoice_id"`
	PayURL      string `json:"pay_url"`
	AmountCents int64  `json:"amount_cents"`
	Kind        string `json:"kind"`
}

// IntentState reports where an intent is in its lifecycle.
type IntentState string

const (
	IntentPending IntentState = "pending"
	IntentApplied IntentState = "applied"
)

// Engine orchestrates intent creation and paid-invoice application.
type Engine struct {
	db        DB
	invoices  InvoiceIssuer
	circuit   *guard.CircuitBreaker
	users     repository.UserRepository
	fights    repository.FightRepository
	deals     repository.DealRepository
	waits     repository.InvoiceWaitRepository
	transfers repository.TransferLogRepository
	notifier  notify.Notifier
	logger    *slog.Logger
}

// NewEngine creates a matchmaking engine.
func NewEngine(
	db DB,
	invoices InvoiceIssuer,
	circuit *guard.CircuitBreaker,
	users repository.UserRepository,
	fights repository.FightRepository,
	deals repository.DealRepository,
	waits repository.InvoiceWaitRepository,
	transfers repository.TransferLogRepository,
	notifier notify.Notifier,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		db:        db,
		invoices:  invoices,
		circuit:   circuit,
		users:     users,
		fights:    fights,
		deals:     deals,
		waits:     waits,
		transfers: transfers,
		notifier:  notifier,
		logger:    logger,
	}
}

// CreateNewIntent opens escrow for a fresh wager. Nothing is persisted beyond
// the invoice_wait row until the invoice is paid.
func (e *Engine) CreateNewIntent(ctx context.Context, externalUserID int64, username *string, fightID int64, side domain.Side, amountCents int64) (*IntentTicket, error) {
	if !side.Valid() {
		return nil, domain.ErrValidation(fmt.Sprintf("side must be 1 or 2, got %d", side))
	}
	if amountCents <= 0 {
		return nil, domain.ErrValidation("amount must be positive")
	}

	if _, err := e.users.EnsureByExternal(ctx, e.db, externalUserID, username); err != nil {
		return nil, domain.ErrInternal("ensure user", err)
	}

	fight, err := e.fights.FindByID(ctx, e.db, fightID)
	if err != nil {
		return nil, domain.ErrInternal("find fight", err)
	}
	if fight == nil {
		return nil, domain.ErrNotFound("fight", fightID)
	}
	if !fight.AcceptsWagers() {
		return nil, domain.ErrConflict(fmt.Sprintf("fight %d is no longer open for wagers", fightID))
	}

	payload := domain.NewIntentPayload{
		FightID:     fightID,
		Side:        side,
		AmountCents: amountCents,
		PayerTag:    externalUserID,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, domain.ErrInternal("encode intent payload", err)
	}

	desc := fmt.Sprintf("Wager on %s: %s", fight.Title, fight.SideName(side))
	inv, err := e.issueInvoice(ctx, amountCents, desc, string(domain.IntentNew))
	if err != nil {
		return nil, err
	}

	wait := &domain.InvoiceWait{InvoiceID: inv.InvoiceID, Kind: domain.IntentNew, Payload: raw}
	if err := e.waits.Insert(ctx, e.db, wait); err != nil {
		return nil, domain.ErrInternal("record intent", err)
	}

	e.logger.Info("new intent created",
		"invoice_id", inv.InvoiceID, "fight_id", fightID, "side", side, "amount_cents", amountCents)

	return &IntentTicket{
		InvoiceID:   inv.InvoiceID,
		PayURL:      inv.BotInvoiceURL,
		AmountCents: amountCents,
		Kind:        string(domain.IntentNew),
	}, nil
}

// CreateMatchIntent opens escrow against one specific open deal. The stake and
// side are dictated by the targeted deal, never by the caller.
func (e *Engine) CreateMatchIntent(ctx context.Context, externalUserID int64, username *string, dealID int64) (*IntentTicket, error) {
	user, err := e.users.EnsureByExternal(ctx, e.db, externalUserID, username)
	if err != nil {
		return nil, domain.ErrInternal("ensure user", err)
	}

	deal, err := e.deals.FindByID(ctx, e.db, dealID)
	if err != nil {
		return nil, domain.ErrInternal("find deal", err)
	}
	if deal == nil {
		return nil, domain.ErrNotFound("deal", dealID)
	}
	if !deal.Open() {
		return nil, domain.ErrConflict(fmt.Sprintf("deal %d is no longer open", dealID))
	}
	if deal.User1ID == user.ID {
		return nil, domain.ErrConflict("cannot accept your own deal")
	}

	fight, err := e.fights.FindByID(ctx, e.db, deal.FightID)
	if err != nil {
		return nil, domain.ErrInternal("find fight", err)
	}
	if fight == nil || !fight.AcceptsWagers() {
		return nil, domain.ErrConflict(fmt.Sprintf("fight %d is no longer open for wagers", deal.FightID))
	}

	side := deal.Side1.Opposite()
	payload := domain.MatchIntentPayload{
		DealID:      dealID,
		Side:        side,
		AmountCents: deal.Amount1Cents,
		PayerTag:    externalUserID,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, domain.ErrInternal("encode intent payload", err)
	}

	desc := fmt.Sprintf("Accept wager on %s: %s", fight.Title, fight.SideName(side))
	inv, err := e.issueInvoice(ctx, deal.Amount1Cents, desc, string(domain.IntentMatch))
	if err != nil {
		return nil, err
	}

	wait := &domain.InvoiceWait{InvoiceID: inv.InvoiceID, Kind: domain.IntentMatch, Payload: raw}
	if err := e.waits.Insert(ctx, e.db, wait); err != nil {
		return nil, domain.ErrInternal("record intent", err)
	}

	e.logger.Info("match intent created",
		"invoice_id", inv.InvoiceID, "deal_id", dealID, "amount_cents", deal.Amount1Cents)

	return &IntentTicket{
		InvoiceID:   inv.InvoiceID,
		PayURL:      inv.BotInvoiceURL,
		AmountCents: deal.Amount1Cents,
		Kind:        string(domain.IntentMatch),
	}, nil
}

func (e *Engine) issueInvoice(ctx context.Context, amountCents int64, description, payload string) (*provider.Invoice, error) {
	if err := e.circuit.Allow(providerKey); err != nil {
		return nil, domain.ErrProviderUnavailable(err)
	}
	inv, err := e.invoices.CreateInvoice(ctx, amountCents, description, payload)
	if err != nil {
		e.circuit.RecordFailure(providerKey)
		return nil, domain.ErrProviderUnavailable(err)
	}
	e.circuit.RecordSuccess(providerKey)
	return inv, nil
}

// ApplyPaid durably applies a paid invoice. Idempotent: the invoice_wait row
// is locked and deleted inside the same transaction that mutates deals, so a
// second observer of the same payment finds nothing to do. Returns whether
// this call performed the apply.
func (e *Engine) ApplyPaid(ctx context.Context, invoiceID int64) (bool, error) {
	tx, err := e.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin apply tx: %w", err)
	}
	defer tx.Rollback(ctx)

	wait, err := e.waits.LockForApply(ctx, tx, invoiceID)
	if err != nil {
		return false, err
	}
	if wait == nil {
		return false, nil
	}

	var events []domain.Notification
	switch wait.Kind {
	case domain.IntentNew:
		events, err = e.applyNew(ctx, tx, wait)
	case domain.IntentMatch:
		events, err = e.applyMatch(ctx, tx, wait)
	default:
		err = fmt.Errorf("unknown intent kind %q for invoice %d", wait.Kind, invoiceID)
	}
	if err != nil {
		return false, err
	}

	if err := e.waits.Delete(ctx, tx, invoiceID); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit apply tx: %w", err)
	}

	for _, ev := range events {
		e.notifier.Notify(ctx, ev)
	}
	return true, nil
}

func (e *Engine) applyNew(ctx context.Context, tx pgx.Tx, wait *domain.InvoiceWait) ([]domain.Notification, error) {
	p, err := domain.DecodeNewIntent(wait.Payload)
	if err != nil {
		return nil, err
	}

	user, err := e.users.EnsureByExternal(ctx, tx, p.PayerTag, nil)
	if err != nil {
		return nil, err
	}

	// The fight row lock serializes concurrent applies on the same fight:
	// without it, two opposing payments applied at once can each miss the
	// other's uncommitted deal and both insert instead of pairing.
	fight, err := e.fights.LockByID(ctx, tx, p.FightID)
	if err != nil {
		return nil, err
	}
	if fight == nil || !fight.AcceptsWagers() {
		// Fight closed between intent and payment: money is in escrow with
		// nowhere to go, queue a compensating refund.
		return e.strandPayment(ctx, tx, wait.InvoiceID, user, p.AmountCents, "fight closed")
	}

	// Pair-on-pay: the oldest opposing open deal at the same stake wins.
	candidate, err := e.deals.LockOpenCandidate(ctx, tx, p.FightID, p.Side.Opposite(), p.AmountCents, user.ID)
	if err != nil {
		return nil, err
	}
	if candidate != nil {
		ok, err := e.deals.CompleteMatch(ctx, tx, candidate.ID, user.ID, p.Side, p.AmountCents, wait.InvoiceID)
		if err != nil {
			return nil, err
		}
		if ok {
			e.logger.Info("deal auto-matched",
				"deal_id", candidate.ID, "invoice_id", wait.InvoiceID, "fight_id", p.FightID)
			return e.matchedEvents(ctx, tx, candidate.ID, fight, user.ExternalID)
		}
	}

	invoiceID := wait.InvoiceID
	deal := &domain.Deal{
		FightID:      p.FightID,
		User1ID:      user.ID,
		Side1:        p.Side,
		Amount1Cents: p.AmountCents,
		Paid1:        true,
		Invoice1ID:   &invoiceID,
		Status:       domain.DealAwaitingMatch,
	}
	dealID, err := e.deals.Insert(ctx, tx, deal)
	if err != nil {
		return nil, err
	}

	e.logger.Info("deal opened",
		"deal_id", dealID, "invoice_id", wait.InvoiceID, "fight_id", p.FightID, "side", p.Side)
	return nil, nil
}

func (e *Engine) applyMatch(ctx context.Context, tx pgx.Tx, wait *domain.InvoiceWait) ([]domain.Notification, error) {
	p, err := domain.DecodeMatchIntent(wait.Payload)
	if err != nil {
		return nil, err
	}

	user, err := e.users.EnsureByExternal(ctx, tx, p.PayerTag, nil)
	if err != nil {
		return nil, err
	}

	deal, err := e.deals.FindByID(ctx, tx, p.DealID)
	if err != nil {
		return nil, err
	}

	// Same fight lock as applyNew, and the fight state is part of the
	// staleness check: a payment held until the result is known must never
	// complete a match on a finished fight.
	var fight *domain.Fight
	if deal != nil {
		fight, err = e.fights.LockByID(ctx, tx, deal.FightID)
		if err != nil {
			return nil, err
		}
		deal, err = e.deals.FindByID(ctx, tx, p.DealID)
		if err != nil {
			return nil, err
		}
	}

	stale := deal == nil || !deal.Open() ||
		fight == nil || !fight.AcceptsWagers() ||
		deal.User1ID == user.ID ||
		deal.Amount1Cents != p.AmountCents ||
		deal.Side1.Opposite() != p.Side
	if !stale {
		ok, err := e.deals.CompleteMatch(ctx, tx, p.DealID, user.ID, p.Side, p.AmountCents, wait.InvoiceID)
		if err != nil {
			return nil, err
		}
		if ok {
			e.logger.Info("deal matched",
				"deal_id", p.DealID, "invoice_id", wait.InvoiceID, "fight_id", deal.FightID)
			return e.matchedEvents(ctx, tx, p.DealID, fight, user.ExternalID)
		}
	}

	// Target was taken or the fight moved on while the payer held the invoice.
	return e.strandPayment(ctx, tx, wait.InvoiceID, user, p.AmountCents, "deal no longer open")
}

// strandPayment queues a compensating refund for a payment that arrived after
// its target became unusable. The settlement engine sends it.
func (e *Engine) strandPayment(ctx context.Context, tx pgx.Tx, invoiceID int64, user *domain.User, amountCents int64, reason string) ([]domain.Notification, error) {
	t := &domain.TransferLog{
		ID:          uuid.New(),
		SpendID:     domain.StrandedRefundSpendID(invoiceID),
		Kind:        domain.TransferStrandedRefund,
		Status:      domain.TransferPending,
		InvoiceID:   &invoiceID,
		UserID:      user.ID,
		AmountCents: amountCents,
	}
	if err := e.transfers.EnqueuePending(ctx, tx, t); err != nil {
		return nil, err
	}
	e.logger.Warn("payment stranded, refund queued",
		"invoice_id", invoiceID, "user_id", user.ID, "amount_cents", amountCents, "reason", reason)
	return nil, nil
}

func (e *Engine) matchedEvents(ctx context.Context, tx pgx.Tx, dealID int64, fight *domain.Fight, responderExternalID int64) ([]domain.Notification, error) {
	deal, err := e.deals.FindByID(ctx, tx, dealID)
	if err != nil || deal == nil {
		return nil, err
	}
	creator, err := e.users.FindByID(ctx, tx, deal.User1ID)
	if err != nil || creator == nil {
		return nil, err
	}

	title := ""
	if fight != nil {
		title = fight.Title
	}
	ev := domain.Notification{
		Kind:        domain.NotifyDealMatched,
		DealID:      dealID,
		FightID:     deal.FightID,
		FightTitle:  title,
		AmountCents: deal.TotalCents(),
		OccurredAt:  time.Now().UTC(),
	}

	creatorEv, responderEv := ev, ev
	creatorEv.RecipientExternalID = creator.ExternalID
	responderEv.RecipientExternalID = responderExternalID
	return []domain.Notification{creatorEv, responderEv}, nil
}

// IntentStatus reports whether a paid intent has been applied yet. Unknown
// invoice ids report applied: the wait row is gone either way.
func (e *Engine) IntentStatus(ctx context.Context, invoiceID int64) (IntentState, error) {
	pending, err := e.waits.Exists(ctx, e.db, invoiceID)
	if err != nil {
		return "", domain.ErrInternal("check intent", err)
	}
	if pending {
		return IntentPending, nil
	}
	return IntentApplied, nil
}

// ListUpcomingFights returns the catalog entries open for wagering.
func (e *Engine) ListUpcomingFights(ctx context.Context) ([]domain.Fight, error) {
	fights, err := e.fights.ListUpcoming(ctx, e.db)
	if err != nil {
		return nil, domain.ErrInternal("list fights", err)
	}
	return fights, nil
}

// GetFight returns one catalog entry.
func (e *Engine) GetFight(ctx context.Context, fightID int64) (*domain.Fight, error) {
	fight, err := e.fights.FindByID(ctx, e.db, fightID)
	if err != nil {
		return nil, domain.ErrInternal("find fight", err)
	}
	if fight == nil {
		return nil, domain.ErrNotFound("fight", fightID)
	}
	return fight, nil
}

// ListOpenDeals returns joinable deals on a fight, hiding the viewer's own.
func (e *Engine) ListOpenDeals(ctx context.Context, fightID, externalUserID int64) ([]domain.Deal, error) {
	var exclude int64
	if externalUserID != 0 {
		user, err := e.users.FindByExternal(ctx, e.db, externalUserID)
		if err != nil {
			return nil, domain.ErrInternal("find user", err)
		}
		if user != nil {
			exclude = user.ID
		}
	}
	deals, err := e.deals.ListOpenForFight(ctx, e.db, fightID, exclude)
	if err != nil {
		return nil, domain.ErrInternal("list open deals", err)
	}
	return deals, nil
}

// ListUserDeals returns the viewer's non-terminal deals, newest first.
func (e *Engine) ListUserDeals(ctx context.Context, externalUserID int64, limit int) ([]domain.Deal, error) {
	user, err := e.users.FindByExternal(ctx, e.db, externalUserID)
	if err != nil {
		return nil, domain.ErrInternal("find user", err)
	}
	if user == nil {
		return nil, nil
	}
	deals, err := e.deals.ListActiveByUser(ctx, e.db, user.ID, limit)
	if err != nil {
		return nil, domain.ErrInternal("list user deals", err)
	}
	return deals, nil
}

// ListShareableDeals returns the viewer's own open deals for in-chat sharing.
func (e *Engine) ListShareableDeals(ctx context.Context, externalUserID int64) ([]domain.Deal, error) {
	user, err := e.users.FindByExternal(ctx, e.db, externalUserID)
	if err != nil {
		return nil, domain.ErrInternal("find user", err)
	}
	if user == nil {
		return nil, nil
	}
	deals, err := e.deals.ListShareableByUser(ctx, e.db, user.ID)
	if err != nil {
		return nil, domain.ErrInternal("list shareable deals", err)
	}
	return deals, nil
}
