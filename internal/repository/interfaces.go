package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sidestake/exchange/internal/domain"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// UserRepository provides access to app_user.
type UserRepository interface {
	// EnsureByExternal lazily creates the user on first interaction and
	// refreshes a changed username in place.
	EnsureByExternal(ctx context.Context, db DBTX, externalID int64, username *string) (*domain.User, error)

	// FindByID returns a user by internal id, nil when absent.
	FindByID(ctx context.Context, db DBTX, id int64) (*domain.User, error)

	// FindByExternal returns a user by chat identity, nil when absent.
	FindByExternal(ctx context.Context, db DBTX, externalID int64) (*domain.User, error)
}

// FightRepository provides access to the fight catalog.
type FightRepository interface {
	// Upsert writes a catalog row keyed by external_id, falling back to the
	// (title, side1, side2) identity triple when no external key is present.
	// Returns the internal fight id.
	Upsert(ctx context.Context, db DBTX, f *domain.Fight) (int64, error)

	// PruneUntouched deletes fights absent from the latest catalog read,
	// refusing any fight that still has a non-terminal deal. Returns the
	// ids deleted and the ids retained by the guard.
	PruneUntouched(ctx context.Context, db DBTX, touched []int64) (deleted, retained []int64, err error)

	// FindByID returns a fight, nil when absent.
	FindByID(ctx context.Context, db DBTX, id int64) (*domain.Fight, error)

	// LockByID acquires FOR UPDATE the fight row inside the given
	// transaction, serializing all invoice applies on the same fight.
	// Nil when absent.
	LockByID(ctx context.Context, tx pgx.Tx, id int64) (*domain.Fight, error)

	// ListUpcoming returns fights open for wagering, ordered by start time.
	ListUpcoming(ctx context.Context, db DBTX) ([]domain.Fight, error)

	// RecordResult marks a fight done with the given winner.
	RecordResult(ctx context.Context, db DBTX, id int64, winner domain.Side) error

	// ListOverdue returns non-done fights whose start passed more than the
	// given interval ago, for admin result reminders.
	ListOverdue(ctx context.Context, db DBTX, limit int) ([]domain.Fight, error)
}

// DealRepository provides access to deals.
type DealRepository interface {
	// Insert creates a deal row and returns its id.
	Insert(ctx context.Context, db DBTX, d *domain.Deal) (int64, error)

	// FindByID returns a deal, nil when absent.
	FindByID(ctx context.Context, db DBTX, id int64) (*domain.Deal, error)

	// LockOpenCandidate acquires FOR UPDATE the lowest-id open deal on the
	// given fight whose leg 1 opposes wantSide1 at the same stake, excluding
	// the payer's own deals. Nil when no candidate exists.
	LockOpenCandidate(ctx context.Context, tx pgx.Tx, fightID int64, wantSide1 domain.Side, amountCents, excludeUserID int64) (*domain.Deal, error)

	// CompleteMatch fills leg 2 and flips the deal to matched. The WHERE
	// clause re-checks the eligibility guard; returns false when zero rows
	// matched (race loss or stale target).
	CompleteMatch(ctx context.Context, db DBTX, dealID, user2ID int64, side2 domain.Side, amountCents, invoiceID int64) (bool, error)

	// ListOpenForFight returns open deals on a fight ordered by id,
	// excluding those created by excludeUserID (0 = no exclusion).
	ListOpenForFight(ctx context.Context, db DBTX, fightID, excludeUserID int64) ([]domain.Deal, error)

	// ListActiveByUser returns a user's non-terminal deals, newest first.
	ListActiveByUser(ctx context.Context, db DBTX, userID int64, limit int) ([]domain.Deal, error)

	// ListShareableByUser returns the user's own open deals (awaiting an
	// opponent), for in-chat sharing.
	ListShareableByUser(ctx context.Context, db DBTX, userID int64) ([]domain.Deal, error)

	// SelectForPayout locks (SKIP LOCKED) matched deals on done fights with
	// a known winner.
	SelectForPayout(ctx context.Context, tx pgx.Tx, limit int) ([]SettleCandidate, error)

	// SelectForRefund locks (SKIP LOCKED) paid orphans on done fights.
	SelectForRefund(ctx context.Context, tx pgx.Tx, limit int) ([]SettleCandidate, error)

	// UpdateStatus applies a guarded status transition; false when the
	// guard failed (row changed underneath).
	UpdateStatus(ctx context.Context, db DBTX, dealID int64, from, to domain.DealStatus) (bool, error)
}

// SettleCandidate is a deal joined with the fight fields settlement needs.
type SettleCandidate struct {
	Deal       domain.Deal
	FightTitle string
	Side1Name  string
	Side2Name  string
	WinnerSide *domain.Side
}

// InvoiceWaitRepository provides access to the invoice_wait spine.
type InvoiceWaitRepository interface {
	// Insert records an outstanding intent keyed by invoice id.
	Insert(ctx context.Context, db DBTX, w *domain.InvoiceWait) error

	// PendingIDs returns all outstanding invoice ids, oldest first.
	PendingIDs(ctx context.Context, db DBTX) ([]int64, error)

	// LockForApply acquires FOR UPDATE the waiter row inside the applying
	// transaction. Nil means the intent was already applied elsewhere.
	LockForApply(ctx context.Context, tx pgx.Tx, invoiceID int64) (*domain.InvoiceWait, error)

	// Exists reports whether the intent is still outstanding.
	Exists(ctx context.Context, db DBTX, invoiceID int64) (bool, error)

	// Delete removes the waiter row (inside the applying transaction).
	Delete(ctx context.Context, db DBTX, invoiceID int64) error
}

// TransferLogRepository provides access to the append-only transfer audit.
type TransferLogRepository interface {
	// InsertSent records a provider-acknowledged transfer.
	InsertSent(ctx context.Context, db DBTX, t *domain.TransferLog) error

	// EnqueuePending queues a transfer (stranded refund) for the settlement
	// engine. Idempotent on spend_id.
	EnqueuePending(ctx context.Context, db DBTX, t *domain.TransferLog) error

	// SelectPending locks (SKIP LOCKED) queued transfers, oldest first.
	SelectPending(ctx context.Context, tx pgx.Tx, limit int) ([]domain.TransferLog, error)

	// MarkSent flips a pending row to sent.
	MarkSent(ctx context.Context, db DBTX, id uuid.UUID) error

	// FindBySpendID returns the audit row for a spend id, nil when absent.
	FindBySpendID(ctx context.Context, db DBTX, spendID string) (*domain.TransferLog, error)
}
