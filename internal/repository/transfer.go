package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sidestake/exchange/internal/domain"
)

type transferLogRepo struct{}

// NewTransferLogRepository returns a pgx-backed TransferLogRepository.
func NewTransferLogRepository() TransferLogRepository {
	return &transferLogRepo{}
}

const transferColumns = `id, spend_id, kind, status, deal_id, invoice_id, user_id, amount_cents, fee_cents, created_at, sent_at`

func (r *transferLogRepo) InsertSent(ctx context.Context, db DBTX, t *domain.TransferLog) error {
	_, err := db.Exec(ctx, `
		INSERT INTO transfer_log (id, spend_id, kind, status, deal_id, invoice_id, user_id, amount_cents, fee_cents, sent_at)
		VALUES ($1, $2, $3, 'sent', $4, $5, $6, $7, $8, now())
		ON CONFLICT (spend_id) DO NOTHING`,
		t.ID, t.SpendID, string(t.Kind), t.DealID, t.InvoiceID, t.UserID, t.AmountCents, t.FeeCents)
	if err != nil {
		return fmt.Errorf("insert sent transfer: %w", err)
	}
	return nil
}

func (r *transferLogRepo) EnqueuePending(ctx context.Context, db DBTX, t *domain.TransferLog) error {
	_, err := db.Exec(ctx, `
		INSERT INTO transfer_log (id, spend_id, kind, status, deal_id, invoice_id, user_id, amount_cents, fee_cents)
		VALUES ($1, $2, $3, 'pending', $4, $5, $6, $7, $8)
		ON CONFLICT (spend_id) DO NOTHING`,
		t.ID, t.SpendID, string(t.Kind), t.DealID, t.InvoiceID, t.UserID, t.AmountCents, t.FeeCents)
	if err != nil {
		return fmt.Errorf("enqueue pending transfer: %w", err)
	}
	return nil
}

func (r *transferLogRepo) SelectPending(ctx context.Context, tx pgx.Tx, limit int) ([]domain.TransferLog, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+transferColumns+`
		FROM transfer_log
		WHERE status = 'pending'
		ORDER BY created_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("select pending transfers: %w", err)
	}
	defer rows.Close()

	var out []domain.TransferLog
	for rows.Next() {
		var t domain.TransferLog
		err := rows.Scan(&t.ID, &t.SpendID, &t.Kind, &t.Status, &t.DealID, &t.InvoiceID,
			&t.UserID, &t.AmountCents, &t.FeeCents, &t.CreatedAt, &t.SentAt)
		if err != nil {
			return nil, fmt.Errorf("scan pending transfer: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *transferLogRepo) MarkSent(ctx context.Context, db DBTX, id uuid.UUID) error {
	tag, err := db.Exec(ctx, `
		UPDATE transfer_log SET status = 'sent', sent_at = now()
		WHERE id = $1 AND status = 'pending'`,
		id)
	if err != nil {
		return fmt.Errorf("mark transfer sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict(fmt.Sprintf("transfer %s not pending", id))
	}
	return nil
}

func (r *transferLogRepo) FindBySpendID(ctx context.Context, db DBTX, spendID string) (*domain.TransferLog, error) {
	var t domain.TransferLog
	err := db.QueryRow(ctx, `
		SELECT `+transferColumns+`
		FROM transfer_log WHERE spend_id = $1`,
		spendID).Scan(&t.ID, &t.SpendID, &t.Kind, &t.Status, &t.DealID, &t.InvoiceID,
		&t.UserID, &t.AmountCents, &t.FeeCents, &t.CreatedAt, &t.SentAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find transfer by spend id: %w", err)
	}
	return &t, nil
}
