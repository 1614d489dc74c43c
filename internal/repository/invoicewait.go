package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sidestake/exchange/internal/domain"
)

type invoiceWaitRepo struct{}

// NewInvoiceWaitRepository returns a pgx-backed InvoiceWaitRepository.
func NewInvoiceWaitRepository() InvoiceWaitRepository {
	return &invoiceWaitRepo{}
}

func (r *invoiceWaitRepo) Insert(ctx context.Context, db DBTX, w *domain.InvoiceWait) error {
	_, err := db.Exec(ctx, `
		INSERT INTO invoice_wait (invoice_id, kind, payload)
		VALUES ($1, $2, $3)`,
		w.InvoiceID, string(w.Kind), w.Payload)
	if err != nil {
		return fmt.Errorf("insert invoice wait: %w", err)
	}
	return nil
}

func (r *invoiceWaitRepo) PendingIDs(ctx context.Context, db DBTX) ([]int64, error) {
	rows, err := db.Query(ctx, `
		SELECT invoice_id FROM invoice_wait ORDER BY created_at, invoice_id`)
	if err != nil {
		return nil, fmt.Errorf("query pending invoice ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan invoice id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *invoiceWaitRepo) LockForApply(ctx context.Context, tx pgx.Tx, invoiceID int64) (*domain.InvoiceWait, error) {
	var w domain.InvoiceWait
	err := tx.QueryRow(ctx, `
		SELECT invoice_id, kind, payload, created_at
		FROM invoice_wait
		WHERE invoice_id = $1
		FOR UPDATE`,
		invoiceID).Scan(&w.InvoiceID, &w.Kind, &w.Payload, &w.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock invoice wait: %w", err)
	}
	return &w, nil
}

func (r *invoiceWaitRepo) Exists(ctx context.Context, db DBTX, invoiceID int64) (bool, error) {
	var found bool
	err := db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM invoice_wait WHERE invoice_id = $1)`,
		invoiceID).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("check invoice wait: %w", err)
	}
	return found, nil
}

func (r *invoiceWaitRepo) Delete(ctx context.Context, db DBTX, invoiceID int64) error {
	_, err := db.Exec(ctx, `DELETE FROM invoice_wait WHERE invoice_id = $1`, invoiceID)
	if err != nil {
		return fmt.Errorf("delete invoice wait: %w", err)
	}
	return nil
}
