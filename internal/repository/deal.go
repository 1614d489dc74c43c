package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sidestake/exchange/internal/domain"
)

type dealRepo struct{}

// NewDealRepository returns a pgx-backed DealRepository.
func NewDealRepository() DealRepository {
	return &dealRepo{}
}

const dealColumns = `id, fight_id,
	user1_id, side1, amount1_cents, paid1, invoice1_id,
	user2_id, side2, amount2_cents, paid2, invoice2_id,
	status, created_at, matched_at`

func (r *dealRepo) Insert(ctx context.Context, db DBTX, d *domain.Deal) (int64, error) {
	var id int64
	err := db.QueryRow(ctx, `
		INSERT INTO deal (fight_id, user1_id, side1, amount1_cents, paid1, invoice1_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		d.FightID, d.User1ID, d.Side1, d.Amount1Cents, d.Paid1, d.Invoice1ID, string(d.Status),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert deal: %w", err)
	}
	return id, nil
}

func (r *dealRepo) FindByID(ctx context.Context, db DBTX, id int64) (*domain.Deal, error) {
	row := db.QueryRow(ctx, `SELECT `+dealColumns+` FROM deal WHERE id = $1`, id)
	return scanDeal(row)
}

func (r *dealRepo) LockOpenCandidate(ctx context.Context, tx pgx.Tx, fightID int64, wantSide1 domain.Side, amountCents, excludeUserID int64) (*domain.Deal, error) {
	// FIFO by creation: lowest id wins the tie-break.
	row := tx.QueryRow(ctx, `
		SELECT `+dealColumns+`
		FROM deal
		WHERE fight_id = $1
		  AND status = 'awaiting_match'
		  AND paid1 = TRUE
		  AND user2_id IS NULL
		  AND side1 = $2
		  AND amount1_cents = $3
		  AND user1_id <> $4
		ORDER BY id
		LIMIT 1
		FOR UPDATE`,
		fightID, wantSide1, amountCents, excludeUserID)
	return scanDeal(row)
}

func (r *dealRepo) CompleteMatch(ctx context.Context, db DBTX, dealID, user2ID int64, side2 domain.Side, amountCents, invoiceID int64) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE deal
		SET user2_id = $2,
		    side2 = $3,
		    amount2_cents = $4,
		    paid2 = TRUE,
		    invoice2_id = $5,
		    status = 'matched',
		    matched_at = now()
		WHERE id = $1
		  AND status = 'awaiting_match'
		  AND paid1 = TRUE
		  AND user2_id IS NULL
		  AND user1_id <> $2
		  AND side1 = $6
		  AND amount1_cents = $4`,
		dealID, user2ID, side2, amountCents, invoiceID, side2.Opposite())
	if err != nil {
		return false, fmt.Errorf("complete match: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *dealRepo) ListOpenForFight(ctx context.Context, db DBTX, fightID, excludeUserID int64) ([]domain.Deal, error) {
	rows, err := db.Query(ctx, `
		SELECT `+dealColumns+`
		FROM deal
		WHERE fight_id = $1
		  AND status = 'awaiting_match'
		  AND paid1 = TRUE
		  AND user2_id IS NULL
		  AND ($2 = 0 OR user1_id <> $2)
		ORDER BY id`,
		fightID, excludeUserID)
	if err != nil {
		return nil, fmt.Errorf("query open deals: %w", err)
	}
	defer rows.Close()
	return collectDeals(rows)
}

func (r *dealRepo) ListActiveByUser(ctx context.Context, db DBTX, userID int64, limit int) ([]domain.Deal, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	rows, err := db.Query(ctx, `
		SELECT `+dealColumns+`
		FROM deal
		WHERE (user1_id = $1 OR user2_id = $1)
		  AND status IN ('awaiting_match','matched')
		ORDER BY id DESC
		LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query active deals: %w", err)
	}
	defer rows.Close()
	return collectDeals(rows)
}

func (r *dealRepo) ListShareableByUser(ctx context.Context, db DBTX, userID int64) ([]domain.Deal, error) {
	rows, err := db.Query(ctx, `
		SELECT `+dealColumns+`
		FROM deal
		WHERE user1_id = $1
		  AND status = 'awaiting_match'
		  AND paid1 = TRUE
		  AND user2_id IS NULL
		ORDER BY id DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("query shareable deals: %w", err)
	}
	defer rows.Close()
	return collectDeals(rows)
}

const settleCandidateColumns = `d.id, d.fight_id,
	d.user1_id, d.side1, d.amount1_cents, d.paid1, d.invoice1_id,
	d.user2_id, d.side2, d.amount2_cents, d.paid2, d.invoice2_id,
	d.status, d.created_at, d.matched_at,
	f.title, f.side1_name, f.side2_name, f.winner_side`

func (r *dealRepo) SelectForPayout(ctx context.Context, tx pgx.Tx, limit int) ([]SettleCandidate, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+settleCandidateColumns+`
		FROM deal d
		JOIN fight f ON f.id = d.fight_id
		WHERE f.status = 'done'
		  AND f.winner_side IN (1, 2)
		  AND d.status = 'matched'
		ORDER BY d.id
		LIMIT $1
		FOR UPDATE OF d SKIP LOCKED`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("select payout candidates: %w", err)
	}
	defer rows.Close()
	return collectCandidates(rows)
}

func (r *dealRepo) SelectForRefund(ctx context.Context, tx pgx.Tx, limit int) ([]SettleCandidate, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+settleCandidateColumns+`
		FROM deal d
		JOIN fight f ON f.id = d.fight_id
		WHERE f.status = 'done'
		  AND d.status = 'awaiting_match'
		  AND d.paid1 = TRUE
		  AND d.user2_id IS NULL
		ORDER BY d.id
		LIMIT $1
		FOR UPDATE OF d SKIP LOCKED`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("select refund candidates: %w", err)
	}
	defer rows.Close()
	return collectCandidates(rows)
}

func (r *dealRepo) UpdateStatus(ctx context.Context, db DBTX, dealID int64, from, to domain.DealStatus) (bool, error) {
	if !from.CanTransition(to) {
		return false, fmt.Errorf("illegal deal transition %s -> %s", from, to)
	}
	tag, err := db.Exec(ctx, `
		UPDATE deal SET status = $3 WHERE id = $1 AND status = $2`,
		dealID, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("update deal status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanDeal(row pgx.Row) (*domain.Deal, error) {
	var d domain.Deal
	err := row.Scan(
		&d.ID, &d.FightID,
		&d.User1ID, &d.Side1, &d.Amount1Cents, &d.Paid1, &d.Invoice1ID,
		&d.User2ID, &d.Side2, &d.Amount2Cents, &d.Paid2, &d.Invoice2ID,
		&d.Status, &d.CreatedAt, &d.MatchedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan deal: %w", err)
	}
	return &d, nil
}

func collectDeals(rows pgx.Rows) ([]domain.Deal, error) {
	var deals []domain.Deal
	for rows.Next() {
		var d domain.Deal
		err := rows.Scan(
			&d.ID, &d.FightID,
			&d.User1ID, &d.Side1, &d.Amount1Cents, &d.Paid1, &d.Invoice1ID,
			&d.User2ID, &d.Side2, &d.Amount2Cents, &d.Paid2, &d.Invoice2ID,
			&d.Status, &d.CreatedAt, &d.MatchedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan deal row: %w", err)
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

func collectCandidates(rows pgx.Rows) ([]SettleCandidate, error) {
	var out []SettleCandidate
	for rows.Next() {
		var c SettleCandidate
		err := rows.Scan(
			&c.Deal.ID, &c.Deal.FightID,
			&c.Deal.User1ID, &c.Deal.Side1, &c.Deal.Amount1Cents, &c.Deal.Paid1, &c.Deal.Invoice1ID,
			&c.Deal.User2ID, &c.Deal.Side2, &c.Deal.Amount2Cents, &c.Deal.Paid2, &c.Deal.Invoice2ID,
			&c.Deal.Status, &c.Deal.CreatedAt, &c.Deal.MatchedAt,
			&c.FightTitle, &c.Side1Name, &c.Side2Name, &c.WinnerSide,
		)
		if err != nil {
			return nil, fmt.Errorf("scan settle candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
