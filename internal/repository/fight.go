package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sidestake/exchange/internal/domain"
)

type fightRepo struct{}

// NewFightRepository returns a pgx-backed FightRepository.
func NewFightRepository() FightRepository {
	return &fightRepo{}
}

const fightColumns = `id, external_id, title, side1_name, side2_name, photo_url, description, starts_at, status, winner_side`

func (r *fightRepo) Upsert(ctx context.Context, db DBTX, f *domain.Fight) (int64, error) {
	var id int64

	if f.ExternalID != nil && *f.ExternalID != "" {
		err := db.QueryRow(ctx, `
			INSERT INTO fight (external_id, title, side1_name, side2_name,
				photo_url, description, starts_at, status, winner_side)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (external_id) DO UPDATE
				SET title       = EXCLUDED.title,
				    side1_name  = EXCLUDED.side1_name,
				    side2_name  = EXCLUDED.side2_name,
				    photo_url   = EXCLUDED.photo_url,
				    description = EXCLUDED.description,
				    starts_at   = EXCLUDED.starts_at,
				    status      = EXCLUDED.status,
				    winner_side = EXCLUDED.winner_side
			RETURNING id`,
			f.ExternalID, f.Title, f.Side1Name, f.Side2Name,
			f.PhotoURL, f.Description, f.StartsAt, string(f.Status), f.WinnerSide,
		).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("upsert fight by external_id: %w", err)
		}
		return id, nil
	}

	// No external key: match on the identity triple, else insert.
	err := db.QueryRow(ctx, `
		SELECT id FROM fight
		WHERE title = $1 AND side1_name = $2 AND side2_name = $3
		LIMIT 1`,
		f.Title, f.Side1Name, f.Side2Name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		err = db.QueryRow(ctx, `
			INSERT INTO fight (title, side1_name, side2_name, photo_url, description, starts_at, status, winner_side)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id`,
			f.Title, f.Side1Name, f.Side2Name,
			f.PhotoURL, f.Description, f.StartsAt, string(f.Status), f.WinnerSide,
		).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("insert fight: %w", err)
		}
		return id, nil
	}
	if err != nil {
		return 0, fmt.Errorf("find fight by triple: %w", err)
	}

	_, err = db.Exec(ctx, `
		UPDATE fight
		SET photo_url = $2, description = $3, starts_at = $4, status = $5, winner_side = $6
		WHERE id = $1`,
		id, f.PhotoURL, f.Description, f.StartsAt, string(f.Status), f.WinnerSide)
	if err != nil {
		return 0, fmt.Errorf("update fight: %w", err)
	}
	return id, nil
}

func (r *fightRepo) PruneUntouched(ctx context.Context, db DBTX, touched []int64) (deleted, retained []int64, err error) {
	// Fights with a non-terminal deal are never deleted: user funds would be
	// orphaned without settlement.
	rows, err := db.Query(ctx, `
		SELECT f.id,
		       EXISTS (
		           SELECT 1 FROM deal d
		           WHERE d.fight_id = f.id AND d.status NOT IN ('settled','void')
		       ) AS has_live_deals
		FROM fight f
		WHERE NOT (f.id = ANY($1::bigint[]))`,
		touched)
	if err != nil {
		return nil, nil, fmt.Errorf("query untouched fights: %w", err)
	}
	defer rows.Close()

	var deletable []int64
	for rows.Next() {
		var id int64
		var hasLive bool
		if err := rows.Scan(&id, &hasLive); err != nil {
			return nil, nil, fmt.Errorf("scan untouched fight: %w", err)
		}
		if hasLive {
			retained = append(retained, id)
		} else {
			deletable = append(deletable, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	if len(deletable) > 0 {
		// Re-check the guard inside the delete itself: a deal may have been
		// created between the select and the delete.
		_, err = db.Exec(ctx, `
			DELETE FROM fight f
			WHERE f.id = ANY($1::bigint[])
			  AND NOT EXISTS (
			      SELECT 1 FROM deal d
			      WHERE d.fight_id = f.id AND d.status NOT IN ('settled','void')
			  )`,
			deletable)
		if err != nil {
			return nil, nil, fmt.Errorf("delete untouched fights: %w", err)
		}
	}
	return deletable, retained, nil
}

func (r *fightRepo) FindByID(ctx context.Context, db DBTX, id int64) (*domain.Fight, error) {
	row := db.QueryRow(ctx, `SELECT `+fightColumns+` FROM fight WHERE id = $1`, id)
	return scanFight(row)
}

func (r *fightRepo) LockByID(ctx context.Context, tx pgx.Tx, id int64) (*domain.Fight, error) {
	row := tx.QueryRow(ctx, `SELECT `+fightColumns+` FROM fight WHERE id = $1 FOR UPDATE`, id)
	return scanFight(row)
}

func (r *fightRepo) ListUpcoming(ctx context.Context, db DBTX) ([]domain.Fight, error) {
	rows, err := db.Query(ctx, `
		SELECT `+fightColumns+`
		FROM fight
		WHERE status IN ('upcoming','today','live')
		ORDER BY starts_at NULLS LAST, id`)
	if err != nil {
		return nil, fmt.Errorf("query upcoming fights: %w", err)
	}
	defer rows.Close()
	return collectFights(rows)
}

func (r *fightRepo) RecordResult(ctx context.Context, db DBTX, id int64, winner domain.Side) error {
	tag, err := db.Exec(ctx, `
		UPDATE fight SET status = 'done', winner_side = $2
		WHERE id = $1 AND status <> 'done'`,
		id, winner)
	if err != nil {
		return fmt.Errorf("record fight result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict(fmt.Sprintf("fight %d already done or missing", id))
	}
	return nil
}

func (r *fightRepo) ListOverdue(ctx context.Context, db DBTX, limit int) ([]domain.Fight, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(ctx, `
		SELECT `+fightColumns+`
		FROM fight
		WHERE status IN ('upcoming','today','live')
		  AND starts_at IS NOT NULL
		  AND starts_at < now() - interval '1 hour'
		ORDER BY starts_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query overdue fights: %w", err)
	}
	defer rows.Close()
	return collectFights(rows)
}

func scanFight(row pgx.Row) (*domain.Fight, error) {
	var f domain.Fight
	err := row.Scan(&f.ID, &f.ExternalID, &f.Title, &f.Side1Name, &f.Side2Name,
		&f.PhotoURL, &f.Description, &f.StartsAt, &f.Status, &f.WinnerSide)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan fight: %w", err)
	}
	return &f, nil
}

func collectFights(rows pgx.Rows) ([]domain.Fight, error) {
	var fights []domain.Fight
	for rows.Next() {
		var f domain.Fight
		err := rows.Scan(&f.ID, &f.ExternalID, &f.Title, &f.Side1Name, &f.Side2Name,
			&f.PhotoURL, &f.Description, &f.StartsAt, &f.Status, &f.WinnerSide)
		if err != nil {
			return nil, fmt.Errorf("scan fight row: %w", err)
		}
		fights = append(fights, f)
	}
	return fights, rows.Err()
}
