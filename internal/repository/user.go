package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sidestake/exchange/internal/domain"
)

type userRepo struct{}

// NewUserRepository returns a pgx-backed UserRepository.
func NewUserRepository() UserRepository {
	return &userRepo{}
}

func (r *userRepo) EnsureByExternal(ctx context.Context, db DBTX, externalID int64, username *string) (*domain.User, error) {
	row := db.QueryRow(ctx, `
		INSERT INTO app_user (external_id, username)
		VALUES ($1, $2)
		ON CONFLICT (external_id) DO UPDATE
			SET username = COALESCE(EXCLUDED.username, app_user.username)
		RETURNING id, external_id, username, created_at`,
		externalID, username)
	return scanUser(row)
}

func (r *userRepo) FindByID(ctx context.Context, db DBTX, id int64) (*domain.User, error) {
	row := db.QueryRow(ctx, `
		SELECT id, external_id, username, created_at
		FROM app_user WHERE id = $1`, id)
	return scanUser(row)
}

func (r *userRepo) FindByExternal(ctx context.Context, db DBTX, externalID int64) (*domain.User, error) {
	row := db.QueryRow(ctx, `
		SELECT id, external_id, username, created_at
		FROM app_user WHERE external_id = $1`, externalID)
	return scanUser(row)
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.ExternalID, &u.Username, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}
