package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"medtrack/api/internal/models"
)

var ErrCodeNotFound = errors.New("code not found")

type CodeRepository struct {
	pool *pgxpool.Pool
}

func NewCodeRepository(pool *pgxpool.Pool) *CodeRepository {
	return &CodeRepository{pool: pool}
}

func (r *CodeRepository) Create(ctx context.Context, code models.EphemeralCode) error {
	const query = `
		INSERT INTO ephemeral_codes (id, user_id, kind, code_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, NOW(), $5)
	`
	_, err := r.pool.Exec(ctx, query,
		code.ID,
		code.UserID,
		code.Kind,
		code.CodeHash,
		code.ExpiresAt,
	)
	return err
}

// Consume deletes a live code and returns its owner in a single
// statement. Of N concurrent callers redeeming the same code exactly
// one gets the row; the rest see ErrCodeNotFound. Expired rows are
// never returned.
func (r *CodeRepository) Consume(ctx context.Context, kind models.CodeKind, codeHash []byte, now time.Time) (string, error) {
	const query = `
		DELETE FROM ephemeral_codes
		WHERE kind = $1 AND code_hash = $2 AND expires_at > $3
		RETURNING user_id
	`
	var userID string
	if err := r.pool.QueryRow(ctx, query, kind, codeHash, now).Scan(&userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrCodeNotFound
		}
		return "", err
	}
	return userID, nil
}

func (r *CodeRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM ephemeral_codes WHERE expires_at <= $1`
	cmd, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
