package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"medtrack/api/internal/models"
)

var (
	ErrUserNotFound = errors.New("user not found")

	// ErrDiscordAlreadyLinked is returned when a discord identity is
	// already attached to a different user.
	ErrDiscordAlreadyLinked = errors.New("discord account already linked")
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Create(ctx context.Context, user models.User) error {
	const query = `
		INSERT INTO users (
			id, discord_id, email, password_hash, display_name, created_via, created_at, updated_at
		) VALUES (
			$1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, NOW(), NOW()
		)
	`

	discordID := ""
	if user.DiscordID != nil {
		discordID = *user.DiscordID
	}

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		discordID,
		user.Email,
		user.PasswordHash,
		user.DisplayName,
		user.CreatedVia,
	)
	if isUniqueViolation(err, "users_discord_id_key") {
		return ErrDiscordAlreadyLinked
	}
	return err
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	const query = `
		SELECT id, discord_id, COALESCE(email, ''), password_hash, display_name, created_via, created_at, updated_at
		FROM users WHERE id = $1
	`
	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) FindByDiscordID(ctx context.Context, discordID string) (models.User, error) {
	const query = `
		SELECT id, discord_id, COALESCE(email, ''), password_hash, display_name, created_via, created_at, updated_at
		FROM users WHERE discord_id = $1
	`
	return r.scanUser(r.pool.QueryRow(ctx, query, discordID))
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	const query = `
		SELECT id, discord_id, COALESCE(email, ''), password_hash, display_name, created_via, created_at, updated_at
		FROM users WHERE email = $1
	`
	return r.scanUser(r.pool.QueryRow(ctx, query, email))
}

// LinkDiscordID attaches a discord identity to an existing user. The
// unique index on discord_id rejects an identity owned by another row.
func (r *UserRepository) LinkDiscordID(ctx context.Context, userID string, discordID string) error {
	const query = `
		UPDATE users SET discord_id = $2, updated_at = NOW() WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query, userID, discordID)
	if isUniqueViolation(err, "users_discord_id_key") {
		return ErrDiscordAlreadyLinked
	}
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Delete removes the user; sessions, codes, and medications cascade.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM users WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	if err := row.Scan(
		&user.ID,
		&user.DiscordID,
		&user.Email,
		&user.PasswordHash,
		&user.DisplayName,
		&user.CreatedVia,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
	}
	return false
}
