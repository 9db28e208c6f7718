package postgres

import (
	"context"
	"errors"
	"time"

	domain "accounts/backend/internal/domain/account"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// UserRepository persists users and one-time tokens in PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository constructs a repository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

var _ domain.CredentialStore = (*UserRepository)(nil)

const userColumns = `id, username, email, first_name, last_name, password_hash, email_confirmed, created_at, updated_at`

// Create inserts a new user record.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
INSERT INTO users (` + userColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.FirstName,
		user.LastName,
		user.PasswordHash,
		user.EmailConfirmed,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateEmail
		}
		return err
	}
	return nil
}

// GetByID retrieves a user by id.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByUsername fetches a user by normalised username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return r.getOne(ctx, query, username)
}

// GetByEmail fetches a user by normalised email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.getOne(ctx, query, email)
}

// Update modifies an existing user record. The creation timestamp is never rewritten.
func (r *UserRepository) Update(ctx context.Context, user *domain.User) error {
	const query = `
UPDATE users
SET username = $2, email = $3, first_name = $4, last_name = $5,
    password_hash = $6, email_confirmed = $7, updated_at = $8
WHERE id = $1
`
	ct, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.FirstName,
		user.LastName,
		user.PasswordHash,
		user.EmailConfirmed,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateEmail
		}
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// SaveConfirmationToken stores the token digest, replacing the user's previous token.
func (r *UserRepository) SaveConfirmationToken(ctx context.Context, token *domain.OneTimeToken) error {
	const query = `
INSERT INTO email_confirmation_tokens (user_id, token_hash, expires_at, created_at)
SELECT id, $2, $3, $4 FROM users WHERE id = $1
ON CONFLICT (user_id) DO UPDATE
SET token_hash = EXCLUDED.token_hash, expires_at = EXCLUDED.expires_at, created_at = EXCLUDED.created_at
`
	ct, err := r.pool.Exec(ctx, query, token.UserID, token.TokenHash, token.ExpiresAt, token.CreatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// ConfirmEmail consumes the user's token and sets the confirmed flag in one transaction.
func (r *UserRepository) ConfirmEmail(ctx context.Context, userID, tokenHash string, at time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var confirmed bool
	err = tx.QueryRow(ctx, `SELECT email_confirmed FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&confirmed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrUserNotFound
		}
		return err
	}
	if confirmed {
		return domain.ErrAlreadyConfirmed
	}

	ct, err := tx.Exec(ctx, `
DELETE FROM email_confirmation_tokens
WHERE user_id = $1 AND token_hash = $2 AND expires_at > $3
`, userID, tokenHash, at)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrInvalidToken
	}

	if _, err := tx.Exec(ctx, `UPDATE users SET email_confirmed = TRUE, updated_at = $2 WHERE id = $1`, userID, at); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SavePasswordResetToken stores the reset token digest, replacing the user's previous one.
func (r *UserRepository) SavePasswordResetToken(ctx context.Context, token *domain.OneTimeToken) error {
	const query = `
INSERT INTO password_reset_tokens (user_id, token_hash, expires_at, created_at)
SELECT id, $2, $3, $4 FROM users WHERE id = $1
ON CONFLICT (user_id) DO UPDATE
SET token_hash = EXCLUDED.token_hash, expires_at = EXCLUDED.expires_at, created_at = EXCLUDED.created_at
`
	ct, err := r.pool.Exec(ctx, query, token.UserID, token.TokenHash, token.ExpiresAt, token.CreatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// ResetPassword consumes the user's reset token and stores the new hash in one transaction.
func (r *UserRepository) ResetPassword(ctx context.Context, userID, tokenHash, passwordHash string, at time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var exists bool
	err = tx.QueryRow(ctx, `SELECT TRUE FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrUserNotFound
		}
		return err
	}

	ct, err := tx.Exec(ctx, `
DELETE FROM password_reset_tokens
WHERE user_id = $1 AND token_hash = $2 AND expires_at > $3
`, userID, tokenHash, at)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrInvalidToken
	}

	if _, err := tx.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`, userID, passwordHash, at); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.FirstName,
		&u.LastName,
		&u.PasswordHash,
		&u.EmailConfirmed,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
