package account

import (
	"context"
	"time"

	domain "accounts/backend/internal/domain/account"
)

// SessionTokens abstracts session token issuance and verification.
type SessionTokens interface {
	Issue(claims domain.SessionClaims, ttl time.Duration) (string, time.Time, error)
	Verify(token string) (domain.SessionClaims, error)
}

// ConfirmationTokens abstracts one-time email confirmation tokens.
type ConfirmationTokens interface {
	Issue(ctx context.Context, userID string) (string, error)
	Consume(ctx context.Context, user *domain.User, supplied string) error
}

// PasswordResetTokens abstracts one-time password reset tokens. Consume stores
// passwordHash only when supplied matches the user's pending token.
type PasswordResetTokens interface {
	Issue(ctx context.Context, userID string) (string, error)
	Consume(ctx context.Context, user *domain.User, supplied, passwordHash string) error
}

// PasswordHasher hashes passwords and verifies them against stored hashes.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

// Notifier delivers outbound email.
type Notifier interface {
	Send(ctx context.Context, msg domain.Message) error
}
