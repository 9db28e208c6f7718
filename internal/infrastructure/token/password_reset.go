package token

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	domain "accounts/backend/internal/domain/account"
	usecase "accounts/backend/internal/usecase/account"
)

// PasswordResetCodec mints password reset tokens. They share the confirmation
// token encoding but live in their own store slot.
type PasswordResetCodec struct {
	store   domain.PasswordResetStore
	ttl     time.Duration
	nowFunc func() time.Time
}

// NewPasswordResetCodec constructs a codec whose tokens stay valid for ttl.
func NewPasswordResetCodec(store domain.PasswordResetStore, ttl time.Duration) *PasswordResetCodec {
	return &PasswordResetCodec{
		store:   store,
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

var _ usecase.PasswordResetTokens = (*PasswordResetCodec)(nil)

// Issue replaces any pending reset token for userID and returns the new one.
func (c *PasswordResetCodec) Issue(ctx context.Context, userID string) (string, error) {
	raw := make([]byte, confirmationTokenSize)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}

	now := c.nowFunc().UTC()
	err := c.store.SavePasswordResetToken(ctx, &domain.OneTimeToken{
		UserID:    userID,
		TokenHash: HashConfirmationToken(raw),
		ExpiresAt: now.Add(c.ttl),
		CreatedAt: now,
	})
	if err != nil {
		return "", fmt.Errorf("save reset token: %w", err)
	}
	return EncodeConfirmationToken(raw), nil
}

// Consume checks the supplied token and, when it matches, stores passwordHash.
func (c *PasswordResetCodec) Consume(ctx context.Context, user *domain.User, supplied, passwordHash string) error {
	raw, err := DecodeConfirmationToken(supplied)
	if err != nil {
		return domain.ErrInvalidToken
	}
	return c.store.ResetPassword(ctx, user.ID, HashConfirmationToken(raw), passwordHash, c.nowFunc().UTC())
}
