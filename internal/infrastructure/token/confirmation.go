package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "accounts/backend/internal/domain/account"
	usecase "accounts/backend/internal/usecase/account"
)

// confirmationTokenSize is the number of random bytes in a confirmation secret.
const confirmationTokenSize = 32

// ConfirmationCodec mints email confirmation tokens and checks them against the store.
type ConfirmationCodec struct {
	store   domain.ConfirmationStore
	ttl     time.Duration
	nowFunc func() time.Time
}

// NewConfirmationCodec constructs a codec whose tokens stay valid for ttl.
func NewConfirmationCodec(store domain.ConfirmationStore, ttl time.Duration) *ConfirmationCodec {
	return &ConfirmationCodec{
		store:   store,
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

var _ usecase.ConfirmationTokens = (*ConfirmationCodec)(nil)

// Issue generates a fresh secret for userID, persists its digest and returns
// the URL-safe encoding to embed in the confirmation link.
func (c *ConfirmationCodec) Issue(ctx context.Context, userID string) (string, error) {
	raw := make([]byte, confirmationTokenSize)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate confirmation token: %w", err)
	}

	now := c.nowFunc().UTC()
	err := c.store.SaveConfirmationToken(ctx, &domain.OneTimeToken{
		UserID:    userID,
		TokenHash: HashConfirmationToken(raw),
		ExpiresAt: now.Add(c.ttl),
		CreatedAt: now,
	})
	if err != nil {
		return "", fmt.Errorf("save confirmation token: %w", err)
	}
	return EncodeConfirmationToken(raw), nil
}

// Consume decodes the supplied token and submits it to the store's confirmation check.
// Undecodable input is reported as domain.ErrInvalidToken, like a digest mismatch.
func (c *ConfirmationCodec) Consume(ctx context.Context, user *domain.User, supplied string) error {
	raw, err := DecodeConfirmationToken(supplied)
	if err != nil {
		return domain.ErrInvalidToken
	}
	return c.store.ConfirmEmail(ctx, user.ID, HashConfirmationToken(raw), c.nowFunc().UTC())
}

// EncodeConfirmationToken encodes a raw secret for transport in a URL.
func EncodeConfirmationToken(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeConfirmationToken reverses EncodeConfirmationToken. Trailing padding is tolerated.
func DecodeConfirmationToken(encoded string) ([]byte, error) {
	encoded = strings.TrimRight(strings.TrimSpace(encoded), "=")
	if encoded == "" {
		return nil, errors.New("empty confirmation token")
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if len(raw) != confirmationTokenSize {
		return nil, fmt.Errorf("confirmation token has %d bytes, want %d", len(raw), confirmationTokenSize)
	}
	return raw, nil
}

// HashConfirmationToken returns the hex SHA-256 digest stored in place of the secret.
func HashConfirmationToken(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
