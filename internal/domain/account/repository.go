package account

import (
	"context"
	"time"
)

// CredentialStore defines persistence operations for user records.
//
// Implementations enforce uniqueness of username and email themselves and
// return ErrDuplicateEmail when an insert or update would violate it.
type CredentialStore interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, user *User) error
	ConfirmationStore
	PasswordResetStore
}

// ConfirmationStore persists confirmation token digests and performs the
// single-use confirmation check.
type ConfirmationStore interface {
	// SaveConfirmationToken stores the token, replacing any previous token of the same user.
	SaveConfirmationToken(ctx context.Context, token *OneTimeToken) error
	// ConfirmEmail marks the user's email as confirmed when tokenHash matches an
	// unexpired token issued to userID, and discards the user's tokens.
	// It returns ErrInvalidToken on mismatch or expiry, ErrAlreadyConfirmed when
	// the flag is already set and ErrUserNotFound for an unknown user.
	ConfirmEmail(ctx context.Context, userID, tokenHash string, at time.Time) error
}

// PasswordResetStore persists password reset token digests and performs the
// single-use reset.
type PasswordResetStore interface {
	// SavePasswordResetToken stores the token, replacing any previous reset token of the same user.
	SavePasswordResetToken(ctx context.Context, token *OneTimeToken) error
	// ResetPassword replaces the user's password hash when tokenHash matches an
	// unexpired reset token issued to userID, and discards that token.
	// It returns ErrInvalidToken on mismatch or expiry and ErrUserNotFound for an unknown user.
	ResetPassword(ctx context.Context, userID, tokenHash, passwordHash string, at time.Time) error
}
