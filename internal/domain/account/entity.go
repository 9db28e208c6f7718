package account

import (
	"errors"
	"time"
)

var (
	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicateEmail signals that the normalised email or username is already registered.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrInvalidCredentials covers both an unknown username and a wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrUnknownEmail indicates no account is registered under the email.
	ErrUnknownEmail = errors.New("email address has not been registered")
	// ErrAlreadyConfirmed indicates the email was confirmed before.
	ErrAlreadyConfirmed = errors.New("email already confirmed")
	// ErrInvalidToken means a confirmation or reset token is malformed, expired or does not belong to the user.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrEmailDeliveryFailed indicates an account email could not be sent.
	ErrEmailDeliveryFailed = errors.New("failed to send email")
	// ErrUnauthorized means the session token is missing, expired or invalid.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrEmailNotConfirmed is returned when an operation needs a confirmed email.
	ErrEmailNotConfirmed = errors.New("email not confirmed")
	// ErrUserNotFound indicates missing user.
	ErrUserNotFound = errors.New("user not found")
)

// User models the account entity persisted in the credential store.
type User struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	PasswordHash   string    `json:"-"`
	EmailConfirmed bool      `json:"emailConfirmed"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// OneTimeToken is the stored side of an emailed single-use token, used for
// email confirmation and password reset. Only the digest of the secret is kept.
type OneTimeToken struct {
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// SessionClaims are the identity assertions carried by a session token.
type SessionClaims struct {
	UserID    string
	Email     string
	FirstName string
	LastName  string
	ExpiresAt time.Time
}

// Message is an outbound email.
type Message struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}
