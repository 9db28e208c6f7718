// Package memory provides an in-process credential store for tests and local development.
package memory

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	domain "accounts/backend/internal/domain/account"
)

// UserRepository keeps users and one-time tokens in maps guarded by a mutex.
type UserRepository struct {
	mu          sync.RWMutex
	users       map[string]*domain.User
	byUsername  map[string]string
	byEmail     map[string]string
	tokens      map[string]domain.OneTimeToken
	resetTokens map[string]domain.OneTimeToken
}

// NewUserRepository constructs an empty repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		users:       make(map[string]*domain.User),
		byUsername:  make(map[string]string),
		byEmail:     make(map[string]string),
		tokens:      make(map[string]domain.OneTimeToken),
		resetTokens: make(map[string]domain.OneTimeToken),
	}
}

var _ domain.CredentialStore = (*UserRepository)(nil)

// Create inserts a new user record, rejecting duplicate usernames and emails.
func (r *UserRepository) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; ok {
		return domain.ErrDuplicateEmail
	}
	if _, ok := r.byUsername[user.Username]; ok {
		return domain.ErrDuplicateEmail
	}
	if _, ok := r.byEmail[user.Email]; ok {
		return domain.ErrDuplicateEmail
	}

	stored := *user
	r.users[user.ID] = &stored
	r.byUsername[user.Username] = user.ID
	r.byEmail[user.Email] = user.ID
	return nil
}

// GetByID retrieves a user by id.
func (r *UserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(id)
}

// GetByUsername retrieves a user by normalised username.
func (r *UserRepository) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(r.byUsername[username])
}

// GetByEmail retrieves a user by normalised email.
func (r *UserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(r.byEmail[email])
}

// Update replaces the stored profile fields of an existing user.
func (r *UserRepository) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.users[user.ID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if id, taken := r.byUsername[user.Username]; taken && id != user.ID {
		return domain.ErrDuplicateEmail
	}
	if id, taken := r.byEmail[user.Email]; taken && id != user.ID {
		return domain.ErrDuplicateEmail
	}

	delete(r.byUsername, current.Username)
	delete(r.byEmail, current.Email)
	stored := *user
	stored.CreatedAt = current.CreatedAt
	r.users[user.ID] = &stored
	r.byUsername[user.Username] = user.ID
	r.byEmail[user.Email] = user.ID
	return nil
}

// SaveConfirmationToken stores the token, replacing the user's previous one.
func (r *UserRepository) SaveConfirmationToken(_ context.Context, token *domain.OneTimeToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[token.UserID]; !ok {
		return domain.ErrUserNotFound
	}
	r.tokens[token.UserID] = *token
	return nil
}

// ConfirmEmail checks the digest against the user's live token and sets the confirmed flag.
func (r *UserRepository) ConfirmEmail(_ context.Context, userID, tokenHash string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if user.EmailConfirmed {
		return domain.ErrAlreadyConfirmed
	}

	stored, ok := r.tokens[userID]
	if !ok || !at.Before(stored.ExpiresAt) {
		return domain.ErrInvalidToken
	}
	if subtle.ConstantTimeCompare([]byte(stored.TokenHash), []byte(tokenHash)) != 1 {
		return domain.ErrInvalidToken
	}

	user.EmailConfirmed = true
	user.UpdatedAt = at
	delete(r.tokens, userID)
	return nil
}

// SavePasswordResetToken stores the reset token, replacing the user's previous one.
func (r *UserRepository) SavePasswordResetToken(_ context.Context, token *domain.OneTimeToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[token.UserID]; !ok {
		return domain.ErrUserNotFound
	}
	r.resetTokens[token.UserID] = *token
	return nil
}

// ResetPassword checks the digest against the user's live reset token and swaps the password hash.
func (r *UserRepository) ResetPassword(_ context.Context, userID, tokenHash, passwordHash string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}

	stored, ok := r.resetTokens[userID]
	if !ok || !at.Before(stored.ExpiresAt) {
		return domain.ErrInvalidToken
	}
	if subtle.ConstantTimeCompare([]byte(stored.TokenHash), []byte(tokenHash)) != 1 {
		return domain.ErrInvalidToken
	}

	user.PasswordHash = passwordHash
	user.UpdatedAt = at
	delete(r.resetTokens, userID)
	return nil
}

func (r *UserRepository) lookup(id string) (*domain.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}
