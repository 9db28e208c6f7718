package account

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	domain "accounts/backend/internal/domain/account"
	"accounts/backend/internal/logger"
	"accounts/backend/internal/metrics"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
)

// Options tunes the account workflows.
type Options struct {
	SessionTTL            time.Duration
	EmailTimeout          time.Duration
	RequireConfirmedEmail bool
	Mail                  MailSettings
}

// Service coordinates registration, login, email confirmation, password reset and token refresh.
type Service struct {
	users         domain.CredentialStore
	hasher        PasswordHasher
	sessions      SessionTokens
	confirmations ConfirmationTokens
	resets        PasswordResetTokens
	notifier      Notifier
	opts          Options

	validate  *validator.Validate
	sanitizer *bluemonday.Policy
	dummyHash string
	nowFunc   func() time.Time
	newID     func() string
}

// NewService constructs an account service.
func NewService(
	users domain.CredentialStore,
	hasher PasswordHasher,
	sessions SessionTokens,
	confirmations ConfirmationTokens,
	resets PasswordResetTokens,
	notifier Notifier,
	opts Options,
) (*Service, error) {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 12 * time.Hour
	}
	if opts.EmailTimeout <= 0 {
		opts.EmailTimeout = 10 * time.Second
	}

	// Compared against when the username is unknown so both login failures cost a hash check.
	dummyHash, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("prepare password hasher: %w", err)
	}

	return &Service{
		users:         users,
		hasher:        hasher,
		sessions:      sessions,
		confirmations: confirmations,
		resets:        resets,
		notifier:      notifier,
		opts:          opts,
		validate:      newValidator(),
		sanitizer:     bluemonday.StrictPolicy(),
		dummyHash:     dummyHash,
		nowFunc:       time.Now,
		newID:         uuid.NewString,
	}, nil
}

// RegisterInput carries the fields of a registration request.
type RegisterInput struct {
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,min=6,max=15"`
}

// LoginInput carries the fields of a login request.
type LoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ConfirmEmailInput carries the fields of an email confirmation request.
type ConfirmEmailInput struct {
	Email string `json:"email" validate:"required,email"`
	Token string `json:"token" validate:"required"`
}

// ResetPasswordInput carries the fields of a password reset request.
type ResetPasswordInput struct {
	Token       string `json:"token" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	NewPassword string `json:"newPassword" validate:"required,min=6,max=15"`
}

// Session is the result of a successful login or refresh.
type Session struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

// Register creates an unconfirmed account and sends the confirmation email.
//
// When the email cannot be delivered the account is kept and the returned
// user is accompanied by an error wrapping domain.ErrEmailDeliveryFailed; the
// user recovers through ResendConfirmation.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	in.FirstName = s.cleanName(in.FirstName)
	in.LastName = s.cleanName(in.LastName)
	in.Email = normalizeEmail(in.Email)
	if err := s.check(in); err != nil {
		metrics.AccountEvent("register", "invalid")
		return nil, err
	}

	if err := s.ensureAvailable(ctx, in.Email); err != nil {
		if errors.Is(err, domain.ErrDuplicateEmail) {
			metrics.AccountEvent("register", "duplicate")
		}
		return nil, err
	}

	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.nowFunc().UTC()
	user := &domain.User{
		ID:           s.newID(),
		Username:     in.Email,
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: hashed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrDuplicateEmail) {
			metrics.AccountEvent("register", "duplicate")
			return nil, domain.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	logger.Log.InfoContext(ctx, "account registered", "user_id", user.ID)

	if err := s.sendConfirmation(ctx, user); err != nil {
		metrics.AccountEvent("register", "email_failed")
		return sanitizeUser(user), err
	}

	metrics.AccountEvent("register", "success")
	return sanitizeUser(user), nil
}

// Login validates credentials and issues a session token.
// Unknown usernames and wrong passwords yield the same domain.ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	in.Username = normalizeEmail(in.Username)
	if err := s.check(in); err != nil {
		return nil, err
	}

	user, err := s.users.GetByUsername(ctx, in.Username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.hasher.Verify(in.Password, s.dummyHash)
			metrics.AccountEvent("login", "invalid_credentials")
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	if !s.hasher.Verify(in.Password, user.PasswordHash) {
		metrics.AccountEvent("login", "invalid_credentials")
		return nil, domain.ErrInvalidCredentials
	}

	if s.opts.RequireConfirmedEmail && !user.EmailConfirmed {
		metrics.AccountEvent("login", "unconfirmed")
		return nil, domain.ErrEmailNotConfirmed
	}

	session, err := s.issueSession(user)
	if err != nil {
		return nil, err
	}
	metrics.AccountEvent("login", "success")
	return session, nil
}

// ConfirmEmail consumes a confirmation token for the account registered under email.
func (s *Service) ConfirmEmail(ctx context.Context, in ConfirmEmailInput) error {
	in.Email = normalizeEmail(in.Email)
	in.Token = strings.TrimSpace(in.Token)
	if err := s.check(in); err != nil {
		return err
	}

	user, err := s.lookupByEmail(ctx, in.Email)
	if err != nil {
		return err
	}
	if user.EmailConfirmed {
		metrics.AccountEvent("confirm_email", "already_confirmed")
		return domain.ErrAlreadyConfirmed
	}

	if err := s.confirmations.Consume(ctx, user, in.Token); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidToken):
			metrics.AccountEvent("confirm_email", "invalid_token")
			return domain.ErrInvalidToken
		case errors.Is(err, domain.ErrAlreadyConfirmed):
			metrics.AccountEvent("confirm_email", "already_confirmed")
			return domain.ErrAlreadyConfirmed
		case errors.Is(err, domain.ErrUserNotFound):
			return domain.ErrUnknownEmail
		default:
			return fmt.Errorf("confirm email: %w", err)
		}
	}

	logger.Log.InfoContext(ctx, "email confirmed", "user_id", user.ID)
	metrics.AccountEvent("confirm_email", "success")
	return nil
}

// ResendConfirmation mints a fresh confirmation token for an unconfirmed account and emails it.
func (s *Service) ResendConfirmation(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return fmt.Errorf("%w: email must be a valid email address", domain.ErrValidation)
	}

	user, err := s.lookupByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.EmailConfirmed {
		metrics.AccountEvent("resend_confirmation", "already_confirmed")
		return domain.ErrAlreadyConfirmed
	}

	if err := s.sendConfirmation(ctx, user); err != nil {
		metrics.AccountEvent("resend_confirmation", "email_failed")
		return err
	}
	metrics.AccountEvent("resend_confirmation", "success")
	return nil
}

// ForgotPassword emails a password reset link to a confirmed account.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return fmt.Errorf("%w: email must be a valid email address", domain.ErrValidation)
	}

	user, err := s.lookupByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !user.EmailConfirmed {
		metrics.AccountEvent("forgot_password", "unconfirmed")
		return domain.ErrEmailNotConfirmed
	}

	token, err := s.resets.Issue(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("issue reset token: %w", err)
	}
	msg, err := s.opts.Mail.passwordResetMessage(user, token)
	if err != nil {
		return fmt.Errorf("render reset email: %w", err)
	}
	if err := s.deliver(ctx, user, msg); err != nil {
		metrics.AccountEvent("forgot_password", "email_failed")
		return err
	}
	metrics.AccountEvent("forgot_password", "success")
	return nil
}

// ResetPassword sets a new password when the reset token matches the account's pending one.
func (s *Service) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	in.Email = normalizeEmail(in.Email)
	in.Token = strings.TrimSpace(in.Token)
	if err := s.check(in); err != nil {
		return err
	}

	user, err := s.lookupByEmail(ctx, in.Email)
	if err != nil {
		return err
	}
	if !user.EmailConfirmed {
		metrics.AccountEvent("reset_password", "unconfirmed")
		return domain.ErrEmailNotConfirmed
	}

	hashed, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.resets.Consume(ctx, user, in.Token, hashed); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidToken):
			metrics.AccountEvent("reset_password", "invalid_token")
			return domain.ErrInvalidToken
		case errors.Is(err, domain.ErrUserNotFound):
			return domain.ErrUnknownEmail
		default:
			return fmt.Errorf("reset password: %w", err)
		}
	}

	logger.Log.InfoContext(ctx, "password reset", "user_id", user.ID)
	metrics.AccountEvent("reset_password", "success")
	return nil
}

// RefreshSessionToken reissues a session token carrying the user's current claims.
func (s *Service) RefreshSessionToken(ctx context.Context, userID string) (*Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.ErrUnauthorized
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	session, err := s.issueSession(user)
	if err != nil {
		return nil, err
	}
	metrics.AccountEvent("refresh_token", "success")
	return session, nil
}

// Authenticate verifies a bearer session token without touching the store.
func (s *Service) Authenticate(token string) (domain.SessionClaims, error) {
	if token == "" {
		return domain.SessionClaims{}, domain.ErrUnauthorized
	}
	claims, err := s.sessions.Verify(token)
	if err != nil {
		logger.Log.Debug("session token rejected", "error", err)
		return domain.SessionClaims{}, domain.ErrUnauthorized
	}
	return claims, nil
}

func (s *Service) ensureAvailable(ctx context.Context, email string) error {
	for _, find := range []func(context.Context, string) (*domain.User, error){
		s.users.GetByEmail,
		s.users.GetByUsername,
	} {
		if _, err := find(ctx, email); err == nil {
			return domain.ErrDuplicateEmail
		} else if !errors.Is(err, domain.ErrUserNotFound) {
			return fmt.Errorf("check existing user: %w", err)
		}
	}
	return nil
}

func (s *Service) lookupByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUnknownEmail
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

func (s *Service) sendConfirmation(ctx context.Context, user *domain.User) error {
	token, err := s.confirmations.Issue(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("issue confirmation token: %w", err)
	}

	msg, err := s.opts.Mail.confirmationMessage(user, token)
	if err != nil {
		return fmt.Errorf("render confirmation email: %w", err)
	}
	return s.deliver(ctx, user, msg)
}

func (s *Service) deliver(ctx context.Context, user *domain.User, msg domain.Message) error {
	sendCtx, cancel := context.WithTimeout(ctx, s.opts.EmailTimeout)
	defer cancel()
	if err := s.notifier.Send(sendCtx, msg); err != nil {
		logger.Log.ErrorContext(ctx, "failed to send account email", "user_id", user.ID, "subject", msg.Subject, "error", err)
		return fmt.Errorf("%w: %v", domain.ErrEmailDeliveryFailed, err)
	}
	return nil
}

func (s *Service) issueSession(user *domain.User) (*Session, error) {
	token, expiresAt, err := s.sessions.Issue(domain.SessionClaims{
		UserID:    user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}, s.opts.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("issue session token: %w", err)
	}
	return &Session{
		User:      sanitizeUser(user),
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *Service) check(input any) error {
	if err := s.validate.Struct(input); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			return fmt.Errorf("%w: %s", domain.ErrValidation, describe(fieldErrs))
		}
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

func (s *Service) cleanName(name string) string {
	// StrictPolicy strips markup and escapes entities; names are stored as plain text.
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(strings.TrimSpace(name))))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func sanitizeUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	clone.PasswordHash = ""
	return &clone
}
