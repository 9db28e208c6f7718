package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	domain "accounts/backend/internal/domain/account"
	"accounts/backend/internal/logger"
	accountusecase "accounts/backend/internal/usecase/account"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	accountPrefix = "/api/account"
	productPrefix = "/api/product"
)

func (s *Server) registerRoutes() {
	s.handle("/health", http.HandlerFunc(s.handleHealth))
	s.handle("/metrics", promhttp.Handler())

	limited := s.rateLimit
	authenticated := s.authMiddleware
	s.handle(accountPrefix+"/login", limited(http.HandlerFunc(s.handleLogin)))
	s.handle(accountPrefix+"/register", limited(http.HandlerFunc(s.handleRegister)))
	s.handle(accountPrefix+"/confirm-email", limited(http.HandlerFunc(s.handleConfirmEmail)))
	s.handle(accountPrefix+"/resend-email-confirmation-link/{email}", limited(http.HandlerFunc(s.handleResendConfirmation)))
	s.handle(accountPrefix+"/refresh-user-token", limited(authenticated(http.HandlerFunc(s.handleRefreshToken))))
	s.handle(accountPrefix+"/forgot-username-or-password/{email}", limited(http.HandlerFunc(s.handleForgotPassword)))
	s.handle(accountPrefix+"/reset-password", limited(http.HandlerFunc(s.handleResetPassword)))

	s.handle(productPrefix+"/get-products", limited(authenticated(http.HandlerFunc(s.handleGetProducts))))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}

	var payload accountusecase.LoginInput
	if !decodeJSON(w, r, &payload) {
		return
	}

	session, err := s.accountService.Login(r.Context(), payload)
	if err != nil {
		s.writeAccountError(w, r, err, payload.Username)
		return
	}

	writeJSON(w, http.StatusOK, newSessionResponse(session))
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}

	var payload accountusecase.RegisterInput
	if !decodeJSON(w, r, &payload) {
		return
	}

	if _, err := s.accountService.Register(r.Context(), payload); err != nil {
		s.writeAccountError(w, r, err, payload.Email)
		return
	}

	writeMessage(w, "Account Created", "Your account has been created, please confirm your email address")
}

func (s *Server) handleConfirmEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeMethodNotAllowed(w, http.MethodPut)
		return
	}

	var payload accountusecase.ConfirmEmailInput
	if !decodeJSON(w, r, &payload) {
		return
	}

	if err := s.accountService.ConfirmEmail(r.Context(), payload); err != nil {
		s.writeAccountError(w, r, err, payload.Email)
		return
	}

	writeMessage(w, "Email confirmed", "Your email address is confirmed. You can login now")
}

func (s *Server) handleResendConfirmation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}

	email := r.PathValue("email")
	if err := s.accountService.ResendConfirmation(r.Context(), email); err != nil {
		s.writeAccountError(w, r, err, email)
		return
	}

	writeMessage(w, "Confirmation link sent", "Please confirm your email address")
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}

	email := r.PathValue("email")
	if err := s.accountService.ForgotPassword(r.Context(), email); err != nil {
		s.writeAccountError(w, r, err, email)
		return
	}

	writeMessage(w, "Forgot username or password", "Please check your email")
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeMethodNotAllowed(w, http.MethodPut)
		return
	}

	var payload accountusecase.ResetPasswordInput
	if !decodeJSON(w, r, &payload) {
		return
	}

	if err := s.accountService.ResetPassword(r.Context(), payload); err != nil {
		s.writeAccountError(w, r, err, payload.Email)
		return
	}

	writeMessage(w, "Password reset", "Your password has been reset")
}

// handleGetProducts is a placeholder catalogue that only answers authenticated callers.
func (s *Server) handleGetProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Only authorize users can view products"})
}

func (s *Server) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}

	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	session, err := s.accountService.RefreshSessionToken(r.Context(), claims.UserID)
	if err != nil {
		s.writeAccountError(w, r, err, claims.Email)
		return
	}

	writeJSON(w, http.StatusOK, newSessionResponse(session))
}

// writeAccountError maps account errors to HTTP responses. Unmapped errors are logged and reported as 500.
func (s *Server) writeAccountError(w http.ResponseWriter, r *http.Request, err error, email string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrDuplicateEmail):
		writeError(w, http.StatusBadRequest, fmt.Sprintf(
			"An existing account is using %s, email address. Please try with another email address",
			strings.ToLower(strings.TrimSpace(email))))
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, domain.ErrInvalidCredentials.Error())
	case errors.Is(err, domain.ErrEmailNotConfirmed):
		writeError(w, http.StatusForbidden, "Please confirm your email address first")
	case errors.Is(err, domain.ErrUnknownEmail):
		writeError(w, http.StatusUnauthorized, "This email address has not been registered yet")
	case errors.Is(err, domain.ErrAlreadyConfirmed):
		writeError(w, http.StatusBadRequest, "Your email was confirmed before. Please login to your account")
	case errors.Is(err, domain.ErrInvalidToken):
		writeError(w, http.StatusBadRequest, "Invalid token. Please try again")
	case errors.Is(err, domain.ErrEmailDeliveryFailed):
		writeError(w, http.StatusBadRequest, "Failed to send email. Please contact admin")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
	default:
		logger.Log.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
