package httpserver

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	accountusecase "accounts/backend/internal/usecase/account"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

type sessionResponse struct {
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	SessionToken string    `json:"sessionToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

func newSessionResponse(session *accountusecase.Session) sessionResponse {
	return sessionResponse{
		FirstName:    session.User.FirstName,
		LastName:     session.User.LastName,
		SessionToken: session.Token,
		ExpiresAt:    session.ExpiresAt.UTC(),
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeMessage(w http.ResponseWriter, title, message string) {
	writeJSON(w, http.StatusOK, messageResponse{Title: title, Message: message})
}

func writeMethodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return false
	}
	return true
}
