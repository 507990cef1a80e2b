package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dispatchd/dispatchd/internal/api/middleware"
	"github.com/dispatchd/dispatchd/internal/database"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleLogin verifies operator credentials and issues a bearer token.
// Unknown usernames and wrong passwords are indistinguishable to the caller.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	op, err := s.deps.Operators.GetByUsername(r.Context(), req.Username)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			slog.Error("login: operator lookup failed", "error", err)
		}
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	ok, err := database.CheckPassword(req.Password, op.PasswordHash)
	if err != nil || !ok {
		slog.Info("login rejected", "username", req.Username)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := middleware.GenerateToken([]byte(s.cfg.JWTSecret), op.Username)
	if err != nil {
		slog.Error("login: token signing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	slog.Info("operator logged in", "username", op.Username)
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}
