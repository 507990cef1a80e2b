package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dispatchd/dispatchd/internal/database"
)

type terminateRequest struct {
	Channel string `json:"channel"` // target extension
}

// handleTerminateCall resolves the console's target extension against the
// live-channel listing and requests its hangup. The outcome is always a
// definite state; PBX-side failures surface as state ERROR, not as an HTTP
// error.
func (s *Server) handleTerminateCall(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")

	var req terminateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Channel == "" {
		writeError(w, http.StatusBadRequest, "channel is required")
		return
	}

	st, err := s.deps.Resolver.Terminate(r.Context(), requestID, req.Channel)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown request id")
			return
		}
		slog.Error("terminate failed", "request_id", requestID, "error", err)
		writeError(w, http.StatusInternalServerError, "terminate failed")
		return
	}

	writeJSON(w, http.StatusOK, st)
}

// handleListCalls returns the full channel-status table.
func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.deps.Statuses.List(r.Context())
	if err != nil {
		slog.Error("listing channel statuses failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list calls")
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}
