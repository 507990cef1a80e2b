package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dispatchd/dispatchd/internal/recording"
)

type recordingSyncResult struct {
	Status string `json:"status"`
}

// handleRecordingsSync refreshes the recording catalog. BUSY means a
// retention batch is still draining and the caller should retry later.
func (s *Server) handleRecordingsSync(w http.ResponseWriter, r *http.Request) {
	switch err := s.deps.Catalog.Refresh(); {
	case err == nil:
		writeJSON(w, http.StatusOK, recordingSyncResult{Status: statusSuccessful})
	case errors.Is(err, recording.ErrBusy):
		writeJSON(w, http.StatusOK, recordingSyncResult{Status: statusBusy})
	default:
		slog.Error("recording catalog refresh failed", "error", err)
		writeJSON(w, http.StatusOK, recordingSyncResult{Status: statusFailed})
	}
}

// handleListRecordings returns the parsed rows of the last successful
// refresh.
func (s *Server) handleListRecordings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Catalog.Entries())
}

// handleDeleteRecording removes one recording synchronously, outside the
// retention queue, and rebuilds the listing.
func (s *Server) handleDeleteRecording(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")

	if err := s.deps.Catalog.DeleteNamed(name); err != nil {
		slog.Error("recording delete failed", "file", name, "error", err)
		writeJSON(w, http.StatusOK, recordingSyncResult{Status: statusFailed})
		return
	}
	writeJSON(w, http.StatusOK, recordingSyncResult{Status: statusSuccessful})
}
