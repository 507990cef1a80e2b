package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dispatchd/dispatchd/internal/directory"
)

type directorySyncResult struct {
	Status      string `json:"status"`
	Extension   string `json:"extension,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// handleDirectorySync rebuilds one directory collection from the PBX
// configuration. The result is always a definite status; a missing or
// malformed configuration source reports FAILED with the previous snapshot
// and listing retained.
func (s *Server) handleDirectorySync(w http.ResponseWriter, r *http.Request) {
	kind, err := directory.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	hint := r.URL.Query().Get("extension")
	delta, err := s.deps.Directory.Sync(kind, hint)
	if err != nil {
		slog.Error("directory sync failed", "kind", kind, "error", err)
		writeJSON(w, http.StatusOK, directorySyncResult{Status: statusFailed})
		return
	}

	writeJSON(w, http.StatusOK, directorySyncResult{
		Status:      statusSuccessful,
		Extension:   delta.Extension,
		DisplayName: delta.DisplayName,
	})
}

type directoryUpdateRequest struct {
	Address      *string `json:"address"`
	Availability *string `json:"availability"`
	Reset        bool    `json:"reset"`
}

// handleDirectoryUpdate applies a partial update to one directory entry and
// rewrites that kind's listing.
func (s *Server) handleDirectoryUpdate(w http.ResponseWriter, r *http.Request) {
	kind, err := directory.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ext := chi.URLParam(r, "extension")

	var req directoryUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Availability != nil {
		switch *req.Availability {
		case directory.AvailAvailable, directory.AvailOccupied:
		default:
			writeError(w, http.StatusBadRequest, "availability must be AVAILABLE or OCCUPIED")
			return
		}
	}
	if req.Address == nil && req.Availability == nil && !req.Reset {
		writeError(w, http.StatusBadRequest, "no fields to update")
		return
	}

	rec, err := s.deps.Directory.UpdateEntry(kind, ext, directory.EntryUpdate{
		Address:      req.Address,
		Availability: req.Availability,
		Reset:        req.Reset,
	})
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			writeError(w, http.StatusNotFound, "extension not in directory")
			return
		}
		slog.Error("directory update failed", "kind", kind, "extension", ext, "error", err)
		writeError(w, http.StatusInternalServerError, "directory update failed")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}
