package handlers

import (
	"errors"
	"net/http"

	"media-library/internal/logging"
	"media-library/internal/scanner"
)

type folderRequest struct {
	Root string `json:"root"`
}

// StartScan kicks off an asynchronous import of a folder tree. The
// response arrives before the walk starts; progress is published as
// scan-progress events.
func (h *Handlers) StartScan(w http.ResponseWriter, r *http.Request) {
	var req folderRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Root == "" {
		writeJSONError(w, "root is required", http.StatusBadRequest)
		return
	}

	if err := h.scanner.Scan(req.Root); err != nil {
		if errors.Is(err, scanner.ErrScanInProgress) {
			writeJSONError(w, err.Error(), http.StatusConflict)
			return
		}
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSONCode(w, http.StatusAccepted, map[string]string{"status": "scanning"})
}

// StartWatch begins mirroring filesystem changes under a folder into the
// catalog. Watching a new folder stops any previous watch.
func (h *Handlers) StartWatch(w http.ResponseWriter, r *http.Request) {
	var req folderRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Root == "" {
		writeJSONError(w, "root is required", http.StatusBadRequest)
		return
	}

	if err := h.watcher.Start(req.Root); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSONStatus(w, "watching")
}

// StopWatch ends the active watch, if any.
func (h *Handlers) StopWatch(w http.ResponseWriter, _ *http.Request) {
	h.watcher.Stop()
	writeJSONStatus(w, "stopped")
}

// ClearLibrary removes every asset from the catalog.
func (h *Handlers) ClearLibrary(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Clear(r.Context()); err != nil {
		logging.Error("failed to clear catalog: %v", err)
		writeJSONError(w, "failed to clear catalog", http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, "cleared")
}
