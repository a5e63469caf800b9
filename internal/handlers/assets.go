package handlers

import (
	"errors"
	"net/http"
	"os"
	"strconv"

	"media-library/internal/database"
	"media-library/internal/logging"
)

// ListAssets returns one page of the catalog. Query parameters: page,
// page_size, query (tokenized text filter) and kind (image, video,
// audio or all).
func (h *Handlers) ListAssets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	opts := database.ListOptions{
		Kind:  q.Get("kind"),
		Query: q.Get("query"),
	}
	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil {
			writeJSONError(w, "invalid page", http.StatusBadRequest)
			return
		}
		opts.Page = page
	}
	if v := q.Get("page_size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			writeJSONError(w, "invalid page_size", http.StatusBadRequest)
			return
		}
		opts.PageSize = size
	}

	page, err := h.db.ListAssets(r.Context(), opts)
	if err != nil {
		logging.Error("failed to list assets: %v", err)
		writeJSONError(w, "failed to list assets", http.StatusInternalServerError)
		return
	}
	writeJSON(w, page)
}

// CountAssets returns how many assets are cataloged, optionally for one
// kind.
func (h *Handlers) CountAssets(w http.ResponseWriter, r *http.Request) {
	count, err := h.db.CountAssets(r.Context(), r.URL.Query().Get("kind"))
	if err != nil {
		logging.Error("failed to count assets: %v", err)
		writeJSONError(w, "failed to count assets", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]int64{"count": count})
}

// DeleteFile removes a file from disk and drops its catalog row. A file
// already gone from disk still loses its row.
func (h *Handlers) DeleteFile(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSONError(w, "path is required", http.StatusBadRequest)
		return
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Error("failed to delete %s: %v", path, err)
		writeJSONError(w, "failed to delete file", http.StatusInternalServerError)
		return
	}

	removed, err := h.db.DeleteByPath(r.Context(), path)
	if err != nil {
		logging.Error("failed to remove %s from catalog: %v", path, err)
		writeJSONError(w, "failed to update catalog", http.StatusInternalServerError)
		return
	}
	if removed {
		h.bus.PublishFileRemoved(path)
	}

	writeJSONStatus(w, "deleted")
}
