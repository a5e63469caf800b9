package handlers

import (
	"errors"
	"net/http"

	"media-library/internal/artifact"
	"media-library/internal/logging"
)

// GenerateThumbnails queues thumbnail generation for every image asset
// missing one and reports how many were queued. Progress is published as
// thumbnail-progress events.
func (h *Handlers) GenerateThumbnails(w http.ResponseWriter, r *http.Request) {
	pending, err := h.coordinator.GenerateThumbnails(r.Context())
	h.respondGeneration(w, pending, err)
}

// GenerateWaveforms queues waveform generation for every audio asset
// missing one. Progress is published as waveform-progress events.
func (h *Handlers) GenerateWaveforms(w http.ResponseWriter, r *http.Request) {
	pending, err := h.coordinator.GenerateWaveforms(r.Context())
	h.respondGeneration(w, pending, err)
}

func (h *Handlers) respondGeneration(w http.ResponseWriter, pending int, err error) {
	if err != nil {
		if errors.Is(err, artifact.ErrGenerationInProgress) {
			writeJSONError(w, err.Error(), http.StatusConflict)
			return
		}
		logging.Error("failed to start generation: %v", err)
		writeJSONError(w, "failed to start generation", http.StatusInternalServerError)
		return
	}

	writeJSONCode(w, http.StatusAccepted, map[string]int{"pending": pending})
}

// CancelGeneration stops every active generation run.
func (h *Handlers) CancelGeneration(w http.ResponseWriter, _ *http.Request) {
	h.coordinator.Cancel()
	writeJSONStatus(w, "cancelled")
}
