package handlers

import (
	"net/http"
	"runtime"
	"time"

	"media-library/internal/startup"
)

const statusHealthy = "healthy"

// HealthResponse contains the health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Uptime   string `json:"uptime"`
	Scanning bool   `json:"scanning"`
	Watching bool   `json:"watching"`

	// Active generation runs, e.g. ["thumbnails"]
	Generating []string `json:"generating"`

	TotalAssets int64 `json:"totalAssets"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	_, watching := h.watcher.Watching()

	total, err := h.db.CountAssets(r.Context(), "all")
	if err != nil {
		total = -1
	}

	generating := h.coordinator.Active()
	if generating == nil {
		generating = []string{}
	}

	writeJSON(w, HealthResponse{
		Status:       statusHealthy,
		Version:      startup.Version,
		Uptime:       time.Since(h.startedAt).Round(time.Second).String(),
		Scanning:     h.scanner.Running(),
		Watching:     watching,
		Generating:   generating,
		TotalAssets:  total,
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	})
}

// GetVersion returns build information
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, startup.GetBuildInfo())
}
