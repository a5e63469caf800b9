package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"media-library/internal/artifact"
	"media-library/internal/database"
	"media-library/internal/events"
	"media-library/internal/scanner"
	"media-library/internal/watcher"
)

type Handlers struct {
	db          *database.Database
	scanner     *scanner.Scanner
	watcher     *watcher.Watcher
	coordinator *artifact.Coordinator
	bus         *events.Bus
	startedAt   time.Time
}

func New(db *database.Database, s *scanner.Scanner, w *watcher.Watcher, c *artifact.Coordinator, bus *events.Bus) *Handlers {
	return &Handlers{
		db:          db,
		scanner:     s,
		watcher:     w,
		coordinator: c,
		bus:         bus,
		startedAt:   time.Now(),
	}
}

// RegisterRoutes attaches every endpoint to the router.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	library := api.PathPrefix("/library").Subrouter()
	library.HandleFunc("/scan", h.StartScan).Methods(http.MethodPost)
	library.HandleFunc("/watch", h.StartWatch).Methods(http.MethodPost)
	library.HandleFunc("/watch/stop", h.StopWatch).Methods(http.MethodPost)
	library.HandleFunc("/clear", h.ClearLibrary).Methods(http.MethodPost)

	api.HandleFunc("/assets", h.ListAssets).Methods(http.MethodGet)
	api.HandleFunc("/assets/count", h.CountAssets).Methods(http.MethodGet)
	api.HandleFunc("/files", h.DeleteFile).Methods(http.MethodDelete)

	artifacts := api.PathPrefix("/artifacts").Subrouter()
	artifacts.HandleFunc("/thumbnails", h.GenerateThumbnails).Methods(http.MethodPost)
	artifacts.HandleFunc("/waveforms", h.GenerateWaveforms).Methods(http.MethodPost)
	artifacts.HandleFunc("/cancel", h.CancelGeneration).Methods(http.MethodPost)

	api.HandleFunc("/events", h.StreamEvents).Methods(http.MethodGet)
}
