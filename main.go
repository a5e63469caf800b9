package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"media-library/internal/artifact"
	"media-library/internal/database"
	"media-library/internal/events"
	"media-library/internal/handlers"
	"media-library/internal/logging"
	"media-library/internal/middleware"
	"media-library/internal/scanner"
	"media-library/internal/startup"
	"media-library/internal/watcher"
)

func main() {
	startTime := time.Now()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	// Initialize catalog
	dbStart := time.Now()
	db, err := database.New(context.Background(), config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to initialize catalog: %v", err)
	}
	defer db.Close()
	startup.LogCatalogInit(time.Since(dbStart))

	// Event bus connects the pipeline to the SSE stream
	bus := events.NewBus()

	// Pipeline components
	scan := scanner.New(db, bus)
	watch := watcher.New(db, bus)
	coordinator := artifact.NewCoordinator(db, bus, config.ThumbnailDir)

	// Setup router
	h := handlers.New(db, scan, watch, coordinator, bus)
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	if config.MetricsEnabled {
		router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	startup.LogHTTPRoutes(router)

	// Apply metrics and logging middleware
	metered := middleware.Metrics(middleware.DefaultMetricsConfig())(router)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.Logger(loggingConfig)(metered)

	// WriteTimeout stays 0: /api/events is a long-lived stream.
	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go handleShutdown(srv, watch, coordinator, bus)

	startup.LogServerStarted(config.Port, config.MetricsEnabled, time.Since(startTime))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}
}

func handleShutdown(srv *http.Server, watch *watcher.Watcher, coordinator *artifact.Coordinator, bus *events.Bus) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Stopping folder watch")
	watch.Stop()
	startup.LogShutdownStepComplete("Folder watch stopped")

	startup.LogShutdownStep("Cancelling artifact generation")
	coordinator.Cancel()
	startup.LogShutdownStepComplete("Artifact generation cancelled")

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownStep("Closing event bus")
	if err := bus.Close(); err != nil {
		logging.Warn("Event bus close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Event bus closed")
	}

	startup.LogShutdownComplete()
}
