package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"media-library/internal/logging"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// Config holds all application configuration
type Config struct {
	DataDir         string
	Port            string
	MetricsEnabled  bool
	LogHealthChecks bool

	// Derived paths
	DatabasePath string
	ThumbnailDir string
}

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	dataDir := getEnv("DATA_DIR", "/data")
	port := getEnv("PORT", "8080")
	metricsEnabled := getEnvBool("METRICS_ENABLED", true)
	logHealthChecks := getEnvBool("LOG_HEALTH_CHECKS", false)

	logging.Info("  DATA_DIR:          %s", dataDir)
	logging.Info("  PORT:              %s", port)
	logging.Info("  METRICS_ENABLED:   %v", metricsEnabled)
	logging.Info("  LOG_HEALTH_CHECKS: %v", logHealthChecks)
	logging.Info("  LOG_LEVEL:         %s", logging.GetLevel())

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DISK SETUP")
	logging.Info("------------------------------------------------------------")

	dataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	logging.Info("  Data directory (absolute): %s", dataDir)

	config := &Config{
		DataDir:         dataDir,
		Port:            port,
		MetricsEnabled:  metricsEnabled,
		LogHealthChecks: logHealthChecks,
		DatabasePath:    filepath.Join(dataDir, "library.db"),
		ThumbnailDir:    filepath.Join(dataDir, "thumbnails"),
	}

	// The catalog and the thumbnails both live under the data directory,
	// so it must exist and be writable.
	if err := ensureDirectory(dataDir, "data"); err != nil {
		return nil, fmt.Errorf("data directory error: %w", err)
	}
	if err := testWriteAccess(dataDir); err != nil {
		return nil, fmt.Errorf("data directory is not writable: %w", err)
	}
	logging.Info("  [OK] Data directory is writable")

	if err := ensureDirectory(config.ThumbnailDir, "thumbnails"); err != nil {
		return nil, fmt.Errorf("thumbnail directory error: %w", err)
	}

	return config, nil
}

// LogCatalogInit logs catalog initialization
func LogCatalogInit(duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("CATALOG INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Catalog initialized in %v", duration)
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
}

// GetRoutes walks the router and collects all registered routes
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return nil
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{Method: method, Path: pathTemplate})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	routes, err := GetRoutes(router)
	if err != nil {
		logging.Warn("error walking routes: %v", err)
	}

	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path != routes[j].Path {
			return routes[i].Path < routes[j].Path
		}
		return routes[i].Method < routes[j].Method
	})

	logging.Info("  Registered routes (%d total):", len(routes))
	for _, route := range routes {
		logging.Info("    %-6s %s", route.Method, route.Path)
	}
}

// LogServerStarted logs successful server start with endpoint information
func LogServerStarted(port string, metricsEnabled bool, startupDuration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time: %v", startupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Application: http://0.0.0.0:%s", port)
	if metricsEnabled {
		logging.Info("    Metrics:     http://0.0.0.0:%s/metrics", port)
	} else {
		logging.Info("    Metrics:     DISABLED")
	}
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...any) {
	logging.Fatal(format, args...)
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
    __  ___         ___         __    _ __
   /  |/  /__  ____/ (_)___ _  / /   (_) /_  _________ ________  __
  / /|_/ / _ \/ __  / / __ '/ / /   / / __ \/ ___/ __ '/ ___/ / / /
 / /  / /  __/ /_/ / / /_/ / / /___/ / /_/ / /  / /_/ / /  / /_/ /
/_/  /_/\___/\__,_/_/\__,_/ /_____/_/_.___/_/   \__,_/_/   \__, /
                                                          /____/
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
		// Write access was confirmed regardless.
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
