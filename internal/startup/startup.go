package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"imgview/internal/logging"
	"imgview/internal/memory"
	"imgview/internal/thumbstore"
	"imgview/internal/workers"

	"github.com/gorilla/mux"
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

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Config holds all application configuration
type Config struct {
	DataDir     string
	StorePath   string
	Workers     int
	Recursive   bool
	MetricsAddr string
	VipsEnabled bool
	Memory      memory.ConfigResult
}

// MetricsEnabled reports whether the status server should run.
func (c *Config) MetricsEnabled() bool {
	return c.MetricsAddr != ""
}

// LoadConfig loads and validates configuration from environment variables.
// It creates the data directory and checks that it is writable, since the
// thumbnail store cannot work without it.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	dataDir := getEnv("IMGVIEW_DATA_DIR", "")
	recursive := getEnvBool("IMGVIEW_RECURSIVE", false)
	metricsAddr := getEnv("METRICS_ADDR", "")
	vipsEnabled := getEnvBool("VIPS_ENABLED", false)
	numWorkers := workers.ForCPU(0)

	if dataDir == "" {
		base, err := thumbstore.DataDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve data directory: %w", err)
		}
		dataDir = filepath.Join(base, thumbstore.AppDir)
	}

	dataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	logging.Info("  IMGVIEW_DATA_DIR:    %s", dataDir)
	logging.Info("  IMGVIEW_WORKERS:     %d", numWorkers)
	logging.Info("  IMGVIEW_RECURSIVE:   %v", recursive)
	logging.Info("  METRICS_ADDR:        %s", displayAddr(metricsAddr))
	logging.Info("  VIPS_ENABLED:        %v", vipsEnabled)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())

	if err := ensureDirectory(dataDir); err != nil {
		return nil, fmt.Errorf("data directory error: %w", err)
	}
	if err := testWriteAccess(dataDir); err != nil {
		return nil, fmt.Errorf("data directory is not writable (required for the thumbnail store): %w", err)
	}
	logging.Debug("  [OK] Data directory is writable")

	return &Config{
		DataDir:     dataDir,
		StorePath:   filepath.Join(dataDir, thumbstore.FileName),
		Workers:     numWorkers,
		Recursive:   recursive,
		MetricsAddr: metricsAddr,
		VipsEnabled: vipsEnabled,
		Memory:      memory.ConfigureFromEnv(),
	}, nil
}

func displayAddr(addr string) string {
	if addr == "" {
		return "(disabled)"
	}
	return addr
}

// LogStoreInit logs thumbnail store initialization.
func LogStoreInit(path string, duration time.Duration, stats thumbstore.Stats) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("THUMBNAIL STORE")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Path:       %s", path)
	logging.Info("  Thumbnails: %d (%s)", stats.Rows, formatBytes(stats.Bytes))
	logging.Info("  [OK] Opened in %v", duration)
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogStatusServer logs where the status endpoints are served.
func LogStatusServer(router *mux.Router, addr string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("STATUS SERVER")
	logging.Info("------------------------------------------------------------")

	routes, err := GetRoutes(router)
	if err != nil {
		logging.Warn("error walking routes: %v", err)
	}
	for _, route := range routes {
		logging.Info("  %-6s http://%s%s", route.Method, addr, route.Path)
	}
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(reason string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (%s)", reason)
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
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
    _
   (_)___ ___  ____ __   __(_)__ _      __
  / / __ '__ \/ __ '/ | / / / _ \ | /| / /
 / / / / / / / /_/ /| |/ / /  __/ |/ |/ /
/_/_/ /_/ /_/\__, / |___/_/\___/|__/|__/
            /____/
------------------------------------------------------------`
	fmt.Fprintln(os.Stderr, banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
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
		logging.Info("  (CPU limit detected)")
	}
	logging.Info("")
}

func ensureDirectory(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("  Creating directory: %s", path)
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s exists but is not a directory", path)
	}
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
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
