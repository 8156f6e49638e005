package startup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"photo-gallery/internal/imagecache"
	"photo-gallery/internal/logging"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
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

// LocationConfig is a fixed device position.
type LocationConfig struct {
	Latitude  float64
	Longitude float64
	Address   string
}

// Config holds all application configuration
type Config struct {
	DataDir         string
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	LogStaticFiles  bool
	LogHealthChecks bool
	StatsInterval   time.Duration

	ThumbnailWidth     int
	ThumbnailHeight    int
	CompressionQuality float64
	MaxCacheSizeMB     float64
	CacheKeyMode       imagecache.KeyMode
	Transcoder         string

	// Location is nil when no position is configured.
	Location *LocationConfig

	// Derived paths
	ThumbnailDir  string
	CompressedDir string
	PhotosDir     string
	StagingDir    string
}

// CacheConfig returns the image cache settings.
func (c *Config) CacheConfig() imagecache.Config {
	return imagecache.Config{
		ThumbnailSize:      imagecache.Size{Width: c.ThumbnailWidth, Height: c.ThumbnailHeight},
		CompressionQuality: c.CompressionQuality,
		MaxCacheSize:       c.MaxCacheSizeMB,
	}
}

// Volumes maps metric volume labels to their directories.
func (c *Config) Volumes() map[string]string {
	return map[string]string{
		"data":       c.DataDir,
		"thumbnails": c.ThumbnailDir,
		"compressed": c.CompressedDir,
		"photos":     c.PhotosDir,
		"staging":    c.StagingDir,
	}
}

// LoadDotEnv loads variables from the file named by ENV_FILE (default
// ".env") if it exists. Variables already set in the environment win.
func LoadDotEnv() {
	path := getEnv("ENV_FILE", ".env")
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.Warn("cannot read env file %s: %v", path, err)
		}
		return
	}
	if err := godotenv.Load(path); err != nil {
		logging.Warn("failed to load env file %s: %v", path, err)
		return
	}
	logging.Info("Loaded environment from %s", path)
}

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	config, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}

	logging.Info("  DATA_DIR:            %s", config.DataDir)
	logging.Info("  PORT:                %s", config.Port)
	logging.Info("  METRICS_PORT:        %s", config.MetricsPort)
	logging.Info("  METRICS_ENABLED:     %v", config.MetricsEnabled)
	logging.Info("  THUMBNAIL SIZE:      %dx%d", config.ThumbnailWidth, config.ThumbnailHeight)
	logging.Info("  COMPRESSION_QUALITY: %.2f", config.CompressionQuality)
	logging.Info("  MAX_CACHE_SIZE_MB:   %.1f", config.MaxCacheSizeMB)
	logging.Info("  CACHE_KEY_MODE:      %s", config.CacheKeyMode)
	logging.Info("  TRANSCODER:          %s", config.Transcoder)
	logging.Info("  STATS_INTERVAL:      %s", config.StatsInterval)
	if config.Location != nil {
		logging.Info("  LOCATION:            %.5f, %.5f %s", config.Location.Latitude, config.Location.Longitude, config.Location.Address)
	} else {
		logging.Info("  LOCATION:            none")
	}
	logging.Info("  LOG_STATIC_FILES:    %v", config.LogStaticFiles)
	logging.Info("  LOG_HEALTH_CHECKS:   %v", config.LogHealthChecks)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Data directory (absolute): %s", config.DataDir)

	if err := ensureDirectory(config.DataDir, "data"); err != nil {
		return nil, fmt.Errorf("data directory error: %w", err)
	}
	logging.Debug("  Testing data directory write access...")
	if err := testWriteAccess(config.DataDir); err != nil {
		return nil, fmt.Errorf("data directory is not writable: %w", err)
	}
	logging.Info("  [OK] Data directory is writable")

	for name, dir := range map[string]string{
		"thumbnails": config.ThumbnailDir,
		"compressed": config.CompressedDir,
		"photos":     config.PhotosDir,
		"staging":    config.StagingDir,
	} {
		if err := ensureDirectory(dir, name); err != nil {
			return nil, fmt.Errorf("%s directory error: %w", name, err)
		}
	}

	return config, nil
}

// ConfigFromEnv reads and validates the environment without touching the
// filesystem.
func ConfigFromEnv() (*Config, error) {
	dataDir, err := filepath.Abs(getEnv("DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	keyMode, err := imagecache.ParseKeyMode(getEnv("CACHE_KEY_MODE", string(imagecache.KeyModeSegment)))
	if err != nil {
		return nil, err
	}

	config := &Config{
		DataDir:            dataDir,
		Port:               getEnv("PORT", "8080"),
		MetricsPort:        getEnv("METRICS_PORT", "9090"),
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),
		LogStaticFiles:     getEnvBool("LOG_STATIC_FILES", false),
		LogHealthChecks:    getEnvBool("LOG_HEALTH_CHECKS", true),
		StatsInterval:      getEnvDuration("STATS_INTERVAL", time.Minute),
		ThumbnailWidth:     getEnvInt("THUMBNAIL_WIDTH", 300),
		ThumbnailHeight:    getEnvInt("THUMBNAIL_HEIGHT", 300),
		CompressionQuality: getEnvFloat("COMPRESSION_QUALITY", 0.8),
		MaxCacheSizeMB:     getEnvFloat("MAX_CACHE_SIZE_MB", 100),
		CacheKeyMode:       keyMode,
		Transcoder:         strings.ToLower(getEnv("TRANSCODER", "auto")),
		Location:           locationFromEnv(),
		ThumbnailDir:       filepath.Join(dataDir, imagecache.ThumbnailsDir),
		CompressedDir:      filepath.Join(dataDir, imagecache.CompressedDir),
		PhotosDir:          filepath.Join(dataDir, "photos"),
		StagingDir:         filepath.Join(dataDir, ".staging"),
	}

	if err := config.CacheConfig().Validate(); err != nil {
		return nil, err
	}
	switch config.Transcoder {
	case "auto", "vips", "imaging":
	default:
		return nil, fmt.Errorf("unknown TRANSCODER %q (want auto, vips or imaging)", config.Transcoder)
	}
	return config, nil
}

func locationFromEnv() *LocationConfig {
	latStr, lonStr := os.Getenv("LOCATION_LATITUDE"), os.Getenv("LOCATION_LONGITUDE")
	if latStr == "" && lonStr == "" {
		return nil
	}

	lat, errLat := strconv.ParseFloat(latStr, 64)
	lon, errLon := strconv.ParseFloat(lonStr, 64)
	if errLat != nil || errLon != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		logging.Warn("  Invalid LOCATION_LATITUDE/LOCATION_LONGITUDE (%q, %q), photos will have no location", latStr, lonStr)
		return nil
	}
	return &LocationConfig{Latitude: lat, Longitude: lon, Address: os.Getenv("LOCATION_ADDRESS")}
}

// LogTranscoderInit logs the selected image backend
func LogTranscoderInit(backend string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("TRANSCODER INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Image backend: %s", backend)
}

// LogCacheInit logs the state of the image cache after loading its index
func LogCacheInit(stats imagecache.Stats, mode imagecache.KeyMode, duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("IMAGE CACHE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Key mode:  %s", mode)
	logging.Info("  Entries:   %d", stats.Count)
	logging.Info("  On disk:   %.2f MB", stats.SizeMB)
	logging.Info("  [OK] Cache index loaded in %v", duration)
}

// LogCatalogInit logs the number of photos loaded
func LogCatalogInit(photos int) {
	logging.Info("  [OK] Catalog loaded with %d photos", photos)
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

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router, logStaticFiles, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}
			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
		}
	}

	logging.Info("  HTTP logging enabled")
	if logStaticFiles {
		logging.Info("    Image file logging: ON")
	} else {
		logging.Info("    Image file logging: OFF (set LOG_STATIC_FILES=true to enable)")
	}
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    API:           http://0.0.0.0:%s/api", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
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
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
   PHOTO GALLERY  -  derived image cache
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

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
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

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		logging.Warn("Invalid number for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
