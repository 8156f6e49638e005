package startup

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"photo-gallery/internal/imagecache"

	"github.com/gorilla/mux"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	if info.Version == "" {
		t.Error("Expected Version to be set")
	}
	if info.OS == "" || info.Arch == "" {
		t.Error("Expected OS and Arch to be set")
	}
	if info.GoVersion != GoVersion {
		t.Errorf("Expected GoVersion=%s, got %s", GoVersion, info.GoVersion)
	}
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DATA_DIR", "PORT", "METRICS_PORT", "METRICS_ENABLED", "THUMBNAIL_WIDTH", "THUMBNAIL_HEIGHT",
		"COMPRESSION_QUALITY", "MAX_CACHE_SIZE_MB", "CACHE_KEY_MODE", "TRANSCODER",
		"LOCATION_LATITUDE", "LOCATION_LONGITUDE", "LOCATION_ADDRESS", "STATS_INTERVAL",
		"LOG_STATIC_FILES", "LOG_HEALTH_CHECKS",
	} {
		t.Setenv(key, "")
	}
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() error = %v", err)
	}

	if !filepath.IsAbs(cfg.DataDir) || filepath.Base(cfg.DataDir) != "data" {
		t.Errorf("DataDir = %s", cfg.DataDir)
	}
	if cfg.Port != "8080" || cfg.MetricsPort != "9090" || !cfg.MetricsEnabled {
		t.Errorf("ports = %s/%s enabled=%v", cfg.Port, cfg.MetricsPort, cfg.MetricsEnabled)
	}
	if cfg.CacheConfig() != imagecache.DefaultConfig() {
		t.Errorf("CacheConfig() = %+v, want defaults", cfg.CacheConfig())
	}
	if cfg.CacheKeyMode != imagecache.KeyModeSegment || cfg.Transcoder != "auto" {
		t.Errorf("key mode %s, transcoder %s", cfg.CacheKeyMode, cfg.Transcoder)
	}
	if cfg.Location != nil {
		t.Errorf("Location = %+v, want nil", cfg.Location)
	}
	if cfg.StatsInterval != time.Minute {
		t.Errorf("StatsInterval = %v", cfg.StatsInterval)
	}
	if cfg.ThumbnailDir != filepath.Join(cfg.DataDir, "thumbnails") || cfg.StagingDir != filepath.Join(cfg.DataDir, ".staging") {
		t.Errorf("derived dirs = %s, %s", cfg.ThumbnailDir, cfg.StagingDir)
	}
}

func TestConfigFromEnv_Overrides(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)
	t.Setenv("THUMBNAIL_WIDTH", "150")
	t.Setenv("THUMBNAIL_HEIGHT", "100")
	t.Setenv("COMPRESSION_QUALITY", "0.6")
	t.Setenv("MAX_CACHE_SIZE_MB", "12.5")
	t.Setenv("CACHE_KEY_MODE", "hash")
	t.Setenv("TRANSCODER", "Imaging")
	t.Setenv("LOCATION_LATITUDE", "-23.5")
	t.Setenv("LOCATION_LONGITUDE", "-46.6")
	t.Setenv("LOCATION_ADDRESS", "São Paulo")
	t.Setenv("STATS_INTERVAL", "15s")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() error = %v", err)
	}

	want := imagecache.Config{ThumbnailSize: imagecache.Size{Width: 150, Height: 100}, CompressionQuality: 0.6, MaxCacheSize: 12.5}
	if cfg.CacheConfig() != want {
		t.Errorf("CacheConfig() = %+v, want %+v", cfg.CacheConfig(), want)
	}
	if cfg.CacheKeyMode != imagecache.KeyModeHash || cfg.Transcoder != "imaging" {
		t.Errorf("key mode %s, transcoder %s", cfg.CacheKeyMode, cfg.Transcoder)
	}
	if cfg.Location == nil || *cfg.Location != (LocationConfig{Latitude: -23.5, Longitude: -46.6, Address: "São Paulo"}) {
		t.Errorf("Location = %+v", cfg.Location)
	}
	if cfg.StatsInterval != 15*time.Second {
		t.Errorf("StatsInterval = %v", cfg.StatsInterval)
	}
	if cfg.Volumes()["photos"] != filepath.Join(dir, "photos") {
		t.Errorf("Volumes() = %v", cfg.Volumes())
	}
}

func TestConfigFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"quality above one", "COMPRESSION_QUALITY", "1.5"},
		{"zero thumbnail", "THUMBNAIL_WIDTH", "0"},
		{"unknown key mode", "CACHE_KEY_MODE", "md5"},
		{"unknown transcoder", "TRANSCODER", "ffmpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv(tt.key, tt.value)
			if _, err := ConfigFromEnv(); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestLocationFromEnv_Invalid(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("LOCATION_LATITUDE", "north")
	t.Setenv("LOCATION_LONGITUDE", "10")
	if loc := locationFromEnv(); loc != nil {
		t.Errorf("locationFromEnv() = %+v, want nil", loc)
	}

	t.Setenv("LOCATION_LATITUDE", "95")
	if loc := locationFromEnv(); loc != nil {
		t.Errorf("out of range latitude accepted: %+v", loc)
	}
}

func TestLoadConfig_CreatesDirectories(t *testing.T) {
	clearConfigEnv(t)
	dir := filepath.Join(t.TempDir(), "gallery")
	t.Setenv("DATA_DIR", dir)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	for _, d := range []string{cfg.DataDir, cfg.ThumbnailDir, cfg.CompressedDir, cfg.PhotosDir, cfg.StagingDir} {
		if info, err := os.Stat(d); err != nil || !info.IsDir() {
			t.Errorf("%s not created: %v", d, err)
		}
	}
}

func TestLoadConfig_DataDirIsFile(t *testing.T) {
	clearConfigEnv(t)
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DATA_DIR", file)

	if _, err := LoadConfig(); err == nil {
		t.Error("expected error when DATA_DIR is a file")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	if err := os.WriteFile(envFile, []byte("GALLERY_TEST_FROM_FILE=loaded\nGALLERY_TEST_PRESET=file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ENV_FILE", envFile)
	t.Setenv("GALLERY_TEST_PRESET", "env")
	t.Setenv("GALLERY_TEST_FROM_FILE", "")
	os.Unsetenv("GALLERY_TEST_FROM_FILE")

	LoadDotEnv()

	if got := os.Getenv("GALLERY_TEST_FROM_FILE"); got != "loaded" {
		t.Errorf("GALLERY_TEST_FROM_FILE = %q, want loaded", got)
	}
	if got := os.Getenv("GALLERY_TEST_PRESET"); got != "env" {
		t.Errorf("GALLERY_TEST_PRESET = %q, existing env must win", got)
	}

	t.Setenv("ENV_FILE", filepath.Join(dir, "missing.env"))
	LoadDotEnv()
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("GALLERY_INT", "42")
	t.Setenv("GALLERY_BAD_INT", "forty")
	t.Setenv("GALLERY_FLOAT", "0.25")
	t.Setenv("GALLERY_BOOL", "0")
	t.Setenv("GALLERY_DUR", "-1s")

	if got := getEnvInt("GALLERY_INT", 1); got != 42 {
		t.Errorf("getEnvInt = %d", got)
	}
	if got := getEnvInt("GALLERY_BAD_INT", 7); got != 7 {
		t.Errorf("getEnvInt(bad) = %d, want default", got)
	}
	if got := getEnvFloat("GALLERY_FLOAT", 1); got != 0.25 {
		t.Errorf("getEnvFloat = %v", got)
	}
	if getEnvBool("GALLERY_BOOL", true) {
		t.Error("getEnvBool(\"0\") = true")
	}
	if got := getEnvDuration("GALLERY_DUR", time.Second); got != time.Second {
		t.Errorf("getEnvDuration(negative) = %v, want default", got)
	}
	if got := getEnv("GALLERY_UNSET_VAR", "default"); got != "default" {
		t.Errorf("getEnv = %q", got)
	}
}

func TestGetRoutesAndGroups(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/photos", func(http.ResponseWriter, *http.Request) {}).Methods("GET", "POST")
	r.HandleFunc("/health", func(http.ResponseWriter, *http.Request) {})

	routes, err := GetRoutes(r)
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 3 {
		t.Fatalf("len(routes) = %d, want 3", len(routes))
	}
	if routes[2].Method != "*" {
		t.Errorf("route without methods = %+v", routes[2])
	}

	for path, want := range map[string]string{
		"/api/photos/{id}": "api/photos",
		"/api":             "api",
		"/health":          "health",
		"/":                "",
	} {
		if got := getRouteGroup(path); got != want {
			t.Errorf("getRouteGroup(%q) = %q, want %q", path, got, want)
		}
	}
}
