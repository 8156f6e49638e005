// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// All configuration is loaded from environment variables via [LoadConfig],
// optionally seeded from a .env file by [LoadDotEnv]:
//
//   - DATA_DIR: Data directory holding photos, derived images and indexes (default: ./data)
//   - PORT: HTTP server port (default: 8080)
//   - METRICS_PORT: Prometheus metrics server port (default: 9090)
//   - METRICS_ENABLED: Enable or disable metrics server (default: true)
//   - THUMBNAIL_WIDTH, THUMBNAIL_HEIGHT: Thumbnail target in pixels (default: 300x300)
//   - COMPRESSION_QUALITY: Quality of the compressed variant, 0-1 (default: 0.8)
//   - MAX_CACHE_SIZE_MB: Eviction budget for derived images (default: 100)
//   - CACHE_KEY_MODE: segment or hash (default: segment)
//   - TRANSCODER: auto, vips or imaging (default: auto)
//   - LOCATION_LATITUDE, LOCATION_LONGITUDE, LOCATION_ADDRESS: Fixed device position (default: none)
//   - STATS_INTERVAL: Metrics collection interval as Go duration (default: 1m)
//   - LOG_LEVEL: Logging level - debug, info, warn, error (default: info)
//   - LOG_STATIC_FILES: Log image file requests (default: false)
//   - LOG_HEALTH_CHECKS: Log health check requests (default: true)
//   - ENV_FILE: Path of the optional env file (default: .env)
//
// # Directory Setup
//
// The data directory must be writable. The thumbnails, compressed, photos
// and .staging subdirectories are created if missing.
package startup
