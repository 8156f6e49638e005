// Package main provides the entry point for the Photo Gallery server.
//
// The server keeps a catalog of photos in a private data directory and
// serves each photo together with two derived images: a small thumbnail
// and a bounded compressed variant. Derived images are produced on demand
// by the image cache, which persists an index so they survive restarts and
// evicts the oldest entries when the configured size budget is exceeded.
//
// # Application Lifecycle
//
//  1. Configuration Loading: Reads .env and environment variables, creates
//     the data, cache, photos and staging directories
//  2. Metrics Setup: Registers filesystem volumes and pre-populates labels
//  3. Component Initialization:
//     - Transcoder: libvips when available, pure-Go imaging otherwise
//     - Image Cache: Loads the index, dropping entries whose files are gone
//     - Catalog: Loads photo metadata and the optional fixed location
//     - Metrics Collector: Publishes cache and catalog gauges periodically
//  4. HTTP Server Setup: Routes, metrics, logging and compression middleware
//  5. Graceful Shutdown: Handles SIGINT/SIGTERM, stops servers and libvips
//
// # HTTP Server
//
// The application runs two HTTP servers:
//
//  1. Main Server (default port 8080):
//     - /api/photos for listing, uploading, renaming and deleting photos
//     - /api/photos/{id}/thumbnail and /compressed, derived on first use
//     - /api/cache for stats, inspection, configuration, warm, clear, prune
//     - /health, /livez, /readyz and /version
//
//  2. Metrics Server (default port 9090, optional):
//     - Prometheus metrics endpoint (/metrics)
//
// # Environment Variables
//
//	DATA_DIR              Data directory (default: ./data)
//	PORT                  API port (default: 8080)
//	METRICS_PORT          Metrics port (default: 9090)
//	METRICS_ENABLED       Serve /metrics (default: true)
//	THUMBNAIL_WIDTH       Thumbnail width (default: 300)
//	THUMBNAIL_HEIGHT      Thumbnail height (default: 300)
//	COMPRESSION_QUALITY   Compressed variant quality 0-1 (default: 0.8)
//	MAX_CACHE_SIZE_MB     Eviction budget (default: 100)
//	CACHE_KEY_MODE        segment or hash (default: segment)
//	TRANSCODER            auto, vips or imaging (default: auto)
//	LOCATION_LATITUDE     Fixed device latitude
//	LOCATION_LONGITUDE    Fixed device longitude
//	LOCATION_ADDRESS      Address recorded with the fixed location
//	STATS_INTERVAL        Metrics collector interval (default: 1m)
//	LOG_LEVEL             debug, info, warn or error (default: info)
//	LOG_STATIC_FILES      Log image requests (default: false)
//	LOG_HEALTH_CHECKS     Log probe requests (default: true)
//	ENV_FILE              Optional env file (default: .env)
package main
