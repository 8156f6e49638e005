package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"photo-gallery/internal/catalog"
	"photo-gallery/internal/filesystem"
	"photo-gallery/internal/handlers"
	"photo-gallery/internal/imagecache"
	"photo-gallery/internal/location"
	"photo-gallery/internal/logging"
	"photo-gallery/internal/memory"
	"photo-gallery/internal/metrics"
	"photo-gallery/internal/middleware"
	"photo-gallery/internal/startup"
	"photo-gallery/internal/transcoder"

	"github.com/gorilla/mux"
)

func main() {
	startTime := time.Now()

	startup.LoadDotEnv()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	memory.ConfigureFromEnv()
	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()

	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(config.Volumes()))
	filesystem.SetObserver(metrics.NewFilesystemObserver())
	metrics.InitializeMetrics()
	metrics.SetAppInfo(startup.Version, startup.Commit, runtime.Version())

	// Initialize transcoder
	trans, err := transcoder.New(config.Transcoder, config.StagingDir)
	if err != nil {
		startup.LogFatal("Failed to initialize transcoder: %v", err)
	}
	if monitor.Enabled() {
		trans = transcoder.Throttle(trans, monitor)
	}
	startup.LogTranscoderInit(trans.Name())

	// Initialize image cache
	cacheStart := time.Now()
	cache, err := imagecache.New(imagecache.Options{
		Dir:        config.DataDir,
		Transcoder: trans,
		Config:     config.CacheConfig(),
		KeyMode:    config.CacheKeyMode,
	})
	if err != nil {
		startup.LogFatal("Failed to initialize image cache: %v", err)
	}
	startup.LogCacheInit(cache.Stats(context.Background()), cache.KeyMode(), time.Since(cacheStart))

	// Initialize catalog
	var resolver location.Resolver = location.None{}
	if config.Location != nil {
		resolver = location.NewStatic(config.Location.Latitude, config.Location.Longitude, config.Location.Address)
	}
	cat, err := catalog.New(catalog.Options{
		Dir:        config.DataDir,
		Transcoder: trans,
		Cache:      cache,
		Location:   resolver,
	})
	if err != nil {
		startup.LogFatal("Failed to initialize catalog: %v", err)
	}
	startup.LogCatalogInit(cat.Len())

	collector := metrics.NewCollector(&statsProvider{cache: cache, catalog: cat}, config.StatsInterval)
	collector.Start()

	// Initialize handlers
	h := handlers.New(cat, cache, config)

	// Setup router
	router := setupRouter(h)

	// Log routes dynamically
	startup.LogHTTPRoutes(router, config.LogStaticFiles, config.LogHealthChecks)

	// Apply logging middleware
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogImageRequests = config.LogStaticFiles
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	loggedHandler := middleware.Logger(loggingConfig)(router)

	// Apply compression middleware
	handler := middleware.Compression(middleware.DefaultCompressionConfig())(loggedHandler)

	// Create server
	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", h.MetricsHandler())
		metricsSrv = &http.Server{
			Addr:              ":" + config.MetricsPort,
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	// Start graceful shutdown handler
	done := make(chan struct{})
	go handleShutdown(srv, metricsSrv, collector, monitor, cache, done)

	h.SetReady(true)
	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}
	<-done
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	h.Routes(r)
	return r
}

// statsProvider feeds the periodic metrics collector.
type statsProvider struct {
	cache   *imagecache.Cache
	catalog *catalog.Catalog
}

func (p *statsProvider) GetStats(ctx context.Context) metrics.Stats {
	s := p.cache.Stats(ctx)
	return metrics.Stats{
		CacheEntries:   s.Count,
		CacheSizeBytes: s.SizeBytes,
		Photos:         p.catalog.Len(),
	}
}

func handleShutdown(srv, metricsSrv *http.Server, collector *metrics.Collector, monitor *memory.Monitor, cache *imagecache.Cache, done chan<- struct{}) {
	defer close(done)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownStep("Stopping metrics collector")
	collector.Stop()
	startup.LogShutdownStepComplete("Metrics collector stopped")

	startup.LogShutdownStep("Waiting for running derivations")
	if err := stopImagePipeline(ctx, cache, transcoder.ShutdownVips); err != nil {
		logging.Warn("Image pipeline did not stop cleanly, leaving libvips running: %v", err)
	} else {
		startup.LogShutdownStepComplete("Image cache closed and image backend stopped")
	}

	monitor.Stop()

	startup.LogShutdownComplete()
}

// stopImagePipeline closes the cache, which waits for derivations that
// outlived their requests, and only then shuts the image backend down.
func stopImagePipeline(ctx context.Context, cache *imagecache.Cache, shutdownBackend func()) error {
	if err := cache.Close(ctx); err != nil {
		return err
	}
	shutdownBackend()
	return nil
}
