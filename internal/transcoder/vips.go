package transcoder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"photo-gallery/internal/filesystem"
	"photo-gallery/internal/logging"

	"github.com/davidbyttow/govips/v2/vips"
)

var (
	vipsInitialized bool
	vipsInitMutex   sync.Mutex
	vipsAvailable   bool
)

// InitVips initializes the libvips library. It should be called once at
// startup; later calls are no-ops.
func InitVips() (err error) {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		return nil
	}

	// govips panics when the shared library is missing or too old.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("libvips startup failed: %v", r)
		}
	}()

	vips.LoggingSettings(vipsLogHandler(logging.GetLevel()))

	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      50 * 1024 * 1024,
		MaxCacheSize:     100,
		ReportLeaks:      false,
		CacheTrace:       false,
		CollectStats:     false,
	})

	vipsInitialized = true
	vipsAvailable = true
	logging.Info("libvips initialized successfully (version: %s)", vips.Version)
	return nil
}

// vipsLogHandler routes libvips messages through our logger and picks the
// verbosity libvips itself should emit at, based on the application level.
// libvips does the filtering; the handler only maps severities.
func vipsLogHandler(level logging.LogLevel) (func(string, vips.LogLevel, string), vips.LogLevel) {
	handler := func(domain string, lvl vips.LogLevel, msg string) {
		switch lvl {
		case vips.LogLevelError, vips.LogLevelCritical:
			logging.Error("[%s] %s", domain, msg)
		case vips.LogLevelWarning:
			logging.Warn("[%s] %s", domain, msg)
		default:
			logging.Debug("[%s] %s", domain, msg)
		}
	}

	switch level {
	case logging.LevelDebug:
		return handler, vips.LogLevelInfo
	case logging.LevelWarn:
		return handler, vips.LogLevelError
	case logging.LevelError:
		return handler, vips.LogLevelCritical
	default:
		return handler, vips.LogLevelWarning
	}
}

// ShutdownVips cleans up libvips resources
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
		vipsAvailable = false
		logging.Info("libvips shutdown complete")
	}
}

// IsVipsAvailable returns whether libvips is initialized and available
func IsVipsAvailable() bool {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()
	return vipsAvailable
}

// Vips transcodes with libvips, which shrinks during decode and keeps
// memory flat for large camera files.
type Vips struct {
	stagingDir string
}

// NewVips returns a libvips backend writing into stagingDir. InitVips must
// have succeeded first.
func NewVips(stagingDir string) *Vips {
	return &Vips{stagingDir: stagingDir}
}

// Name implements Transcoder.
func (t *Vips) Name() string { return BackendVips }

// Transcode implements Transcoder.
func (t *Vips) Transcode(ctx context.Context, sourceURI string, resize Resize, opts Options) (*Result, error) {
	if !IsVipsAvailable() {
		return nil, fmt.Errorf("libvips not available")
	}
	if err := validate(resize); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filesystem.PathFromURI(sourceURI)
	if _, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig()); err != nil {
		return nil, fmt.Errorf("source not readable: %w", err)
	}

	ref, err := vips.LoadImageFromFile(path, vips.NewImportParams())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	defer ref.Close()

	if err := ref.AutoRotate(); err != nil {
		return nil, fmt.Errorf("vips autorotate failed: %w", err)
	}

	origWidth, origHeight := ref.Width(), ref.Height()
	logging.Debug("Vips loaded %s: %dx%d, %s to %dx%d",
		filepath.Base(path), origWidth, origHeight, resize.Mode, resize.Width, resize.Height)

	switch resize.Mode {
	case ModeFill:
		err = ref.Thumbnail(resize.Width, resize.Height, vips.InterestingCentre)
	default:
		w, h := fitWithin(origWidth, origHeight, resize.Width, resize.Height)
		if w != origWidth || h != origHeight {
			err = ref.Thumbnail(w, h, vips.InterestingNone)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("vips resize failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	outFormat := opts.Format
	if outFormat == "" {
		outFormat = FormatJPEG
	}

	var data []byte
	if outFormat == FormatPNG {
		data, _, err = ref.ExportPng(vips.NewPngExportParams())
	} else {
		params := vips.NewJpegExportParams()
		params.Quality = jpegQuality(opts.Quality)
		params.StripMetadata = true
		params.OptimizeCoding = true
		data, _, err = ref.ExportJpeg(params)
	}
	if err != nil {
		return nil, fmt.Errorf("vips export failed: %w", err)
	}

	dest := stagingPath(t.stagingDir, outFormat)
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		_ = os.Remove(dest)
		return nil, fmt.Errorf("failed to write output: %w", err)
	}

	return &Result{URI: dest, Width: ref.Width(), Height: ref.Height()}, nil
}
