package transcoder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"photo-gallery/internal/logging"
	"photo-gallery/internal/metrics"

	"github.com/google/uuid"
)

var (
	// ErrUnsupported is returned when a source cannot be decoded by a backend.
	ErrUnsupported = errors.New("unsupported image format")
	// ErrTooLarge is returned when a source is too big to decode safely.
	ErrTooLarge = errors.New("image too large to decode")
)

// ResizeMode selects how a source is mapped onto the target box.
type ResizeMode int

const (
	// ModeFit scales the image to fit inside the box, preserving aspect
	// ratio. Images already inside the box are not enlarged.
	ModeFit ResizeMode = iota
	// ModeFill scales and centre-crops so the output is exactly the box.
	ModeFill
)

func (m ResizeMode) String() string {
	if m == ModeFill {
		return "fill"
	}
	return "fit"
}

// Resize describes the target geometry of a transcode.
type Resize struct {
	Width  int
	Height int
	Mode   ResizeMode
}

// Format is the output encoding.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

// Extension returns the file extension, including the dot, for f.
func (f Format) Extension() string {
	if f == FormatPNG {
		return ".png"
	}
	return ".jpg"
}

// Options controls the encoding step.
type Options struct {
	// Quality is the compression quality in the range 0–1.
	Quality float64
	Format  Format
}

// Result is a freshly written output file. The caller owns URI and is
// expected to move or delete it.
type Result struct {
	URI    string
	Width  int
	Height int
}

// Transcoder resizes and recompresses an image into a new file.
type Transcoder interface {
	Transcode(ctx context.Context, sourceURI string, resize Resize, opts Options) (*Result, error)
	// Name identifies the backend in logs and metrics.
	Name() string
}

// Backend names accepted by New.
const (
	BackendAuto    = "auto"
	BackendVips    = "vips"
	BackendImaging = "imaging"
)

// New returns the named backend writing its output under stagingDir. With
// BackendAuto libvips is used when it initialises, imaging otherwise.
func New(backend, stagingDir string) (Transcoder, error) {
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging dir: %w", err)
	}

	var t Transcoder
	switch strings.ToLower(backend) {
	case "", BackendAuto:
		if err := InitVips(); err == nil {
			t = NewVips(stagingDir)
		} else {
			logging.Warn("libvips unavailable (%v), falling back to imaging", err)
			t = NewImaging(stagingDir)
		}
	case BackendVips:
		if err := InitVips(); err != nil {
			return nil, fmt.Errorf("libvips backend requested: %w", err)
		}
		t = NewVips(stagingDir)
	case BackendImaging:
		t = NewImaging(stagingDir)
	default:
		return nil, fmt.Errorf("unknown transcoder backend %q", backend)
	}

	logging.Info("Image transcoder backend: %s", t.Name())
	return Instrument(t), nil
}

// Instrument wraps t so every call is counted and timed.
func Instrument(t Transcoder) Transcoder {
	if _, ok := t.(*instrumented); ok {
		return t
	}
	return &instrumented{next: t}
}

type instrumented struct {
	next Transcoder
}

func (i *instrumented) Name() string { return i.next.Name() }

func (i *instrumented) Transcode(ctx context.Context, sourceURI string, resize Resize, opts Options) (*Result, error) {
	metrics.TranscoderJobsInProgress.Inc()
	defer metrics.TranscoderJobsInProgress.Dec()

	start := time.Now()
	res, err := i.next.Transcode(ctx, sourceURI, resize, opts)
	metrics.TranscoderJobDuration.WithLabelValues(i.next.Name()).Observe(time.Since(start).Seconds())

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.TranscoderJobsTotal.WithLabelValues(i.next.Name(), status).Inc()
	return res, err
}

// Gate holds back work while a shared resource is exhausted.
type Gate interface {
	Wait(ctx context.Context) error
}

// Throttle makes every Transcode on t wait for g first.
func Throttle(t Transcoder, g Gate) Transcoder {
	return &throttled{next: t, gate: g}
}

type throttled struct {
	next Transcoder
	gate Gate
}

func (t *throttled) Name() string { return t.next.Name() }

func (t *throttled) Transcode(ctx context.Context, sourceURI string, resize Resize, opts Options) (*Result, error) {
	if err := t.gate.Wait(ctx); err != nil {
		return nil, err
	}
	return t.next.Transcode(ctx, sourceURI, resize, opts)
}

// stagingPath returns a collision-free output path in dir.
func stagingPath(dir string, f Format) string {
	return filepath.Join(dir, uuid.NewString()+f.Extension())
}

// jpegQuality converts a 0–1 quality into the 1–100 scale encoders use.
func jpegQuality(q float64) int {
	if q <= 0 || math.IsNaN(q) {
		return 1
	}
	if q >= 1 {
		return 100
	}
	v := int(math.Round(q * 100))
	if v < 1 {
		v = 1
	}
	return v
}

func validate(resize Resize) error {
	if resize.Width <= 0 || resize.Height <= 0 {
		return fmt.Errorf("invalid resize target %dx%d", resize.Width, resize.Height)
	}
	return nil
}

// fitWithin returns the dimensions of a w×h image scaled to fit inside
// maxW×maxH without enlarging it.
func fitWithin(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	scale := math.Min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	nw := int(math.Round(float64(w) * scale))
	nh := int(math.Round(float64(h) * scale))
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}
