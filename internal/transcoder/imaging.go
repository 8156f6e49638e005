package transcoder

import (
	"context"
	"fmt"
	"image"
	"os"

	"photo-gallery/internal/filesystem"
	"photo-gallery/internal/logging"
	"photo-gallery/internal/workers"

	"github.com/disintegration/imaging"
)

// imagingDecodable lists the formats the pure-Go decoders registered in
// image.go can read.
var imagingDecodable = map[string]bool{
	"jpeg": true, "png": true, "gif": true, "webp": true, "bmp": true, "tiff": true,
}

// maxImagingDecodes caps concurrent full decodes. Each one holds a whole
// bitmap in memory.
const maxImagingDecodes = 4

// Imaging is a pure-Go transcoder built on disintegration/imaging. It needs
// no cgo and is the fallback when libvips is not installed.
type Imaging struct {
	stagingDir  string
	decodeSlots chan struct{}
}

// NewImaging returns an imaging backend that writes into stagingDir.
func NewImaging(stagingDir string) *Imaging {
	return &Imaging{
		stagingDir:  stagingDir,
		decodeSlots: make(chan struct{}, workers.ForCPU(maxImagingDecodes)),
	}
}

// Name implements Transcoder.
func (t *Imaging) Name() string { return BackendImaging }

// Transcode implements Transcoder.
func (t *Imaging) Transcode(ctx context.Context, sourceURI string, resize Resize, opts Options) (*Result, error) {
	if err := validate(resize); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filesystem.PathFromURI(sourceURI)
	format, err := sniffFormat(path)
	if err != nil {
		return nil, fmt.Errorf("source not readable: %w", err)
	}
	if !imagingDecodable[format] {
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupported, format, path)
	}

	dims, err := GetImageDimensions(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if int64(dims.Width)*int64(dims.Height) > MaxSourcePixels {
		return nil, fmt.Errorf("%w: %s is %dx%d", ErrTooLarge, path, dims.Width, dims.Height)
	}

	select {
	case t.decodeSlots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-t.decodeSlots }()

	logging.Debug("imaging: decoding %s (%s, %dx%d) for %s %dx%d", path, format, dims.Width, dims.Height, resize.Mode, resize.Width, resize.Height)

	img, err := loadConstrained(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out image.Image
	switch resize.Mode {
	case ModeFill:
		out = imaging.Fill(img, resize.Width, resize.Height, imaging.Center, imaging.Lanczos)
	default:
		out = imaging.Fit(img, resize.Width, resize.Height, imaging.Lanczos)
	}

	outFormat := opts.Format
	if outFormat == "" {
		outFormat = FormatJPEG
	}
	dest := stagingPath(t.stagingDir, outFormat)

	if err := encodeToFile(dest, out, outFormat, opts.Quality); err != nil {
		return nil, err
	}

	b := out.Bounds()
	return &Result{URI: dest, Width: b.Dx(), Height: b.Dy()}, nil
}

func encodeToFile(dest string, img image.Image, format Format, quality float64) error {
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}

	var encErr error
	if format == FormatPNG {
		encErr = imaging.Encode(f, img, imaging.PNG)
	} else {
		encErr = imaging.Encode(f, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality(quality)))
	}
	closeErr := f.Close()

	if encErr != nil || closeErr != nil {
		_ = os.Remove(dest)
		if encErr != nil {
			return fmt.Errorf("failed to encode output: %w", encErr)
		}
		return fmt.Errorf("failed to close output: %w", closeErr)
	}
	return nil
}
