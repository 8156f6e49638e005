package transcoder

import (
	"fmt"
	"image"

	"photo-gallery/internal/filesystem"
	"photo-gallery/internal/logging"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// MaxImageDimension is the maximum width or height decoded at full size.
	// Larger sources are downscaled immediately after decode.
	MaxImageDimension = 4096

	// MaxImagePixels is the maximum total pixels (width * height) we'll process.
	// 20MP uses about 80MB in RGBA.
	MaxImagePixels = 20_000_000

	// MaxSourcePixels rejects a source before decode when its header claims
	// more pixels than this. The full bitmap would not fit in memory.
	MaxSourcePixels = 250_000_000
)

// Dimensions holds image width and height
type Dimensions struct {
	Width  int
	Height int
}

// GetImageDimensions returns image dimensions without fully decoding the image
func GetImageDimensions(path string) (*Dimensions, error) {
	file, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close image file %s: %v", path, err)
		}
	}()

	config, _, err := image.DecodeConfig(file)
	if err != nil {
		return nil, err
	}

	return &Dimensions{Width: config.Width, Height: config.Height}, nil
}

// loadConstrained decodes path with EXIF auto-orientation, downscaling
// anything beyond MaxImageDimension / MaxImagePixels so that a single huge
// camera file cannot exhaust memory.
func loadConstrained(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	if width <= MaxImageDimension && height <= MaxImageDimension && width*height <= MaxImagePixels {
		return img, nil
	}

	targetWidth, targetHeight := fitWithin(width, height, MaxImageDimension, MaxImageDimension)
	if targetWidth*targetHeight > MaxImagePixels {
		scale := float64(MaxImagePixels) / float64(targetWidth*targetHeight)
		targetWidth = int(float64(targetWidth) * scale)
		targetHeight = int(float64(targetHeight) * scale)
	}

	logging.Info("Constraining large image %s from %dx%d to %dx%d", path, width, height, targetWidth, targetHeight)
	return imaging.Resize(img, targetWidth, targetHeight, imaging.Lanczos), nil
}

// detectFormat sniffs the container format from the file header. It is
// only used for diagnostics and to fail fast on formats no decoder handles.
func detectFormat(header []byte) string {
	switch {
	case len(header) >= 3 && header[0] == 0xFF && header[1] == 0xD8 && header[2] == 0xFF:
		return "jpeg"
	case len(header) >= 8 && header[0] == 0x89 && header[1] == 0x50 && header[2] == 0x4E && header[3] == 0x47:
		return "png"
	case len(header) >= 4 && header[0] == 0x47 && header[1] == 0x49 && header[2] == 0x46 && header[3] == 0x38:
		return "gif"
	case len(header) >= 12 && header[0] == 0x52 && header[1] == 0x49 && header[2] == 0x46 && header[3] == 0x46 &&
		header[8] == 0x57 && header[9] == 0x45 && header[10] == 0x42 && header[11] == 0x50:
		return "webp"
	case len(header) >= 2 && header[0] == 0x42 && header[1] == 0x4D:
		return "bmp"
	case len(header) >= 4 && ((header[0] == 0x49 && header[1] == 0x49 && header[2] == 0x2A && header[3] == 0x00) ||
		(header[0] == 0x4D && header[1] == 0x4D && header[2] == 0x00 && header[3] == 0x2A)):
		return "tiff"
	case len(header) >= 12 && header[4] == 0x66 && header[5] == 0x74 && header[6] == 0x79 && header[7] == 0x70:
		brand := string(header[8:12])
		if brand == "heic" || brand == "heix" || brand == "hevc" || brand == "hevx" || brand == "mif1" || brand == "msf1" {
			return "heif"
		}
		if brand == "avif" || brand == "avis" {
			return "avif"
		}
		return "unknown"
	}
	return "unknown"
}

// sniffFormat reads the first bytes of path and returns detectFormat's verdict.
func sniffFormat(path string) (string, error) {
	file, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return "", err
	}
	defer file.Close()

	header := make([]byte, 32)
	n, err := file.Read(header)
	if err != nil {
		return "", err
	}
	return detectFormat(header[:n]), nil
}
