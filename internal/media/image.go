package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"

	// decoders registered with image.Decode
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"atelier/internal/logging"
	"atelier/internal/metrics"
)

const (
	// MaxUploadBytes caps how much of an upload is read.
	MaxUploadBytes = 32 << 20

	// MaxImageDimension is the largest width or height accepted before the
	// image is downscaled ahead of thumbnailing.
	MaxImageDimension = 4096

	// MaxImagePixels rejects images whose decoded RGBA form would be huge.
	// 50 MP is about 200 MB of RGBA.
	MaxImagePixels = 50_000_000
)

var (
	// ErrInvalidImage means the data is not a decodable JPEG, PNG, GIF or WebP.
	ErrInvalidImage = errors.New("invalid image")
	// ErrImageTooLarge means the upload or its pixel count is over the limit.
	ErrImageTooLarge = errors.New("image too large")
)

// Dimensions is an image's size in pixels.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// readLimited reads r fully, failing when it exceeds MaxUploadBytes.
func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxUploadBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrImageTooLarge, MaxUploadBytes)
	}
	return data, nil
}

// probe reads the header only and returns the size and format name.
func probe(data []byte) (Dimensions, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Dimensions{}, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return Dimensions{Width: cfg.Width, Height: cfg.Height}, format, nil
}

// decodeConstrained decodes data with EXIF orientation applied, refusing
// images over MaxImagePixels and downscaling ones over MaxImageDimension.
func decodeConstrained(data []byte) (image.Image, string, error) {
	dim, format, err := probe(data)
	if err != nil {
		return nil, "", err
	}
	if dim.Width <= 0 || dim.Height <= 0 {
		return nil, format, fmt.Errorf("%w: empty image", ErrInvalidImage)
	}
	if dim.Width*dim.Height > MaxImagePixels {
		return nil, format, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, dim.Width, dim.Height)
	}
	metrics.ThumbnailDecodeByFormat.WithLabelValues(format).Inc()

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, format, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	if dim.Width > MaxImageDimension || dim.Height > MaxImageDimension {
		logging.Debug("Downscaling %s image from %dx%d", format, dim.Width, dim.Height)
		img = imaging.Fit(img, MaxImageDimension, MaxImageDimension, imaging.Box)
	}
	return img, format, nil
}
