package imaging

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/image/tiff"
)

// SavedImagePath returns the audit copy location for a request received at t,
// e.g. data/saved_images/image_1712345678.tif.
func SavedImagePath(dir string, t time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("image_%d.tif", t.Unix()))
}

// SaveImageAsTIFF writes img to path as a single channel 16-bit TIFF. Color
// inputs are converted to grayscale luminance first.
func SaveImageAsTIFF(img image.Image, path string) error {
	if img == nil {
		return ErrNotImage
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating image directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating image file: %w", err)
	}

	if err := tiff.Encode(f, toGray16(img), nil); err != nil {
		f.Close()
		return fmt.Errorf("encoding tiff: %w", err)
	}

	return f.Close()
}

func toGray16(img image.Image) *image.Gray16 {
	if gray, ok := img.(*image.Gray16); ok {
		return gray
	}

	bounds := img.Bounds()
	gray := image.NewGray16(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x, y, color.Gray16Model.Convert(img.At(x, y)))
		}
	}
	return gray
}
