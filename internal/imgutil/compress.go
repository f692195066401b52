// Package imgutil holds the raster helpers shared by the scene analysis and
// illustration pipelines: size-bounded JPEG compression for model uploads and
// composition guide overlays for generated images.
package imgutil

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	// MaxDimension bounds the longer edge of images sent to vision models.
	MaxDimension = 768
	// StartQuality is the first JPEG quality tried by Compress.
	StartQuality = 75
	// QualityStep is subtracted from the quality on every retry.
	QualityStep = 10
	// QualityFloor stops the retry loop once the quality is at or below it.
	QualityFloor = 20
	// DefaultBudget is the byte budget used for scene analysis uploads.
	DefaultBudget = 300 * 1024
	// MaxPixels caps width*height of any image decoded in full.
	MaxPixels = 40_000_000
)

// ErrTooManyPixels is returned for images whose header declares more than
// MaxPixels pixels.
var ErrTooManyPixels = errors.New("imgutil: image dimensions too large")

// CompressFile loads the image at path and compresses it with Compress. It
// never fails: when the image cannot be decoded or encoded, or its header
// declares more than MaxPixels, the raw file bytes are returned unchanged, and
// nil is returned only if the file is unreadable.
func CompressFile(path string, maxBytes int) []byte {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	if _, _, err := CheckSize(raw); err != nil {
		return raw
	}
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return raw
	}
	if data, _, err := Compress(img, maxBytes); err == nil {
		return data
	}
	return raw
}

// Compress re-encodes img as JPEG so that it fits in maxBytes. The image is
// converted to an opaque colour model, downsampled so that its longer edge is
// at most MaxDimension, and encoded at StartQuality. Quality then drops by
// QualityStep while the output is over budget and above QualityFloor. The
// returned quality is the one used for the final encode.
func Compress(img image.Image, maxBytes int) ([]byte, int, error) {
	if img == nil {
		return nil, 0, fmt.Errorf("imgutil: nil image")
	}
	img = toOpaque(img)
	b := img.Bounds()
	if max(b.Dx(), b.Dy()) > MaxDimension {
		img = imaging.Fit(img, MaxDimension, MaxDimension, imaging.Lanczos)
	}

	quality := StartQuality
	data, err := EncodeJPEG(img, quality)
	if err != nil {
		return nil, 0, err
	}
	for len(data) > maxBytes && quality > QualityFloor {
		quality -= QualityStep
		if data, err = EncodeJPEG(img, quality); err != nil {
			return nil, 0, err
		}
	}
	return data, quality, nil
}

// EncodeJPEG encodes img at the given quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("imgutil: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// CheckSize reads only the image header and rejects images larger than
// MaxPixels before any pixel buffer is allocated.
func CheckSize(data []byte) (image.Config, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, "", fmt.Errorf("imgutil: decode config: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return cfg, format, fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)
	}
	return cfg, format, nil
}

// Decode decodes any registered format (png, jpeg, gif, webp) and reports
// the format name. Images over MaxPixels are rejected from their header.
func Decode(data []byte) (image.Image, string, error) {
	if _, _, err := CheckSize(data); err != nil {
		return nil, "", err
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("imgutil: decode: %w", err)
	}
	return img, format, nil
}

// toOpaque keeps grayscale and opaque images as they are and composites
// everything else onto white.
func toOpaque(img image.Image) image.Image {
	switch img.(type) {
	case *image.Gray, *image.Gray16, *image.YCbCr:
		return img
	}
	if isOpaque(img) {
		return img
	}
	return Flatten(img, color.White)
}
