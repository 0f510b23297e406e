package scoring

import (
	"bytes"
	"errors"
	"fmt"
	"image"
)

// MaxPixels bounds width*height of any image the service decodes.
const MaxPixels = 40_000_000

var (
	ErrUnreadableImage = errors.New("unreadable image")
	ErrTooManyPixels   = errors.New("image dimensions exceed the pixel limit")
)

// CheckDimensions rejects non-positive sizes and anything above MaxPixels.
func CheckDimensions(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrUnreadableImage, width, height)
	}
	if int64(width)*int64(height) > MaxPixels {
		return fmt.Errorf("%w: %dx%d", ErrTooManyPixels, width, height)
	}
	return nil
}

// DecodeImage reads the header first so oversized images are rejected
// before any pixel buffer is allocated.
func DecodeImage(data []byte) (image.Image, string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}
	if err := CheckDimensions(cfg.Width, cfg.Height); err != nil {
		return nil, "", err
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}
	return img, format, nil
}
