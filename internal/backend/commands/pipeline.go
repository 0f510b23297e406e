package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/backend/commandstructure"
)

var (
	ErrNotAnImage    = errors.New("please upload an image file (JPEG, PNG, etc.)")
	ErrImageTooLarge = errors.New("image exceeds the maximum upload size")
	ErrEmptyImage    = errors.New("image is empty")
)

// ValidateImage checks the declared content type and the byte size of an upload.
func ValidateImage(contentType string, size int64, maxSizeMB int) error {
	if size <= 0 {
		return ErrEmptyImage
	}
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/") {
		return ErrNotAnImage
	}
	maxBytes := int64(maxSizeMB) * 1024 * 1024
	if size > maxBytes {
		return fmt.Errorf("%w: image must be smaller than %dMB", ErrImageTooLarge, maxSizeMB)
	}
	return nil
}

// DefaultSubmissionPipeline rasterizes, shrinks to fit and re-encodes as JPEG.
func DefaultSubmissionPipeline(maxWidth, maxHeight, quality int) []commandstructure.CommandConfig {
	return []commandstructure.CommandConfig{
		{Name: RasterizeCommandName, Params: map[string]any{
			"svgFallbackWidth":  maxWidth,
			"svgFallbackHeight": maxHeight,
		}},
		{Name: FitCommandName, Params: map[string]any{
			"maxWidth":  maxWidth,
			"maxHeight": maxHeight,
		}},
		{Name: JpegEncodeCommandName, Params: map[string]any{
			"quality": quality,
		}},
	}
}
