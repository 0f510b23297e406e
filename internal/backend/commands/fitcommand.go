package commands

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/backend/commandstructure"

	xdraw "golang.org/x/image/draw"
)

const FitCommandName = "FitCommand"

// FitParams bounds the output size.
type FitParams struct {
	MaxWidth  int
	MaxHeight int
}

func NewFitParamsFromMap(params map[string]any) (*FitParams, error) {
	if err := commandstructure.ValidateRequiredParams(params, []string{"maxWidth", "maxHeight"}); err != nil {
		return nil, err
	}
	maxWidth := commandstructure.GetIntParam(params, "maxWidth", 0)
	maxHeight := commandstructure.GetIntParam(params, "maxHeight", 0)
	if maxWidth <= 0 {
		return nil, fmt.Errorf("maxWidth must be positive, got %d", maxWidth)
	}
	if maxHeight <= 0 {
		return nil, fmt.Errorf("maxHeight must be positive, got %d", maxHeight)
	}
	return &FitParams{MaxWidth: maxWidth, MaxHeight: maxHeight}, nil
}

// FitCommand shrinks an image to fit inside MaxWidth x MaxHeight while keeping
// its aspect ratio. Images that already fit are left alone; nothing is upscaled.
type FitCommand struct {
	name   string
	params *FitParams
}

func NewFitCommand(params map[string]any) (commandstructure.Command, error) {
	typed, err := NewFitParamsFromMap(params)
	if err != nil {
		return nil, err
	}
	return &FitCommand{name: FitCommandName, params: typed}, nil
}

func NewFitCommandWithParams(maxWidth, maxHeight int) (*FitCommand, error) {
	typed, err := NewFitParamsFromMap(map[string]any{"maxWidth": maxWidth, "maxHeight": maxHeight})
	if err != nil {
		return nil, err
	}
	return &FitCommand{name: FitCommandName, params: typed}, nil
}

func (c *FitCommand) Name() string {
	return c.name
}

func (c *FitCommand) GetParams() *FitParams {
	return c.params
}

func (c *FitCommand) Execute(imageData []byte) ([]byte, error) {
	img, format, err := decodeImage(imageData)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	w, h := computeFitDimensions(bounds.Dx(), bounds.Dy(), c.params.MaxWidth, c.params.MaxHeight)
	if w == bounds.Dx() && h == bounds.Dy() {
		slog.Debug("FitCommand: image already fits; skipping resize",
			"width", w, "height", h, "format", format)
		return imageData, nil
	}

	slog.Debug("FitCommand: resizing",
		"original_width", bounds.Dx(),
		"original_height", bounds.Dy(),
		"target_width", w,
		"target_height", h)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)

	out, err := encodePNG(dst)
	if err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}
	return out, nil
}

// computeFitDimensions scales (w,h) by min(maxW/w, maxH/h) when either side
// exceeds its bound, flooring the result and never returning a zero side.
func computeFitDimensions(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	ratio := float64(maxW) / float64(w)
	if r := float64(maxH) / float64(h); r < ratio {
		ratio = r
	}
	nw := int(float64(w) * ratio)
	nh := int(float64(h) * ratio)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}

func init() {
	if err := commandstructure.DefaultRegistry.Register(FitCommandName, NewFitCommand); err != nil {
		panic(fmt.Sprintf("failed to register %s: %v", FitCommandName, err))
	}
}
