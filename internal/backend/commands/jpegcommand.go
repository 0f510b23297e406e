package commands

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"strconv"
	"strings"

	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/backend/commandstructure"
)

const JpegEncodeCommandName = "JpegEncodeCommand"

// JpegEncodeCommand re-encodes the image as baseline JPEG. Transparent areas
// are flattened onto the background colour since JPEG has no alpha channel.
type JpegEncodeCommand struct {
	name       string
	quality    int
	background color.RGBA
	keepJpeg   bool
}

// NewJpegEncodeCommand reads quality, background ("#rrggbb", default white)
// and keepJpeg, which passes JPEG input through without re-encoding.
func NewJpegEncodeCommand(params map[string]any) (commandstructure.Command, error) {
	quality := commandstructure.GetIntParam(params, "quality", 80)
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("quality must be within 1..100, got %d", quality)
	}
	bg, err := parseHexColor(commandstructure.GetStringParam(params, "background", "#ffffff"))
	if err != nil {
		return nil, err
	}
	return &JpegEncodeCommand{
		name:       JpegEncodeCommandName,
		quality:    quality,
		background: bg,
		keepJpeg:   commandstructure.GetBoolParam(params, "keepJpeg", false),
	}, nil
}

func parseHexColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("background must be #rrggbb, got %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("background must be #rrggbb, got %q", s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

func (c *JpegEncodeCommand) Name() string {
	return c.name
}

func (c *JpegEncodeCommand) Quality() int {
	return c.quality
}

func (c *JpegEncodeCommand) Execute(imageData []byte) ([]byte, error) {
	img, format, err := decodeImage(imageData)
	if err != nil {
		return nil, err
	}
	if c.keepJpeg && format == "jpeg" {
		return imageData, nil
	}

	b := img.Bounds()
	flat := createTargetCanvas(b.Dx(), b.Dy(), c.background)
	draw.Draw(flat, flat.Bounds(), img, b.Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.Image(flat), &jpeg.Options{Quality: c.quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

func init() {
	if err := commandstructure.DefaultRegistry.Register(JpegEncodeCommandName, NewJpegEncodeCommand); err != nil {
		panic(fmt.Sprintf("failed to register %s: %v", JpegEncodeCommandName, err))
	}
}
