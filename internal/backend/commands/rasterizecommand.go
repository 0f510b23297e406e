package commands

import (
	"bytes"
	"fmt"
	"image/color"
	"image/png"
	"log/slog"
	"strings"

	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/backend/commandstructure"
	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/scoring"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

const RasterizeCommandName = "RasterizeCommand"

const maxSVGSide = 1 << 20

// RasterizeCommand renders SVG uploads to PNG so the rest of the pipeline
// only ever sees raster data. Raster inputs are returned untouched.
type RasterizeCommand struct {
	name              string
	svgFallbackWidth  int
	svgFallbackHeight int
}

// NewRasterizeCommand reads the optional svgFallbackWidth/svgFallbackHeight,
// used only when an SVG has no explicit size.
func NewRasterizeCommand(params map[string]any) (commandstructure.Command, error) {
	w := commandstructure.GetIntParam(params, "svgFallbackWidth", 800)
	h := commandstructure.GetIntParam(params, "svgFallbackHeight", 600)
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("svg fallback size must be positive, got %dx%d", w, h)
	}

	return &RasterizeCommand{
		name:              RasterizeCommandName,
		svgFallbackWidth:  w,
		svgFallbackHeight: h,
	}, nil
}

func (c *RasterizeCommand) Name() string {
	return c.name
}

func (c *RasterizeCommand) Execute(imageData []byte) ([]byte, error) {
	if hasCorrectPngSignature(imageData) || !isSVGData(imageData) {
		return imageData, nil
	}

	w, h, ok := parseSvgExplicitSize(imageData)
	if !ok {
		slog.Debug("RasterizeCommand: SVG lacks explicit size; using fallback",
			"width", c.svgFallbackWidth, "height", c.svgFallbackHeight)
		w, h = c.svgFallbackWidth, c.svgFallbackHeight
	}
	if err := scoring.CheckDimensions(w, h); err != nil {
		return nil, fmt.Errorf("refusing to render SVG: %w", err)
	}

	out, err := renderSVGToPNG(imageData, w, h)
	if err != nil {
		return nil, fmt.Errorf("failed to render SVG to PNG: %w", err)
	}
	slog.Debug("RasterizeCommand: SVG rendered", "width", w, "height", h, "output_size_bytes", len(out))
	return out, nil
}

// isSVGData looks for an <svg tag or the SVG namespace in the first 4KB.
func isSVGData(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	n := len(data)
	if n > 4096 {
		n = 4096
	}
	header := bytes.ToLower(bytes.TrimSpace(data[:n]))
	return bytes.Contains(header, []byte("<svg")) ||
		bytes.Contains(header, []byte("xmlns=\"http://www.w3.org/2000/svg\"")) ||
		bytes.Contains(header, []byte("xmlns='http://www.w3.org/2000/svg'"))
}

// parseSvgExplicitSize extracts pixel width and height from the root tag.
// viewBox is deliberately not treated as a pixel size.
func parseSvgExplicitSize(data []byte) (int, int, bool) {
	n := len(data)
	if n > 8192 {
		n = 8192
	}
	s := strings.ToLower(string(data[:n]))
	i := strings.Index(s, "<svg")
	if i < 0 {
		return 0, 0, false
	}
	j := strings.Index(s[i:], ">")
	if j < 0 {
		j = len(s)
	} else {
		j = i + j
	}
	tag := s[i:j]

	w, wOk := parseNumericAttr(tag, "width")
	h, hOk := parseNumericAttr(tag, "height")
	if wOk && hOk {
		return w, h, true
	}
	return 0, 0, false
}

// parseNumericAttr returns the leading integer of a quoted attribute value (width="123px" -> 123).
func parseNumericAttr(tag, attr string) (int, bool) {
	pos := strings.Index(tag, " "+attr+"=")
	if pos < 0 {
		return 0, false
	}
	rest := tag[pos+len(attr)+2:]
	if len(rest) == 0 || (rest[0] != '"' && rest[0] != '\'') {
		return 0, false
	}
	quote := rest[0]
	rest = rest[1:]
	if end := strings.IndexByte(rest, quote); end >= 0 {
		rest = rest[:end]
	}

	num := 0
	found := false
	for i := 0; i < len(rest); i++ {
		ch := rest[i]
		if ch < '0' || ch > '9' {
			break
		}
		found = true
		if num > maxSVGSide {
			// saturate; the pixel limit rejects it later
			continue
		}
		num = num*10 + int(ch-'0')
	}
	if !found || num <= 0 {
		return 0, false
	}
	return num, true
}

func renderSVGToPNG(svgData []byte, targetW, targetH int) ([]byte, error) {
	if targetW <= 0 || targetH <= 0 {
		return nil, fmt.Errorf("invalid target dimensions for SVG rendering: %dx%d", targetW, targetH)
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svgData))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SVG: %w", err)
	}
	icon.SetTarget(0, 0, float64(targetW), float64(targetH))

	dst := createTargetCanvas(targetW, targetH, color.RGBA{255, 255, 255, 255})
	scanner := rasterx.NewScannerGV(targetW, targetH, dst, dst.Bounds())
	dasher := rasterx.NewDasher(targetW, targetH, scanner)
	icon.Draw(dasher, 1.0)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("failed to encode rendered SVG as PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func init() {
	if err := commandstructure.DefaultRegistry.Register(RasterizeCommandName, NewRasterizeCommand); err != nil {
		panic(fmt.Sprintf("failed to register %s: %v", RasterizeCommandName, err))
	}
}
