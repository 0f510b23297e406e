package scoring

import (
	"context"
	"fmt"
	"image"
	"math"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// BrightnessScorer scores by mean luminance: well lit diyas and lanterns
// push the score up, dark frames pull it down.
type BrightnessScorer struct{}

func NewBrightnessScorer() *BrightnessScorer {
	return &BrightnessScorer{}
}

func (s *BrightnessScorer) Name() string {
	return "brightness"
}

func (s *BrightnessScorer) Score(ctx context.Context, data []byte) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	img, _, err := DecodeImage(data)
	if err != nil {
		return Result{}, fmt.Errorf("failed to decode image: %w", err)
	}
	score := BrightnessToScore(Brightness(img))
	return Result{Score: score, Feedback: Feedback(score)}, nil
}

// Brightness is the mean Rec. 709 luma of img in [0, 1].
func Brightness(img image.Image) float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return 0
	}

	// integer Rec. 709 weights (x10000) keep a pure white frame at exactly 1.0
	rows := make([]uint64, h)
	parallelFor(h, func(y int) {
		var sum uint64
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			sum += (2126*uint64(r) + 7152*uint64(g) + 722*uint64(bl)) / 10000
		}
		rows[y] = sum
	})

	var total uint64
	for _, r := range rows {
		total += r
	}
	return float64(total) / (float64(0xffff) * float64(w*h))
}

// BrightnessToScore maps [0, 1] onto 0..10 as min(floor(b*10), 10).
func BrightnessToScore(brightness float64) int {
	return clamp(int(math.Floor(brightness * MaxScore)))
}
