package scoring

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image/color"
	"testing"
)

// pngWithHeaderSize rewrites the IHDR of a real 1x1 PNG so it declares w x h.
func pngWithHeaderSize(t *testing.T, w, h uint32) []byte {
	t.Helper()
	data := solidPNG(t, color.White, 1, 1)
	// signature (8) + length (4) + "IHDR" (4), then width and height
	binary.BigEndian.PutUint32(data[16:20], w)
	binary.BigEndian.PutUint32(data[20:24], h)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func TestCheckDimensions(t *testing.T) {
	tests := []struct {
		name string
		w, h int
		want error
	}{
		{"small", 800, 600, nil},
		{"at limit", 8000, 5000, nil},
		{"over limit", 8000, 5001, ErrTooManyPixels},
		{"huge square", 100000, 100000, ErrTooManyPixels},
		{"zero width", 0, 10, ErrUnreadableImage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckDimensions(tt.w, tt.h)
			if tt.want == nil && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDecodeImage_RejectsOversizedHeader(t *testing.T) {
	if _, _, err := DecodeImage(pngWithHeaderSize(t, 1, 1)); err != nil {
		t.Fatalf("Expected rewritten 1x1 PNG to decode, got %v", err)
	}
	if _, _, err := DecodeImage(pngWithHeaderSize(t, 60000, 60000)); !errors.Is(err, ErrTooManyPixels) {
		t.Errorf("Expected ErrTooManyPixels, got %v", err)
	}
	if _, _, err := DecodeImage([]byte("nope")); !errors.Is(err, ErrUnreadableImage) {
		t.Errorf("Expected ErrUnreadableImage, got %v", err)
	}
}

func TestBrightnessScorer_RejectsOversizedHeader(t *testing.T) {
	_, err := NewBrightnessScorer().Score(t.Context(), pngWithHeaderSize(t, 60000, 60000))
	if !errors.Is(err, ErrTooManyPixels) {
		t.Errorf("Expected ErrTooManyPixels, got %v", err)
	}
}
