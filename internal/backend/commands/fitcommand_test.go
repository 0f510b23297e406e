package commands

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"testing"

	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/backend/commandstructure"
	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/scoring"
)

func TestNewFitCommand_Errors(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
	}{
		{name: "missing maxWidth", params: map[string]any{"maxHeight": 600}},
		{name: "missing maxHeight", params: map[string]any{"maxWidth": 800}},
		{name: "zero width", params: map[string]any{"maxWidth": 0, "maxHeight": 600}},
		{name: "negative height", params: map[string]any{"maxWidth": 800, "maxHeight": -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewFitCommand(tt.params); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestNewFitCommand_Success(t *testing.T) {
	command, err := NewFitCommand(map[string]any{"maxWidth": 800, "maxHeight": "600"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	fitCmd, ok := command.(*FitCommand)
	if !ok {
		t.Fatal("Expected command to be *FitCommand")
	}
	if fitCmd.Name() != FitCommandName {
		t.Errorf("Expected name '%s', got '%s'", FitCommandName, fitCmd.Name())
	}
	if p := fitCmd.GetParams(); p.MaxWidth != 800 || p.MaxHeight != 600 {
		t.Errorf("Expected 800x600, got %dx%d", p.MaxWidth, p.MaxHeight)
	}
}

func TestComputeFitDimensions(t *testing.T) {
	tests := []struct {
		name             string
		w, h, maxW, maxH int
		wantW, wantH     int
	}{
		{"fits already", 640, 480, 800, 600, 640, 480},
		{"exact bounds", 800, 600, 800, 600, 800, 600},
		{"landscape too wide", 1600, 900, 800, 600, 800, 450},
		{"portrait too tall", 900, 1600, 800, 600, 337, 600},
		{"both too large", 4000, 3000, 800, 600, 800, 600},
		{"extreme strip", 10000, 1, 800, 600, 800, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotW, gotH := computeFitDimensions(tt.w, tt.h, tt.maxW, tt.maxH)
			if gotW != tt.wantW || gotH != tt.wantH {
				t.Errorf("Expected %dx%d, got %dx%d", tt.wantW, tt.wantH, gotW, gotH)
			}
		})
	}
}

func TestFitCommand_Execute_Shrinks(t *testing.T) {
	command, err := NewFitCommandWithParams(50, 50)
	if err != nil {
		t.Fatalf("Failed to create command: %v", err)
	}

	out, err := command.Execute(createTestPNG(t, 200, 100))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	cfg, format := decodeConfig(t, out)
	if format != "png" {
		t.Errorf("Expected png output, got %s", format)
	}
	if cfg.Width != 50 || cfg.Height != 25 {
		t.Errorf("Expected 50x25, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestFitCommand_Execute_NoUpscale(t *testing.T) {
	command, err := NewFitCommandWithParams(800, 600)
	if err != nil {
		t.Fatalf("Failed to create command: %v", err)
	}

	input := createTestPNG(t, 20, 10)
	out, err := command.Execute(input)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(out) != len(input) {
		t.Error("Expected small image to pass through unchanged")
	}
}

func TestFitCommand_Execute_InvalidImage(t *testing.T) {
	command, _ := NewFitCommandWithParams(10, 10)
	if _, err := command.Execute([]byte("not an image")); err == nil {
		t.Error("Expected error for invalid image data")
	}
}

func TestFitCommand_Execute_RejectsOversizedHeader(t *testing.T) {
	data := createTestPNG(t, 1, 1)
	// declare 50000x50000 in IHDR and fix its CRC
	binary.BigEndian.PutUint32(data[16:20], 50000)
	binary.BigEndian.PutUint32(data[20:24], 50000)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))

	command, _ := NewFitCommandWithParams(10, 10)
	if _, err := command.Execute(data); !errors.Is(err, scoring.ErrTooManyPixels) {
		t.Errorf("Expected ErrTooManyPixels, got %v", err)
	}
}

func TestFitCommand_Registered(t *testing.T) {
	if !commandstructure.DefaultRegistry.IsRegistered(FitCommandName) {
		t.Errorf("Expected %s to be registered", FitCommandName)
	}
}
