package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/backend/commands"
	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/backend/commandstructure"
	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/scoring"
)

// PrepareUpload validates an upload, runs the image pipeline and pins the
// result.
func (service *CoreService) PrepareUpload(ctx context.Context, upload Upload) (*UploadResult, error) {
	if err := commands.ValidateImage(upload.ContentType, int64(len(upload.Data)), service.config.Images.MaxSizeMB); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	processed, err := commandstructure.ExecuteCommands(ctx, upload.Data, service.pipeline)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to process image: %v", ErrInvalidInput, err)
	}
	hash, err := service.ipfs.Pin(ctx, processed)
	if err != nil {
		return nil, fmt.Errorf("failed to upload to IPFS: %w", err)
	}
	slog.Info("image pinned", "ipfs_hash", hash, "original_bytes", len(upload.Data), "pinned_bytes", len(processed))
	return &UploadResult{
		IPFSHash: hash,
		ImageURL: service.ipfs.GatewayURL(hash),
		Size:     len(processed),
	}, nil
}

// ScorePreview pins the raw image and scores it without touching the chain.
func (service *CoreService) ScorePreview(ctx context.Context, upload Upload) (*ScorePreview, error) {
	if err := commands.ValidateImage(upload.ContentType, int64(len(upload.Data)), service.config.Images.MaxSizeMB); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	hash, err := service.ipfs.Pin(ctx, upload.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to upload to IPFS: %w", err)
	}
	result, err := service.scorer.Score(ctx, upload.Data)
	if errors.Is(err, scoring.ErrUnreadableImage) || errors.Is(err, scoring.ErrTooManyPixels) {
		return nil, fmt.Errorf("%w: failed to score image: %v", ErrInvalidInput, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to score image: %w", err)
	}
	return &ScorePreview{
		Success:   true,
		Score:     result.Score,
		Feedback:  result.Feedback,
		Approved:  scoring.Approved(result.Score, service.config.Scoring.MinScoreThreshold),
		IPFSHash:  hash,
		ImageURL:  service.ipfs.GatewayURL(hash),
		Timestamp: time.Now().UnixMilli(),
	}, nil
}
