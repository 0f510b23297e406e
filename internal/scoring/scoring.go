package scoring

import (
	"context"
	"fmt"
)

const MaxScore = 10

type Result struct {
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

// Scorer rates how well an image captures Diwali, from 0 to MaxScore.
type Scorer interface {
	Name() string
	Score(ctx context.Context, image []byte) (Result, error)
}

type Config struct {
	Type   string
	APIKey string
	Model  string
}

func NewScorer(cfg Config) (Scorer, error) {
	switch cfg.Type {
	case "", "brightness":
		return NewBrightnessScorer(), nil
	case "genai":
		return NewGenAIScorer(context.Background(), cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unsupported scorer: %s", cfg.Type)
	}
}

func Feedback(score int) string {
	switch {
	case score >= 9:
		return "Amazing Diwali spirit! Your celebration is absolutely stunning with brilliant lights and decorations!"
	case score >= 7:
		return "Great job! Your Diwali decorations are beautiful and festive."
	case score >= 5:
		return "Nice effort! You've captured the essence of Diwali."
	case score >= 3:
		return "Good start! Consider adding more lights and decorations to enhance the Diwali spirit."
	default:
		return "We see your submission, but it needs more Diwali elements. Try again with more lights and festive decorations!"
	}
}

// Approved reports whether score reaches the contest threshold.
func Approved(score, threshold int) bool {
	return score >= threshold
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
