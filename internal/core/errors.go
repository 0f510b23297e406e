package core

import "errors"

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrNotFound        = errors.New("not found")
	ErrFeatureDisabled = errors.New("feature disabled")
	ErrScoreTimeout    = errors.New("timed out waiting for AI score")
)
