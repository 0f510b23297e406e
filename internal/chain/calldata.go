package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

var ErrInvalidScore = errors.New("score must be between 1 and 10")

func PackSubmit(imageURL, ipfsHash string) ([]byte, error) {
	if imageURL == "" || ipfsHash == "" {
		return nil, errors.New("image url and ipfs hash are required")
	}
	return ContestABI.Pack("submitDiwaliLights", imageURL, ipfsHash)
}

func PackVote(imageURL string, score int) ([]byte, error) {
	if imageURL == "" {
		return nil, errors.New("image url is required")
	}
	if score < 1 || score > 10 {
		return nil, ErrInvalidScore
	}
	return ContestABI.Pack("voteOnSubmission", imageURL, uint8(score))
}

func PackBatchVote(imageURLs []string, scores []int) ([]byte, error) {
	if len(imageURLs) == 0 {
		return nil, errors.New("at least one vote is required")
	}
	if len(imageURLs) != len(scores) {
		return nil, fmt.Errorf("got %d image urls but %d scores", len(imageURLs), len(scores))
	}
	packed := make([]uint8, len(scores))
	for i, s := range scores {
		if s < 1 || s > 10 {
			return nil, fmt.Errorf("vote %d: %w", i, ErrInvalidScore)
		}
		packed[i] = uint8(s)
	}
	return ContestABI.Pack("batchVote", imageURLs, packed)
}

func PackProcessAIScore(requestID common.Hash) ([]byte, error) {
	return ContestABI.Pack("processAIScore", [32]byte(requestID))
}

// EstimateGas estimates a contest call from `from` and adds the configured
// buffer: gas * (100 + buffer) / 100.
func (c *Client) EstimateGas(ctx context.Context, from common.Address, data []byte, value *big.Int) (uint64, error) {
	if err := c.requireContest(); err != nil {
		return 0, err
	}
	to := c.contest
	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Data:  data,
		Value: value,
	})
	if err != nil {
		return 0, ClassifyError(fmt.Errorf("gas estimation failed: %w", err))
	}
	return ApplyGasBuffer(gas, c.cfg.GasBufferPercent), nil
}

func ApplyGasBuffer(gas uint64, percent int) uint64 {
	return gas * uint64(100+percent) / 100
}
