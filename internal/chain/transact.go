package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type ScoreResult struct {
	TxHash common.Hash
	Event  *SubmissionScored // nil when the contract emitted none
}

type RewardResult struct {
	TxHash    common.Hash
	Rewarded  bool
	Recipient common.Address
	Amount    *big.Int
	ImageURL  string
}

type BatchRewardResult struct {
	TxHash  common.Hash
	Rewards []*RewardDistributed
}

// send signs method(params...) with the operator key, waits for the receipt
// and fails on a reverted receipt.
func (c *Client) send(ctx context.Context, method string, params ...interface{}) (*types.Receipt, error) {
	if err := c.requireContest(); err != nil {
		return nil, err
	}
	if c.operator == nil {
		return nil, ErrReadOnly
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	data, err := ContestABI.Pack(method, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	gas, err := c.EstimateGas(ctx, c.operator.From, data, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	opts := *c.operator
	opts.Context = ctx
	opts.GasLimit = gas

	tx, err := c.contestBound.Transact(&opts, method, params...)
	if err != nil {
		return nil, ClassifyError(fmt.Errorf("%s: %w", method, err))
	}
	slog.Info("operator transaction sent", "method", method, "tx", tx.Hash().Hex(), "gas", gas)

	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("%s: waiting for %s: %w", method, tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%s: %w (tx %s)", method, ErrExecutionReverted, tx.Hash().Hex())
	}
	slog.Info("operator transaction mined", "method", method, "tx", tx.Hash().Hex(), "block", receipt.BlockNumber)
	return receipt, nil
}

func (c *Client) ScoreSubmission(ctx context.Context, requestID common.Hash, score uint8, approved bool) (*ScoreResult, error) {
	if score > 10 {
		return nil, fmt.Errorf("score %d out of range 0..10", score)
	}
	receipt, err := c.send(ctx, "scoreSubmission", [32]byte(requestID), score, approved)
	if err != nil {
		return nil, err
	}
	res := &ScoreResult{TxHash: receipt.TxHash}
	for _, l := range logsWithTopic(receipt.Logs, c.contest, EventTopic(EventSubmissionScored)) {
		ev, err := DecodeSubmissionScored(l)
		if err != nil {
			return nil, err
		}
		res.Event = ev
		break
	}
	return res, nil
}

// ProcessAIScore asks the contract to finalize the score of requestID and
// returns the resulting SubmissionScored event.
func (c *Client) ProcessAIScore(ctx context.Context, requestID common.Hash) (*SubmissionScored, error) {
	receipt, err := c.send(ctx, "processAIScore", [32]byte(requestID))
	if err != nil {
		return nil, err
	}
	logs := logsWithTopic(receipt.Logs, c.contest, EventTopic(EventSubmissionScored))
	if len(logs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, EventSubmissionScored)
	}
	return DecodeSubmissionScored(logs[0])
}

// DistributeReward triggers the reward calculation for one submission. A
// receipt without RewardDistributed means the submission earned nothing.
func (c *Client) DistributeReward(ctx context.Context, imageURL string) (*RewardResult, error) {
	receipt, err := c.send(ctx, "calculateAndDistributeRewards", imageURL)
	if err != nil {
		return nil, err
	}
	res := &RewardResult{TxHash: receipt.TxHash, ImageURL: imageURL}
	logs := logsWithTopic(receipt.Logs, c.contest, EventTopic(EventRewardDistributed))
	if len(logs) == 0 {
		return res, nil
	}
	ev, err := DecodeRewardDistributed(logs[0])
	if err != nil {
		return nil, err
	}
	res.Rewarded = true
	res.Recipient = ev.Recipient
	res.Amount = ev.Amount
	res.ImageURL = ev.ImageURL
	return res, nil
}

func (c *Client) BatchDistributeRewards(ctx context.Context, imageURLs []string) (*BatchRewardResult, error) {
	if len(imageURLs) == 0 {
		return nil, fmt.Errorf("no image urls to reward")
	}
	receipt, err := c.send(ctx, "batchDistributeRewards", imageURLs)
	if err != nil {
		return nil, err
	}
	res := &BatchRewardResult{TxHash: receipt.TxHash, Rewards: []*RewardDistributed{}}
	for _, l := range logsWithTopic(receipt.Logs, c.contest, EventTopic(EventRewardDistributed)) {
		ev, err := DecodeRewardDistributed(l)
		if err != nil {
			return nil, err
		}
		res.Rewards = append(res.Rewards, ev)
	}
	return res, nil
}
