package core

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/chain"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

func (service *CoreService) PrepareSubmitTx(ctx context.Context, from, imageURL, ipfsHash string) (*TxRequest, error) {
	if strings.TrimSpace(imageURL) == "" || strings.TrimSpace(ipfsHash) == "" {
		return nil, fmt.Errorf("%w: image url and ipfs hash are required", ErrInvalidInput)
	}
	data, err := chain.PackSubmit(imageURL, ipfsHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return service.txRequest(ctx, from, data, service.oracleFee)
}

func (service *CoreService) PrepareVoteTx(ctx context.Context, from, imageURL string, score int) (*TxRequest, error) {
	if strings.TrimSpace(imageURL) == "" {
		return nil, fmt.Errorf("%w: image url is required", ErrInvalidInput)
	}
	data, err := chain.PackVote(imageURL, score)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return service.txRequest(ctx, from, data, nil)
}

func (service *CoreService) PrepareBatchVoteTx(ctx context.Context, from string, imageURLs []string, scores []int) (*TxRequest, error) {
	data, err := chain.PackBatchVote(imageURLs, scores)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return service.txRequest(ctx, from, data, nil)
}

// PrepareProcessScoreTx builds the processAIScore call a wallet sends to
// finalize the score of requestID.
func (service *CoreService) PrepareProcessScoreTx(ctx context.Context, from, requestID string) (*TxRequest, error) {
	id, err := chain.ParseRequestID(requestID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	data, err := chain.PackProcessAIScore(id)
	if err != nil {
		return nil, err
	}
	return service.txRequest(ctx, from, data, nil)
}

// txRequest addresses data to the contest contract. The gas limit is only
// estimated when the sender is known.
func (service *CoreService) txRequest(ctx context.Context, from string, data []byte, value *big.Int) (*TxRequest, error) {
	if !service.chain.Configured() {
		return nil, chain.ErrNotConfigured
	}
	if value == nil {
		value = new(big.Int)
	}
	req := &TxRequest{
		To:    service.chain.ContestAddress().Hex(),
		Data:  data,
		Value: (*hexutil.Big)(new(big.Int).Set(value)),
	}
	if from = strings.TrimSpace(from); from != "" {
		sender, err := chain.ParseAddress(from)
		if err != nil {
			return nil, err
		}
		gas, err := service.chain.EstimateGas(ctx, sender, data, value)
		if err != nil {
			return nil, err
		}
		req.Gas = hexutil.Uint64(gas)
	}
	return req, nil
}

func (service *CoreService) TransactionStatus(ctx context.Context, hash string) (*chain.TxInfo, error) {
	info, err := service.chain.TransactionStatus(ctx, hash)
	if err != nil {
		return nil, inputError(err)
	}
	return info, nil
}

// WaitForTransaction polls hash every chain.pollInterval until it is
// confirmed or reverted.
func (service *CoreService) WaitForTransaction(ctx context.Context, hash string) (*chain.TxInfo, error) {
	if strings.TrimSpace(hash) == "" {
		return nil, fmt.Errorf("%w: transaction hash is required", ErrInvalidInput)
	}
	info, err := service.chain.WaitForTransaction(ctx, hash, service.config.Chain.PollInterval)
	if err != nil {
		return info, inputError(err)
	}
	return info, nil
}

// inputError tags malformed hashes as caller mistakes.
func inputError(err error) error {
	if errors.Is(err, chain.ErrInvalidHash) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return err
}
