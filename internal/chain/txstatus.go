package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
)

type TxStatus string

const (
	TxIdle       TxStatus = "idle"
	TxPending    TxStatus = "pending"
	TxConfirming TxStatus = "confirming"
	TxConfirmed  TxStatus = "confirmed"
	TxError      TxStatus = "error"
)

type TxInfo struct {
	Hash          string   `json:"hash"`
	Status        TxStatus `json:"status"`
	BlockNumber   uint64   `json:"blockNumber,omitempty"`
	Confirmations uint64   `json:"confirmations"`
	GasUsed       uint64   `json:"gasUsed,omitempty"`
	ExplorerURL   string   `json:"explorerUrl,omitempty"`
}

// TransactionStatus maps a transaction hash onto the client-facing lifecycle.
// Unknown or unmined hashes are pending.
func (c *Client) TransactionStatus(ctx context.Context, hash string) (*TxInfo, error) {
	if hash == "" {
		return &TxInfo{Status: TxIdle}, nil
	}
	h, err := parseHash(hash)
	if err != nil {
		return nil, fmt.Errorf("%w: transaction %q: %v", ErrInvalidHash, hash, err)
	}
	info := &TxInfo{Hash: h.Hex(), ExplorerURL: c.ExplorerTxURL(h.Hex())}

	receipt, err := c.backend.TransactionReceipt(ctx, h)
	if errors.Is(err, ethereum.NotFound) {
		info.Status = TxPending
		return info, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read receipt %s: %w", h.Hex(), err)
	}

	info.BlockNumber = receipt.BlockNumber.Uint64()
	info.GasUsed = receipt.GasUsed
	if receipt.Status != types.ReceiptStatusSuccessful {
		info.Status = TxError
		return info, nil
	}

	latest, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read block number: %w", err)
	}
	if latest >= info.BlockNumber {
		info.Confirmations = latest - info.BlockNumber + 1
	}
	if info.Confirmations < c.cfg.Confirmations {
		info.Status = TxConfirming
	} else {
		info.Status = TxConfirmed
	}
	return info, nil
}

// WaitForTransaction polls until the transaction is confirmed, reverted or
// ctx is done.
func (c *Client) WaitForTransaction(ctx context.Context, hash string, interval time.Duration) (*TxInfo, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		info, err := c.TransactionStatus(ctx, hash)
		if err != nil {
			return nil, err
		}
		switch info.Status {
		case TxIdle:
			return nil, fmt.Errorf("no transaction hash given")
		case TxConfirmed:
			return info, nil
		case TxError:
			return info, fmt.Errorf("%w: transaction %s failed", ErrExecutionReverted, info.Hash)
		}
		select {
		case <-ctx.Done():
			return info, ctx.Err()
		case <-ticker.C:
		}
	}
}
