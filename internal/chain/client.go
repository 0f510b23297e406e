package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend is the subset of the JSON-RPC client the package needs.
// *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

type Config struct {
	RPCURL           string
	ChainID          int64
	ContractAddress  string
	TokenAddress     string
	OperatorKey      string
	GasBufferPercent int
	Confirmations    uint64
	ExplorerURL      string
}

type Client struct {
	backend Backend
	cfg     Config

	contest      common.Address
	token        common.Address
	contestBound *bind.BoundContract
	tokenBound   *bind.BoundContract

	operator *bind.TransactOpts
	// operator transactions are serialized so nonces never race
	opMu sync.Mutex
}

// Dial connects to cfg.RPCURL. Websocket URLs enable log subscriptions.
func Dial(ctx context.Context, cfg Config) (*Client, *ethclient.Client, error) {
	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", cfg.RPCURL, err)
	}
	c, err := NewClient(ec, cfg)
	if err != nil {
		ec.Close()
		return nil, nil, err
	}
	return c, ec, nil
}

func NewClient(backend Backend, cfg Config) (*Client, error) {
	if cfg.Confirmations == 0 {
		cfg.Confirmations = 1
	}
	if cfg.GasBufferPercent < 0 {
		cfg.GasBufferPercent = 0
	}
	c := &Client{backend: backend, cfg: cfg}

	if cfg.ContractAddress != "" {
		if !common.IsHexAddress(cfg.ContractAddress) {
			return nil, fmt.Errorf("%w: contract %q", ErrInvalidAddress, cfg.ContractAddress)
		}
		c.contest = common.HexToAddress(cfg.ContractAddress)
		c.contestBound = bind.NewBoundContract(c.contest, ContestABI, backend, backend, backend)
	} else {
		slog.Warn("contest contract address is not configured; chain calls are disabled")
	}
	if cfg.TokenAddress != "" {
		if !common.IsHexAddress(cfg.TokenAddress) {
			return nil, fmt.Errorf("%w: token %q", ErrInvalidAddress, cfg.TokenAddress)
		}
		c.token = common.HexToAddress(cfg.TokenAddress)
		c.tokenBound = bind.NewBoundContract(c.token, TokenABI, backend, backend, backend)
	}

	if cfg.OperatorKey != "" {
		key, err := ParsePrivateKey(cfg.OperatorKey)
		if err != nil {
			return nil, err
		}
		opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(cfg.ChainID))
		if err != nil {
			return nil, fmt.Errorf("failed to build operator transactor: %w", err)
		}
		c.operator = opts
		slog.Info("operator key loaded", "address", opts.From.Hex())
	}
	return c, nil
}

// ParsePrivateKey accepts a hex key with or without the 0x prefix.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid operator key: %w", err)
	}
	return key, nil
}

func (c *Client) Backend() Backend               { return c.backend }
func (c *Client) ContestAddress() common.Address { return c.contest }
func (c *Client) TokenAddress() common.Address   { return c.token }
func (c *Client) Configured() bool               { return c.contestBound != nil }
func (c *Client) CanTransact() bool              { return c.operator != nil && c.contestBound != nil }

// OperatorAddress is the zero address when no operator key is configured.
func (c *Client) OperatorAddress() common.Address {
	if c.operator == nil {
		return common.Address{}
	}
	return c.operator.From
}

// ExplorerTxURL links a transaction on the configured block explorer.
func (c *Client) ExplorerTxURL(hash string) string {
	if c.cfg.ExplorerURL == "" || hash == "" {
		return ""
	}
	return strings.TrimSuffix(c.cfg.ExplorerURL, "/") + "/tx/" + hash
}

func (c *Client) requireContest() error {
	if c.contestBound == nil {
		return ErrNotConfigured
	}
	return nil
}

// ParseAddress validates a user supplied address.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// ParseRequestID validates a 0x-prefixed bytes32 hex string.
func ParseRequestID(s string) (common.Hash, error) {
	h, err := parseHash(s)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: request id %q: %v", ErrInvalidHash, s, err)
	}
	return h, nil
}

func parseHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(strings.TrimSpace(s))
	if err != nil {
		return common.Hash{}, err
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("expected %d bytes, got %d", common.HashLength, len(b))
	}
	return common.BytesToHash(b), nil
}
