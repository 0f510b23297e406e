package chain

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	testContest = common.HexToAddress("0x00000000000000000000000000000000000d1a11")
	testToken   = common.HexToAddress("0x0000000000000000000000000000000000070ce0")
)

// fakeBackend answers the RPC calls the client makes. Methods it does not
// override panic through the nil embedded interface.
type fakeBackend struct {
	Backend

	mu          sync.Mutex
	outputs     map[string][]byte
	gas         uint64
	estimateErr error
	sendErr     error
	receipts    map[common.Hash]*types.Receipt
	blockNumber uint64
	balance     *big.Int
	sent        []*types.Transaction
	onSend      func(tx *types.Transaction) *types.Receipt
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		outputs:     map[string][]byte{},
		receipts:    map[common.Hash]*types.Receipt{},
		gas:         100000,
		blockNumber: 100,
		balance:     big.NewInt(0),
	}
}

func (f *fakeBackend) setOutput(t *testing.T, a abi.ABI, method string, values ...interface{}) {
	t.Helper()
	out, err := a.Methods[method].Outputs.Pack(values...)
	if err != nil {
		t.Fatalf("failed to pack %s output: %v", method, err)
	}
	f.mu.Lock()
	f.outputs[method] = out
	f.mu.Unlock()
}

func (f *fakeBackend) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	a := ContestABI
	if call.To != nil && *call.To == testToken {
		a = TokenABI
	}
	m, err := a.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out, ok := f.outputs[m.Name]
	if !ok {
		return nil, fmt.Errorf("execution reverted: no output for %s", m.Name)
	}
	return out, nil
}

func (f *fakeBackend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return f.gas, f.estimateErr
}

func (f *fakeBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	n := f.blockNumber
	if number != nil {
		n = number.Uint64()
	}
	return &types.Header{Number: new(big.Int).SetUint64(n), Time: 1_700_000_000 + n, BaseFee: big.NewInt(1_000_000_000)}, nil
}

func (f *fakeBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(2_000_000_000), nil
}

func (f *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.sent)), nil
}

func (f *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	if f.onSend != nil {
		if r := f.onSend(tx); r != nil {
			r.TxHash = tx.Hash()
			f.receipts[tx.Hash()] = r
		}
	}
	return nil
}

func (f *fakeBackend) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (f *fakeBackend) BlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blockNumber, nil
}

func (f *fakeBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return f.balance, nil
}

func testOperatorKey(t *testing.T) string {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey error: %v", err)
	}
	return "0x" + hex.EncodeToString(crypto.FromECDSA(key))
}

func newTestClient(t *testing.T, fb *fakeBackend, withOperator bool) *Client {
	t.Helper()
	cfg := Config{
		ChainID:          84532,
		ContractAddress:  testContest.Hex(),
		TokenAddress:     testToken.Hex(),
		GasBufferPercent: 20,
		Confirmations:    3,
		ExplorerURL:      "https://sepolia.basescan.org/",
	}
	if withOperator {
		cfg.OperatorKey = testOperatorKey(t)
	}
	c, err := NewClient(fb, cfg)
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	return c
}
