package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func TestNewClient_Validation(t *testing.T) {
	fb := newFakeBackend()
	if _, err := NewClient(fb, Config{ContractAddress: "0x12"}); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("expected ErrInvalidAddress, got %v", err)
	}
	if _, err := NewClient(fb, Config{OperatorKey: "nothex"}); err == nil {
		t.Error("expected error for invalid operator key")
	}

	c, err := NewClient(fb, Config{})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	if c.Configured() || c.CanTransact() {
		t.Error("expected unconfigured client")
	}
	if _, err := c.GetSubmission(context.Background(), "img"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestClient_EstimateGas(t *testing.T) {
	fb := newFakeBackend()
	c := newTestClient(t, fb, false)

	gas, err := c.EstimateGas(context.Background(), testUser, []byte{1}, big.NewInt(1))
	if err != nil {
		t.Fatalf("EstimateGas error: %v", err)
	}
	if gas != 120000 {
		t.Errorf("expected buffered gas 120000, got %d", gas)
	}

	fb.estimateErr = errors.New("insufficient funds for gas * price + value")
	if _, err := c.EstimateGas(context.Background(), testUser, nil, nil); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestClient_TransactionStatus(t *testing.T) {
	fb := newFakeBackend()
	c := newTestClient(t, fb, false)
	ctx := context.Background()

	mined := common.HexToHash("0x01")
	reverted := common.HexToHash("0x02")
	fresh := common.HexToHash("0x03")
	fb.receipts[mined] = &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(90)}
	fb.receipts[reverted] = &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(95)}
	fb.receipts[fresh] = &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(99)}

	tests := []struct {
		name string
		hash string
		want TxStatus
	}{
		{"empty", "", TxIdle},
		{"unknown", common.HexToHash("0x04").Hex(), TxPending},
		{"confirmed", mined.Hex(), TxConfirmed},
		{"reverted", reverted.Hex(), TxError},
		{"confirming", fresh.Hex(), TxConfirming},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := c.TransactionStatus(ctx, tt.hash)
			if err != nil {
				t.Fatalf("TransactionStatus error: %v", err)
			}
			if info.Status != tt.want {
				t.Errorf("expected %s, got %s", tt.want, info.Status)
			}
		})
	}

	info, _ := c.TransactionStatus(ctx, mined.Hex())
	if info.Confirmations != 11 {
		t.Errorf("expected 11 confirmations, got %d", info.Confirmations)
	}
	if info.ExplorerURL != "https://sepolia.basescan.org/tx/"+mined.Hex() {
		t.Errorf("unexpected explorer url %s", info.ExplorerURL)
	}

	if _, err := c.TransactionStatus(ctx, "0xnothex"); !errors.Is(err, ErrInvalidHash) {
		t.Errorf("expected ErrInvalidHash, got %v", err)
	}
}

func TestClient_WaitForTransaction(t *testing.T) {
	fb := newFakeBackend()
	c := newTestClient(t, fb, false)

	hash := common.HexToHash("0x05")
	fb.receipts[hash] = &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(1)}
	if _, err := c.WaitForTransaction(context.Background(), hash.Hex(), time.Millisecond); !errors.Is(err, ErrExecutionReverted) {
		t.Errorf("expected ErrExecutionReverted, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.WaitForTransaction(ctx, common.HexToHash("0x06").Hex(), time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestClient_Views(t *testing.T) {
	fb := newFakeBackend()
	c := newTestClient(t, fb, false)
	ctx := context.Background()

	reward := new(big.Int).Mul(big.NewInt(3), big.NewInt(1e18))
	fb.setOutput(t, ContestABI, "getSubmission", rawSubmission{
		Submitter:    testUser,
		ImageUrl:     "img",
		IpfsHash:     "QmA",
		AiScore:      7,
		TotalVotes:   big.NewInt(4),
		Timestamp:    big.NewInt(1700000000),
		Status:       1,
		Rewarded:     true,
		RewardAmount: reward,
	})
	sub, err := c.GetSubmission(ctx, "img")
	if err != nil {
		t.Fatalf("GetSubmission error: %v", err)
	}
	if sub.Submitter != testUser || sub.AIScore != 7 || sub.TotalVotes != 4 || !sub.Rewarded || sub.RewardAmount.Cmp(reward) != 0 {
		t.Errorf("unexpected submission %+v", sub)
	}

	fb.setOutput(t, ContestABI, "getSubmissionVotes", []rawVote{
		{Voter: testUser, Score: 9, Timestamp: big.NewInt(5)},
	})
	votes, err := c.GetSubmissionVotes(ctx, "img")
	if err != nil {
		t.Fatalf("GetSubmissionVotes error: %v", err)
	}
	if len(votes) != 1 || votes[0].Score != 9 || votes[0].Timestamp != 5 {
		t.Errorf("unexpected votes %+v", votes)
	}

	fb.setOutput(t, ContestABI, "getUserStats", big.NewInt(2), reward, big.NewInt(8))
	stats, err := c.GetUserStats(ctx, testUser)
	if err != nil {
		t.Fatalf("GetUserStats error: %v", err)
	}
	if stats.SubmissionsCount != 2 || stats.AverageScore != 8 || stats.TotalRewards.Cmp(reward) != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}

	fb.setOutput(t, ContestABI, "getUserSubmissions", []string{"a", "b"})
	urls, err := c.GetUserSubmissions(ctx, testUser)
	if err != nil || len(urls) != 2 {
		t.Errorf("GetUserSubmissions = %v, %v", urls, err)
	}
}

func TestClient_ContractStatsAndToken(t *testing.T) {
	fb := newFakeBackend()
	c := newTestClient(t, fb, false)
	ctx := context.Background()

	fb.setOutput(t, ContestABI, "totalSubmissions", big.NewInt(12))
	fb.setOutput(t, ContestABI, "totalRewardsDistributed", big.NewInt(5e18))
	fb.setOutput(t, ContestABI, "totalVotesCast", big.NewInt(40))
	fb.setOutput(t, ContestABI, "baseRewardAmount", big.NewInt(1e18))
	fb.setOutput(t, ContestABI, "bonusMultiplier", big.NewInt(2))

	stats, err := c.ContractStats(ctx)
	if err != nil {
		t.Fatalf("ContractStats error: %v", err)
	}
	if stats.TotalSubmissions != 12 || stats.TotalVotesCast != 40 || stats.BonusMultiplier != 2 ||
		FormatEther(stats.TotalRewardsDistributed) != "5.0" || FormatEther(stats.BaseRewardAmount) != "1.0" {
		t.Errorf("unexpected stats %+v", stats)
	}

	fb.setOutput(t, TokenABI, "name", "Diwali Token")
	fb.setOutput(t, TokenABI, "symbol", "DWL")
	fb.setOutput(t, TokenABI, "decimals", uint8(18))
	fb.setOutput(t, TokenABI, "totalSupply", big.NewInt(7e18))
	fb.setOutput(t, TokenABI, "maxSupply", big.NewInt(9e18))
	fb.setOutput(t, TokenABI, "balanceOf", big.NewInt(1e17))

	info, err := c.TokenInfo(ctx)
	if err != nil {
		t.Fatalf("TokenInfo error: %v", err)
	}
	if info.Name != "Diwali Token" || info.Symbol != "DWL" || info.Decimals != 18 || FormatEther(info.MaxSupply) != "9.0" {
		t.Errorf("unexpected token info %+v", info)
	}
	bal, err := c.TokenBalance(ctx, testUser)
	if err != nil || FormatEther(bal) != "0.1" {
		t.Errorf("TokenBalance = %v, %v", bal, err)
	}
}

func TestClient_ContractStats_Error(t *testing.T) {
	fb := newFakeBackend()
	c := newTestClient(t, fb, false)
	fb.setOutput(t, ContestABI, "totalSubmissions", big.NewInt(1))
	if _, err := c.ContractStats(context.Background()); !errors.Is(err, ErrExecutionReverted) {
		t.Errorf("expected ErrExecutionReverted for missing outputs, got %v", err)
	}
}

func scoredReceipt(t *testing.T, score uint8) *types.Receipt {
	l := buildLog(t, EventSubmissionScored,
		[]common.Hash{testRequestID, common.BytesToHash(testUser.Bytes())}, "img", score)
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(100), Logs: []*types.Log{&l}}
}

func TestClient_ScoreSubmission(t *testing.T) {
	fb := newFakeBackend()
	c := newTestClient(t, fb, true)
	fb.onSend = func(tx *types.Transaction) *types.Receipt { return scoredReceipt(t, 8) }

	res, err := c.ScoreSubmission(context.Background(), testRequestID, 8, true)
	if err != nil {
		t.Fatalf("ScoreSubmission error: %v", err)
	}
	if res.Event == nil || res.Event.Score != 8 || res.Event.RequestID != testRequestID {
		t.Errorf("unexpected score result %+v", res)
	}

	if len(fb.sent) != 1 {
		t.Fatalf("expected one transaction, got %d", len(fb.sent))
	}
	tx := fb.sent[0]
	if tx.Gas() != 120000 {
		t.Errorf("expected buffered gas limit, got %d", tx.Gas())
	}
	if *tx.To() != testContest {
		t.Errorf("unexpected recipient %s", tx.To().Hex())
	}
	args, err := ContestABI.Methods["scoreSubmission"].Inputs.Unpack(tx.Data()[4:])
	if err != nil {
		t.Fatalf("unpack error: %v", err)
	}
	if args[1].(uint8) != 8 || args[2].(bool) != true {
		t.Errorf("unexpected calldata %v", args)
	}
	if res.TxHash != tx.Hash() {
		t.Errorf("unexpected tx hash")
	}
}

func TestClient_Transact_Reverted(t *testing.T) {
	fb := newFakeBackend()
	c := newTestClient(t, fb, true)
	fb.onSend = func(tx *types.Transaction) *types.Receipt {
		return &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(100)}
	}
	if _, err := c.ScoreSubmission(context.Background(), testRequestID, 3, false); !errors.Is(err, ErrExecutionReverted) {
		t.Errorf("expected ErrExecutionReverted, got %v", err)
	}
}

func TestClient_DistributeReward(t *testing.T) {
	fb := newFakeBackend()
	c := newTestClient(t, fb, true)
	amount := big.NewInt(2e18)

	fb.onSend = func(tx *types.Transaction) *types.Receipt {
		l := buildLog(t, EventRewardDistributed, []common.Hash{common.BytesToHash(testUser.Bytes())}, amount, "img")
		return &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(100), Logs: []*types.Log{&l}}
	}
	res, err := c.DistributeReward(context.Background(), "img")
	if err != nil {
		t.Fatalf("DistributeReward error: %v", err)
	}
	if !res.Rewarded || res.Recipient != testUser || res.Amount.Cmp(amount) != 0 {
		t.Errorf("unexpected reward result %+v", res)
	}

	fb.onSend = func(tx *types.Transaction) *types.Receipt {
		return &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(100)}
	}
	res, err = c.DistributeReward(context.Background(), "img")
	if err != nil {
		t.Fatalf("DistributeReward error: %v", err)
	}
	if res.Rewarded {
		t.Error("expected no reward without RewardDistributed event")
	}
}

func TestClient_ProcessAIScore_MissingEvent(t *testing.T) {
	fb := newFakeBackend()
	c := newTestClient(t, fb, true)
	fb.onSend = func(tx *types.Transaction) *types.Receipt {
		return &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(100)}
	}
	if _, err := c.ProcessAIScore(context.Background(), testRequestID); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("expected ErrEventNotFound, got %v", err)
	}
}

func TestClient_ReadOnly(t *testing.T) {
	fb := newFakeBackend()
	c := newTestClient(t, fb, false)
	if _, err := c.ScoreSubmission(context.Background(), testRequestID, 5, false); !errors.Is(err, ErrReadOnly) {
		t.Errorf("expected ErrReadOnly, got %v", err)
	}
	if _, err := c.BatchDistributeRewards(context.Background(), []string{"a"}); !errors.Is(err, ErrReadOnly) {
		t.Errorf("expected ErrReadOnly, got %v", err)
	}
}

func TestClient_BlockTime(t *testing.T) {
	c := newTestClient(t, newFakeBackend(), false)
	ts, err := c.BlockTime(context.Background(), 42)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if ts != 1_700_000_042 {
		t.Errorf("expected 1700000042, got %d", ts)
	}
}
