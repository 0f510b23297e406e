package core

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/backend/database"
	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/chain"
	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/ipfs"
	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/notify"
	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/scoring"
	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/social"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	testContest   = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	testSubmitter = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	testRequestID = common.HexToHash("0x01")
)

type scoreCall struct {
	RequestID common.Hash
	Score     uint8
	Approved  bool
}

type fakeContest struct {
	mu sync.Mutex

	configured  bool
	canTransact bool

	submissions  map[string]*chain.Submission
	votes        []chain.Vote
	userStats    *chain.UserStats
	tokenBalance *big.Int
	stats        *chain.ContractStats
	token        *chain.TokenInfo
	active       []string

	getCalls     int
	scoreOnPoll  int // GetSubmission reports a score from this call on
	scoreCalls   []scoreCall
	rewardCalls  []string
	batchCalls   [][]string
	rewardAmount *big.Int
	scoreErr     error
	estimateErr  error
	estimated    []*big.Int
	processCalls []common.Hash
	waitCalls    []time.Duration
}

func newFakeContest() *fakeContest {
	return &fakeContest{
		configured:   true,
		canTransact:  true,
		submissions:  map[string]*chain.Submission{},
		rewardAmount: new(big.Int).Mul(big.NewInt(15), big.NewInt(1e17)),
	}
}

func (f *fakeContest) Configured() bool               { return f.configured }
func (f *fakeContest) CanTransact() bool              { return f.canTransact }
func (f *fakeContest) ContestAddress() common.Address { return testContest }
func (f *fakeContest) ExplorerTxURL(hash string) string {
	return "https://sepolia.basescan.org/tx/" + hash
}

func (f *fakeContest) EstimateGas(ctx context.Context, from common.Address, data []byte, value *big.Int) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.estimated = append(f.estimated, value)
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return 120_000, nil
}

func (f *fakeContest) BlockTime(ctx context.Context, number uint64) (uint64, error) {
	return 1_700_000_000 + number, nil
}

func (f *fakeContest) GetSubmission(ctx context.Context, imageURL string) (*chain.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.scoreOnPoll > 0 {
		sub := &chain.Submission{ImageURL: imageURL, Submitter: testSubmitter, Timestamp: 1_700_000_000, RewardAmount: new(big.Int)}
		if f.getCalls >= f.scoreOnPoll {
			sub.AIScore = 7
		}
		return sub, nil
	}
	if sub, ok := f.submissions[imageURL]; ok {
		return sub, nil
	}
	return &chain.Submission{RewardAmount: new(big.Int)}, nil
}

func (f *fakeContest) GetActiveSubmissions(ctx context.Context) ([]string, error) {
	return f.active, nil
}

func (f *fakeContest) GetUserStats(ctx context.Context, user common.Address) (*chain.UserStats, error) {
	if f.userStats == nil {
		return &chain.UserStats{TotalRewards: new(big.Int)}, nil
	}
	return f.userStats, nil
}

func (f *fakeContest) GetUserSubmissions(ctx context.Context, user common.Address) ([]string, error) {
	return []string{"https://gateway.pinata.cloud/ipfs/QmA"}, nil
}

func (f *fakeContest) GetSubmissionVotes(ctx context.Context, imageURL string) ([]chain.Vote, error) {
	return f.votes, nil
}

func (f *fakeContest) ContractStats(ctx context.Context) (*chain.ContractStats, error) {
	if f.stats == nil {
		return nil, chain.ErrNotConfigured
	}
	return f.stats, nil
}

func (f *fakeContest) TokenInfo(ctx context.Context) (*chain.TokenInfo, error) {
	if f.token == nil {
		return nil, chain.ErrNotConfigured
	}
	return f.token, nil
}

func (f *fakeContest) TokenBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	if f.tokenBalance == nil {
		return nil, chain.ErrNotConfigured
	}
	return f.tokenBalance, nil
}

func (f *fakeContest) ContractBalance(ctx context.Context) (*big.Int, error) {
	return big.NewInt(2e15), nil
}

func (f *fakeContest) ScoreSubmission(ctx context.Context, requestID common.Hash, score uint8, approved bool) (*chain.ScoreResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scoreErr != nil {
		return nil, f.scoreErr
	}
	f.scoreCalls = append(f.scoreCalls, scoreCall{requestID, score, approved})
	return &chain.ScoreResult{TxHash: common.HexToHash("0x5c0e")}, nil
}

func (f *fakeContest) DistributeReward(ctx context.Context, imageURL string) (*chain.RewardResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rewardCalls = append(f.rewardCalls, imageURL)
	res := &chain.RewardResult{TxHash: common.HexToHash("0x4e3a"), ImageURL: imageURL}
	if f.rewardAmount != nil {
		res.Rewarded = true
		res.Amount = f.rewardAmount
		res.Recipient = testSubmitter
	}
	return res, nil
}

func (f *fakeContest) BatchDistributeRewards(ctx context.Context, imageURLs []string) (*chain.BatchRewardResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls = append(f.batchCalls, imageURLs)
	res := &chain.BatchRewardResult{TxHash: common.HexToHash("0xba7c")}
	for _, u := range imageURLs {
		res.Rewards = append(res.Rewards, &chain.RewardDistributed{Recipient: testSubmitter, Amount: big.NewInt(1e18), ImageURL: u})
	}
	return res, nil
}

func (f *fakeContest) ProcessAIScore(ctx context.Context, requestID common.Hash) (*chain.SubmissionScored, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processCalls = append(f.processCalls, requestID)
	if f.scoreErr != nil {
		return nil, f.scoreErr
	}
	return &chain.SubmissionScored{
		RequestID: requestID,
		Submitter: testSubmitter,
		ImageURL:  "ipfs://QmProcessed",
		Score:     8,
		Raw:       types.Log{TxHash: common.HexToHash("0x9c0e"), BlockNumber: 42},
	}, nil
}

func (f *fakeContest) WaitForTransaction(ctx context.Context, hash string, interval time.Duration) (*chain.TxInfo, error) {
	f.mu.Lock()
	f.waitCalls = append(f.waitCalls, interval)
	f.mu.Unlock()
	if hash == "reverted" {
		return &chain.TxInfo{Hash: hash, Status: chain.TxError}, chain.ErrExecutionReverted
	}
	return f.TransactionStatus(ctx, hash)
}

func (f *fakeContest) TransactionStatus(ctx context.Context, hash string) (*chain.TxInfo, error) {
	if hash == "bad" {
		return nil, chain.ErrInvalidHash
	}
	return &chain.TxInfo{Hash: hash, Status: chain.TxConfirmed}, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(ctx context.Context, event notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return errors.New("webhook unavailable")
}

func (n *recordingNotifier) kinds() []notify.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.Kind, len(n.events))
	for i, e := range n.events {
		out[i] = e.Kind
	}
	return out
}

type testEnv struct {
	service  *CoreService
	contest  *fakeContest
	ipfs     *ipfs.Client
	db       database.DatabaseService
	notifier *recordingNotifier
	sleeps   int
}

// newTestEnv uses in-memory SQLite, dev mode IPFS backed by a gateway that
// knows nothing, and the brightness scorer.
func newTestEnv(t *testing.T, mutate func(*ServiceConfig)) *testEnv {
	t.Helper()
	config := DefaultConfig()
	if mutate != nil {
		mutate(config)
	}

	db, err := database.NewDatabase("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Expected no error creating database, got %v", err)
	}
	store, err := social.NewStore("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Expected no error creating social store, got %v", err)
	}
	gateway := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(func() {
		gateway.Close()
		_ = db.Close()
		_ = store.Close()
	})

	env := &testEnv{
		contest:  newFakeContest(),
		ipfs:     ipfs.NewClient(ipfs.Config{Gateway: gateway.URL + "/ipfs/", RetryMax: 0}),
		db:       db,
		notifier: &recordingNotifier{},
	}
	service, err := NewCoreService(config, Dependencies{
		Database: db,
		Social:   store,
		Chain:    env.contest,
		IPFS:     env.ipfs,
		Scorer:   scoring.NewBrightnessScorer(),
		Notifier: env.notifier,
	})
	if err != nil {
		t.Fatalf("Expected no error creating service, got %v", err)
	}
	service.sleep = func(ctx context.Context, d time.Duration) error {
		env.sleeps++
		return ctx.Err()
	}
	env.service = service
	return env
}

func solidPNG(t *testing.T, c color.Color, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode test PNG: %v", err)
	}
	return buf.Bytes()
}

func eventLog(t *testing.T, event string, indexed []common.Hash, data ...interface{}) types.Log {
	t.Helper()
	ev := chain.ContestABI.Events[event]
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		t.Fatalf("Failed to pack %s: %v", event, err)
	}
	return types.Log{
		Address:     testContest,
		Topics:      append([]common.Hash{ev.ID}, indexed...),
		Data:        packed,
		BlockNumber: 10,
		TxHash:      common.HexToHash("0x7e57"),
	}
}

func createdLog(t *testing.T, requestID common.Hash, imageURL, ipfsHash string) types.Log {
	return eventLog(t, chain.EventSubmissionCreated,
		[]common.Hash{requestID, common.BytesToHash(testSubmitter.Bytes())}, imageURL, ipfsHash)
}

func scoredLog(t *testing.T, requestID common.Hash, imageURL string, score uint8) types.Log {
	return eventLog(t, chain.EventSubmissionScored,
		[]common.Hash{requestID, common.BytesToHash(testSubmitter.Bytes())}, imageURL, score)
}

func voteLog(t *testing.T, voter common.Address, imageURL string, score uint8) types.Log {
	return eventLog(t, chain.EventVoteCast, []common.Hash{common.BytesToHash(voter.Bytes())}, imageURL, score)
}

type nopLogSource struct{}

func (nopLogSource) BlockNumber(ctx context.Context) (uint64, error) { return 0, nil }

func (nopLogSource) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (nopLogSource) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("not supported")
}
