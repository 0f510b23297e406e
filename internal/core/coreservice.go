package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/backend/commandstructure"
	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/backend/database"
	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/chain"
	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/ipfs"
	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/notify"
	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/scoring"
	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/social"
	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/watcher"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Contest is the subset of *chain.Client the service drives.
type Contest interface {
	Configured() bool
	CanTransact() bool
	ContestAddress() common.Address
	ExplorerTxURL(hash string) string
	EstimateGas(ctx context.Context, from common.Address, data []byte, value *big.Int) (uint64, error)
	BlockTime(ctx context.Context, number uint64) (uint64, error)

	GetSubmission(ctx context.Context, imageURL string) (*chain.Submission, error)
	GetActiveSubmissions(ctx context.Context) ([]string, error)
	GetUserStats(ctx context.Context, user common.Address) (*chain.UserStats, error)
	GetUserSubmissions(ctx context.Context, user common.Address) ([]string, error)
	GetSubmissionVotes(ctx context.Context, imageURL string) ([]chain.Vote, error)
	ContractStats(ctx context.Context) (*chain.ContractStats, error)
	TokenInfo(ctx context.Context) (*chain.TokenInfo, error)
	TokenBalance(ctx context.Context, account common.Address) (*big.Int, error)
	ContractBalance(ctx context.Context) (*big.Int, error)

	ScoreSubmission(ctx context.Context, requestID common.Hash, score uint8, approved bool) (*chain.ScoreResult, error)
	DistributeReward(ctx context.Context, imageURL string) (*chain.RewardResult, error)
	BatchDistributeRewards(ctx context.Context, imageURLs []string) (*chain.BatchRewardResult, error)
	ProcessAIScore(ctx context.Context, requestID common.Hash) (*chain.SubmissionScored, error)
	TransactionStatus(ctx context.Context, hash string) (*chain.TxInfo, error)
	WaitForTransaction(ctx context.Context, hash string, interval time.Duration) (*chain.TxInfo, error)
}

// Pinner is the subset of *ipfs.Client the service drives.
type Pinner interface {
	Pin(ctx context.Context, data []byte) (string, error)
	Fetch(ctx context.Context, ref string) ([]byte, error)
	GatewayURL(hash string) string
	ToHTTP(uri string) string
}

type Dependencies struct {
	Database database.DatabaseService
	Social   social.Store
	Chain    Contest
	IPFS     Pinner
	Scorer   scoring.Scorer
	Notifier notify.Notifier
	// LogSource feeds the watchers; nil disables them.
	LogSource watcher.LogSource
}

type CoreService struct {
	config          *ServiceConfig
	databaseService database.DatabaseService
	socialStore     social.Store
	chain           Contest
	ipfs            Pinner
	scorer          scoring.Scorer
	notifier        notify.Notifier
	logSource       watcher.LogSource

	pipeline  []commandstructure.CommandConfig
	oracleFee *big.Int

	// one oracle submission at a time
	oracleMu sync.Mutex
	closers  []func() error
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewCoreService(config *ServiceConfig, deps Dependencies) (*CoreService, error) {
	fee, err := chain.ParseEther(config.Chain.OracleFee)
	if err != nil {
		return nil, fmt.Errorf("invalid oracle fee: %w", err)
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &CoreService{
		config:          config,
		databaseService: deps.Database,
		socialStore:     deps.Social,
		chain:           deps.Chain,
		ipfs:            deps.IPFS,
		scorer:          deps.Scorer,
		notifier:        notifier,
		logSource:       deps.LogSource,
		pipeline:        config.PipelineCommands(),
		oracleFee:       fee,
		sleep:           sleepContext,
	}, nil
}

// Build wires the production dependencies described by config.
func Build(ctx context.Context, config *ServiceConfig) (*CoreService, error) {
	var closers []func() error
	fail := func(err error) (*CoreService, error) {
		for _, c := range closers {
			_ = c()
		}
		return nil, err
	}

	databaseService, err := database.NewDatabase(config.Database.Type, config.Database.ConnectionString)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize database: %w", err))
	}
	closers = append(closers, databaseService.Close)
	slog.Info("database initialized successfully", "type", config.Database.Type)

	store, err := social.NewStore(config.Social.Type, config.Social.ConnectionString)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize social store: %w", err))
	}
	closers = append(closers, store.Close)

	client, closeChain, err := DialChain(ctx, config.Chain)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() error { closeChain(); return nil })

	scorer, err := NewScorer(config.Scoring)
	if err != nil {
		return fail(err)
	}

	notifier, err := notify.New(config.Notifications.DiscordWebhookURL)
	if err != nil {
		return fail(err)
	}

	service, err := NewCoreService(config, Dependencies{
		Database:  databaseService,
		Social:    store,
		Chain:     client,
		IPFS:      NewPinner(config.IPFS),
		Scorer:    scorer,
		Notifier:  notifier,
		LogSource: client.Backend(),
	})
	if err != nil {
		return fail(err)
	}
	service.closers = closers
	slog.Info("core service initialized",
		"scorer", scorer.Name(),
		"contract", client.ContestAddress().Hex(),
		"oracle", client.CanTransact())
	return service, nil
}

func NewPinner(cfg IPFSConfig) *ipfs.Client {
	return ipfs.NewClient(ipfs.Config{
		Gateway:        cfg.Gateway,
		PinataEndpoint: cfg.PinataEndpoint,
		APIKey:         cfg.APIKey,
		SecretKey:      cfg.SecretKey,
		Timeout:        cfg.Timeout,
		RetryMax:       cfg.RetryMax,
	})
}

func NewScorer(cfg ScoringConfig) (scoring.Scorer, error) {
	return scoring.NewScorer(scoring.Config{
		Type:   cfg.Type,
		APIKey: cfg.APIKey,
		Model:  cfg.Model,
	})
}

// DialChain connects the contract client described by cfg.
func DialChain(ctx context.Context, cfg ChainConfig) (*chain.Client, func(), error) {
	client, ec, err := chain.Dial(ctx, chain.Config{
		RPCURL:           cfg.RPCURL,
		ChainID:          cfg.ChainID,
		ContractAddress:  cfg.ContractAddress,
		TokenAddress:     cfg.TokenAddress,
		OperatorKey:      cfg.OperatorKey,
		GasBufferPercent: cfg.GasBufferPercent,
		Confirmations:    cfg.Confirmations,
		ExplorerURL:      cfg.BlockExplorerURL,
	})
	if err != nil {
		return nil, nil, err
	}
	return client, ec.Close, nil
}

func (service *CoreService) Config() *ServiceConfig {
	return service.config
}

// Watchers returns the gallery and vote indexers and, when an operator key
// is configured, the oracle. Callers run each in its own goroutine.
func (service *CoreService) Watchers() []*watcher.Watcher {
	if service.logSource == nil || !service.chain.Configured() {
		return nil
	}
	base := watcher.Config{
		Address:      service.chain.ContestAddress(),
		Lookback:     service.config.Chain.GalleryLookbackBlocks,
		PollInterval: service.config.Chain.PollInterval,
		PollWindow:   service.config.Chain.PollWindowBlocks,
		Subscribe:    service.config.Chain.Subscribe(),
	}

	gallery := base
	gallery.Name = "gallery"
	gallery.Topic = chain.EventTopic(chain.EventSubmissionScored)
	votes := base
	votes.Name = "votes"
	votes.Topic = chain.EventTopic(chain.EventVoteCast)
	watchers := []*watcher.Watcher{
		watcher.New(service.logSource, gallery, service.HandleSubmissionScored),
		watcher.New(service.logSource, votes, service.HandleVoteCast),
	}

	if service.chain.CanTransact() {
		oracle := base
		oracle.Name = "oracle"
		oracle.Topic = chain.EventTopic(chain.EventSubmissionCreated)
		watchers = append(watchers, watcher.New(service.logSource, oracle, service.HandleSubmissionCreated))
	} else {
		slog.Warn("operator key not configured, oracle watcher disabled")
	}
	return watchers
}

func (service *CoreService) Close() error {
	var errs []error
	for i := len(service.closers) - 1; i >= 0; i-- {
		if err := service.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (service *CoreService) notify(ctx context.Context, event notify.Event) {
	if err := service.notifier.Notify(ctx, event); err != nil {
		slog.Warn("failed to send notification", "kind", event.Kind, "request_id", event.RequestID, "error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// logTime is the block time of l, or now when the header is unavailable.
func (service *CoreService) logTime(ctx context.Context, l types.Log) int64 {
	ts, err := service.chain.BlockTime(ctx, l.BlockNumber)
	if err != nil {
		slog.Warn("failed to read block time", "block", l.BlockNumber, "error", err)
		return time.Now().Unix()
	}
	return int64(ts)
}
