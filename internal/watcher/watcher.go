package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const maxRemembered = 100_000

// LogSource is satisfied by *ethclient.Client.
type LogSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
}

// Handler processes one log. Errors are logged and do not stop the watcher.
type Handler func(ctx context.Context, log types.Log) error

type Config struct {
	Name         string
	Address      common.Address
	Topic        common.Hash
	Lookback     uint64
	PollInterval time.Duration
	PollWindow   uint64
	// Subscribe tries eth_subscribe first; only websocket endpoints support it.
	Subscribe bool
}

// Watcher follows one event of one contract: a backfill over the lookback
// range, then a live subscription or a polling loop. Every log reaches the
// handler at most once per process.
type Watcher struct {
	src     LogSource
	cfg     Config
	handler Handler

	// synced is the last block whose logs have all been fetched
	synced uint64

	seen  map[string]struct{}
	order []string
}

func New(src LogSource, cfg Config, handler Handler) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.PollWindow == 0 {
		cfg.PollWindow = 2000
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Topic.Hex()
	}
	return &Watcher{
		src:     src,
		cfg:     cfg,
		handler: handler,
		seen:    make(map[string]struct{}),
	}
}

// Run blocks until ctx is cancelled. It returns nil on cancellation and an
// error only when the initial backfill cannot start.
func (w *Watcher) Run(ctx context.Context) error {
	latest, err := w.src.BlockNumber(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%s watcher: failed to read block number: %w", w.cfg.Name, err)
	}
	w.backfill(ctx, latest)

	if w.cfg.Subscribe {
		err := w.subscribe(ctx)
		if ctx.Err() != nil {
			return nil
		}
		slog.Warn("log subscription unavailable, falling back to polling", "watcher", w.cfg.Name, "error", err)
	}
	w.poll(ctx)
	return nil
}

func (w *Watcher) query(from, to uint64) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{w.cfg.Address},
		Topics:    [][]common.Hash{{w.cfg.Topic}},
	}
}

// backfill walks [latest-lookback, latest] in PollWindow sized chunks.
func (w *Watcher) backfill(ctx context.Context, latest uint64) {
	from := uint64(0)
	if latest > w.cfg.Lookback {
		from = latest - w.cfg.Lookback
	}
	slog.Info("backfilling logs", "watcher", w.cfg.Name, "from", from, "to", latest)
	w.fetchRange(ctx, from, latest)
	w.synced = latest
}

// fetchRange fetches [from, to] in PollWindow sized chunks. Failed chunks
// are logged and skipped.
func (w *Watcher) fetchRange(ctx context.Context, from, to uint64) {
	for start := from; start <= to; start += w.cfg.PollWindow {
		if ctx.Err() != nil {
			return
		}
		end := start + w.cfg.PollWindow - 1
		if end > to {
			end = to
		}
		if err := w.fetch(ctx, start, end); err != nil {
			slog.Error("log fetch failed", "watcher", w.cfg.Name, "from", start, "to", end, "error", err)
		}
	}
}

func (w *Watcher) fetch(ctx context.Context, from, to uint64) error {
	logs, err := w.src.FilterLogs(ctx, w.query(from, to))
	if err != nil {
		return err
	}
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})
	for _, l := range logs {
		if ctx.Err() != nil {
			return nil
		}
		w.deliver(ctx, l)
	}
	return nil
}

// subscribe follows new logs live. Blocks mined since the last fetch are
// caught up once the subscription is in place; dedupe absorbs the overlap.
func (w *Watcher) subscribe(ctx context.Context) error {
	q := w.query(w.synced+1, 0)
	q.ToBlock = nil

	ch := make(chan types.Log, 64)
	sub, err := w.src.SubscribeFilterLogs(ctx, q, ch)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()
	slog.Info("subscribed to logs", "watcher", w.cfg.Name)

	latest, err := w.src.BlockNumber(ctx)
	if err != nil {
		return err
	}
	if latest > w.synced {
		w.fetchRange(ctx, w.synced+1, latest)
		w.synced = latest
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			if err == nil {
				err = errors.New("subscription closed")
			}
			return err
		case l := <-ch:
			w.deliver(ctx, l)
			if l.BlockNumber > 0 && l.BlockNumber-1 > w.synced {
				w.synced = l.BlockNumber - 1
			}
		}
	}
}

// poll re-reads the last PollWindow blocks every PollInterval, reaching
// further back when the previous fetch ended earlier.
func (w *Watcher) poll(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		latest, err := w.src.BlockNumber(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("poll failed to read block number", "watcher", w.cfg.Name, "error", err)
			}
			continue
		}
		from := uint64(0)
		if latest > w.cfg.PollWindow {
			from = latest - w.cfg.PollWindow
		}
		if w.synced+1 < from {
			from = w.synced + 1
		}
		w.fetchRange(ctx, from, latest)
		if latest > w.synced {
			w.synced = latest
		}
	}
}

func (w *Watcher) deliver(ctx context.Context, l types.Log) {
	if l.Removed {
		return
	}
	key := fmt.Sprintf("%s:%d", l.TxHash.Hex(), l.Index)
	if _, ok := w.seen[key]; ok {
		return
	}
	w.remember(key)

	if err := w.handler(ctx, l); err != nil {
		slog.Error("log handler failed", "watcher", w.cfg.Name, "tx", l.TxHash.Hex(), "index", l.Index, "error", err)
	}
}

func (w *Watcher) remember(key string) {
	w.seen[key] = struct{}{}
	w.order = append(w.order, key)
	if len(w.order) > maxRemembered {
		oldest := w.order[0]
		w.order = w.order[1:]
		delete(w.seen, oldest)
	}
}
