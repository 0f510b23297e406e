package watcher

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	testAddr  = common.HexToAddress("0x00000000000000000000000000000000000d1a11")
	testTopic = common.HexToHash("0xfeed")
)

type fakeSource struct {
	mu       sync.Mutex
	latest   uint64
	logs     []types.Log
	queries  []ethereum.FilterQuery
	subErr   error
	subLogs  []types.Log
	subCalls int
	// heads are returned by successive BlockNumber calls before latest
	heads []uint64
}

func (f *fakeSource) BlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.heads) > 0 {
		f.latest, f.heads = f.heads[0], f.heads[1:]
	}
	return f.latest, nil
}

func (f *fakeSource) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	var out []types.Log
	for _, l := range f.logs {
		if l.BlockNumber >= q.FromBlock.Uint64() && l.BlockNumber <= q.ToBlock.Uint64() {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeSource) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	f.mu.Lock()
	f.subCalls++
	subErr, logs := f.subErr, f.subLogs
	f.mu.Unlock()
	if subErr != nil {
		return nil, subErr
	}
	return event.NewSubscription(func(quit <-chan struct{}) error {
		for _, l := range logs {
			select {
			case ch <- l:
			case <-quit:
				return nil
			}
		}
		<-quit
		return nil
	}), nil
}

func (f *fakeSource) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func mkLog(block uint64, index uint, tx string) types.Log {
	return types.Log{
		Address:     testAddr,
		Topics:      []common.Hash{testTopic},
		BlockNumber: block,
		Index:       index,
		TxHash:      common.HexToHash(tx),
	}
}

type collector struct {
	mu   sync.Mutex
	got  []types.Log
	fail bool
}

func (c *collector) handle(ctx context.Context, l types.Log) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, l)
	if c.fail {
		return errors.New("handler failed")
	}
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWatcher_BackfillOrderAndRange(t *testing.T) {
	src := &fakeSource{
		latest: 5000,
		logs: []types.Log{
			mkLog(4999, 1, "0x2"),
			mkLog(100, 0, "0x0"), // outside the lookback range
			mkLog(4000, 0, "0x1"),
			mkLog(4999, 0, "0x3"),
		},
	}
	c := &collector{}
	w := New(src, Config{Address: testAddr, Topic: testTopic, Lookback: 1500, PollWindow: 1000, PollInterval: time.Hour}, c.handle)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitFor(t, func() bool { return c.count() == 3 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}

	want := []string{"0x1", "0x3", "0x2"}
	for i, l := range c.got {
		if l.TxHash != common.HexToHash(want[i]) {
			t.Errorf("log %d: got tx %s, want %s", i, l.TxHash.Hex(), want[i])
		}
	}
	if n := src.queryCount(); n != 2 {
		t.Errorf("expected backfill in 2 chunks, got %d queries", n)
	}
	first := src.queries[0]
	if first.FromBlock.Uint64() != 3500 || first.ToBlock.Uint64() != 4499 {
		t.Errorf("unexpected first chunk %v..%v", first.FromBlock, first.ToBlock)
	}
	if first.Addresses[0] != testAddr || first.Topics[0][0] != testTopic {
		t.Errorf("unexpected filter %+v", first)
	}
}

func TestWatcher_PollDedupes(t *testing.T) {
	src := &fakeSource{latest: 10, logs: []types.Log{mkLog(9, 0, "0xa")}}
	c := &collector{fail: true}
	w := New(src, Config{Address: testAddr, Topic: testTopic, Lookback: 100, PollWindow: 50, PollInterval: time.Millisecond}, c.handle)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitFor(t, func() bool { return src.queryCount() >= 5 })
	src.mu.Lock()
	src.latest = 12
	src.logs = append(src.logs, mkLog(12, 0, "0xb"))
	src.mu.Unlock()
	waitFor(t, func() bool { return c.count() == 2 })

	// a few more polls must not redeliver either log
	n := src.queryCount()
	waitFor(t, func() bool { return src.queryCount() >= n+5 })
	cancel()
	<-done

	if c.count() != 2 {
		t.Errorf("expected exactly 2 deliveries despite handler errors, got %d", c.count())
	}
}

func TestWatcher_SubscribeAndFallback(t *testing.T) {
	src := &fakeSource{latest: 1, subLogs: []types.Log{mkLog(2, 0, "0xc"), mkLog(2, 0, "0xc")}}
	c := &collector{}
	w := New(src, Config{Address: testAddr, Topic: testTopic, PollInterval: time.Hour, Subscribe: true}, c.handle)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	waitFor(t, func() bool { return c.count() == 1 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}

	failing := &fakeSource{latest: 1, subErr: errors.New("notifications not supported")}
	failing.logs = []types.Log{mkLog(1, 0, "0xd")}
	c2 := &collector{}
	w2 := New(failing, Config{Address: testAddr, Topic: testTopic, PollInterval: time.Millisecond, Subscribe: true}, c2.handle)
	ctx2, cancel2 := context.WithCancel(context.Background())
	done2 := make(chan error, 1)
	go func() { done2 <- w2.Run(ctx2) }()
	waitFor(t, func() bool { return failing.queryCount() >= 3 })
	cancel2()
	<-done2
	if c2.count() != 1 {
		t.Errorf("expected backfilled log once, got %d", c2.count())
	}
}

func TestWatcher_SubscribeCatchesUpAfterBackfill(t *testing.T) {
	// block 103 is mined after the backfill read head 100 but before the
	// subscription starts delivering
	src := &fakeSource{
		heads: []uint64{100, 105},
		logs:  []types.Log{mkLog(99, 0, "0x10"), mkLog(103, 0, "0x11")},
	}
	c := &collector{}
	w := New(src, Config{Address: testAddr, Topic: testTopic, Lookback: 10, PollInterval: time.Hour, Subscribe: true}, c.handle)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	waitFor(t, func() bool { return c.count() == 2 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}

	if c.got[1].TxHash != common.HexToHash("0x11") {
		t.Errorf("expected log from block 103 second, got %s", c.got[1].TxHash.Hex())
	}
	src.mu.Lock()
	last := src.queries[len(src.queries)-1]
	src.mu.Unlock()
	if last.FromBlock.Uint64() != 101 || last.ToBlock.Uint64() != 105 {
		t.Errorf("expected catch-up over 101..105, got %v..%v", last.FromBlock, last.ToBlock)
	}
}

func TestWatcher_PollResumesFromLastSyncedBlock(t *testing.T) {
	src := &fakeSource{latest: 100, logs: []types.Log{mkLog(100, 0, "0x20")}}
	c := &collector{}
	w := New(src, Config{Address: testAddr, Topic: testTopic, Lookback: 10, PollWindow: 5, PollInterval: time.Millisecond}, c.handle)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	waitFor(t, func() bool { return c.count() == 1 })

	// the head jumps further than one poll window
	src.mu.Lock()
	src.latest = 120
	src.logs = append(src.logs, mkLog(102, 0, "0x21"))
	src.mu.Unlock()
	waitFor(t, func() bool { return c.count() == 2 })
	cancel()
	<-done
}

func TestWatcher_SkipsRemovedLogs(t *testing.T) {
	removed := mkLog(1, 0, "0xe")
	removed.Removed = true
	src := &fakeSource{latest: 1, logs: []types.Log{removed}}
	c := &collector{}
	w := New(src, Config{Address: testAddr, Topic: testTopic, PollInterval: time.Hour}, c.handle)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	waitFor(t, func() bool { return src.queryCount() >= 1 })
	cancel()
	<-done
	if c.count() != 0 {
		t.Errorf("expected removed log to be skipped")
	}
}

func TestWatcher_RememberIsBounded(t *testing.T) {
	w := New(&fakeSource{}, Config{}, func(context.Context, types.Log) error { return nil })
	for i := 0; i < maxRemembered+10; i++ {
		w.remember(big.NewInt(int64(i)).String())
	}
	if len(w.seen) != maxRemembered || len(w.order) != maxRemembered {
		t.Errorf("expected %d remembered keys, got %d/%d", maxRemembered, len(w.seen), len(w.order))
	}
	if _, ok := w.seen["0"]; ok {
		t.Error("expected oldest key to be evicted")
	}
}
