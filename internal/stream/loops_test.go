package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	appconfig "kucoinflow/config"
	"kucoinflow/internal/catalog"
	"kucoinflow/internal/channel"
)

func loopConfig(tokenURL string, symbols ...string) *appconfig.Config {
	cfg := managerConfig(tokenURL)
	cfg.Catalog = appconfig.CatalogConfig{
		SymbolsURL: "http://127.0.0.1:1",
		TickerURL:  "http://127.0.0.1:1",
		TTLMinutes: 30,
		Symbols:    symbols,
	}
	return cfg
}

func TestTradeLoopFansOutBatchRecords(t *testing.T) {
	srv := newTokenServer(t, nil)
	cfg := loopConfig(srv.URL, "BTC-USDT")

	conn := newFakeConn()
	conn.frames <- []byte(`{"type":"ack","id":"1"}`)
	conn.frames <- []byte(`{"type":"message","topic":"/market/match:BTC-USDT","subject":"trade.l3match","data":[{"tradeId":"a","price":"50000"},{"tradeId":"b","price":"50001"}]}`)

	mgr := NewSessionManager(cfg, testLog())
	mgr.dial = func(ctx context.Context, wsURL string) (Conn, error) {
		return conn, nil
	}

	out := channel.NewChannels(16, 16, 16, testLog())
	loop := NewTradeLoop(cfg, catalog.New(cfg, nil, testLog()), mgr, out, testLog())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	for i := 0; i < 2; i++ {
		select {
		case ev := <-out.Trades:
			if ev.Symbol != "BTC-USDT" {
				t.Errorf("unexpected symbol: %s", ev.Symbol)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for trade event %d", i)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("trade loop did not stop on cancellation")
	}
}

func TestDiffLoopForwardsMessages(t *testing.T) {
	srv := newTokenServer(t, nil)
	cfg := loopConfig(srv.URL, "ETH-USDT")

	conn := newFakeConn()
	conn.frames <- []byte(`{"type":"message","topic":"/market/level2:ETH-USDT","subject":"trade.l2update","data":{"sequenceStart":1,"sequenceEnd":2,"symbol":"ETH-USDT","changes":{"bids":[],"asks":[["3000","1","2"]]}}}`)

	mgr := NewSessionManager(cfg, testLog())
	mgr.dial = func(ctx context.Context, wsURL string) (Conn, error) {
		return conn, nil
	}

	out := channel.NewChannels(16, 16, 16, testLog())
	loop := NewDiffLoop(cfg, catalog.New(cfg, nil, testLog()), mgr, out, testLog())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	select {
	case ev := <-out.Diffs:
		if ev.Symbol != "ETH-USDT" {
			t.Errorf("unexpected symbol: %s", ev.Symbol)
		}
		if len(ev.Data) == 0 {
			t.Error("expected raw diff payload")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for diff event")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("diff loop did not stop on cancellation")
	}
}

func TestTradeLoopRetriesAfterBackoff(t *testing.T) {
	var tokenCalls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&tokenCalls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := loopConfig(srv.URL, "BTC-USDT")
	cfg.Stream.ReconnectBackoffMs = 5

	mgr := NewSessionManager(cfg, testLog())
	out := channel.NewChannels(1, 1, 1, testLog())
	loop := NewTradeLoop(cfg, catalog.New(cfg, nil, testLog()), mgr, out, testLog())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	if n := atomic.LoadInt64(&tokenCalls); n < 2 {
		t.Errorf("expected repeated connection attempts, got %d", n)
	}
}

func TestDiffLoopCancellationDuringBackoff(t *testing.T) {
	// Discovery fails (no reachable catalog, no pinned symbols), so the
	// loop lands in its reconnect backoff immediately.
	cfg := loopConfig("http://127.0.0.1:1")
	cfg.Stream.ReconnectBackoffMs = 60000

	mgr := NewSessionManager(cfg, testLog())
	out := channel.NewChannels(1, 1, 1, testLog())
	loop := NewDiffLoop(cfg, catalog.New(cfg, nil, testLog()), mgr, out, testLog())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cancellation during backoff should unwind immediately")
	}
}

func TestTopicSymbol(t *testing.T) {
	if got := topicSymbol("/market/match:BTC-USDT"); got != "BTC-USDT" {
		t.Errorf("unexpected symbol: %s", got)
	}
	if got := topicSymbol("/market/level2:ETH-BTC"); got != "ETH-BTC" {
		t.Errorf("unexpected symbol: %s", got)
	}
	if got := topicSymbol("no-separator"); got != "no-separator" {
		t.Errorf("unexpected symbol: %s", got)
	}
}

func TestNextHourWait(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 7, 23, 0, time.UTC)
	if got := nextHourWait(now); got != 52*time.Minute+37*time.Second {
		t.Errorf("unexpected wait: %v", got)
	}

	top := time.Date(2024, 3, 15, 13, 0, 0, 0, time.UTC)
	if got := nextHourWait(top); got != time.Hour {
		t.Errorf("expected a full hour at the boundary, got %v", got)
	}
}
