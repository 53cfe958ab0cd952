package snapshot

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	appconfig "kucoinflow/config"
	"kucoinflow/internal/book"
	"kucoinflow/logger"
)

const depthBody = `{"code":"200000","data":{"time":1698000000000,"sequence":"42","bids":[["50000","1"]],"asks":[["50001","2"]]}}`

func testLog() *logger.Log {
	log := logger.GetLogger()
	log.SetOutput(io.Discard)
	return log
}

func fetcherConfig(depthURL string, pacingMs, penaltyMs int) *appconfig.Config {
	return &appconfig.Config{
		Rest: appconfig.RestConfig{
			DepthURL:       depthURL,
			TimeoutMs:      5000,
			FetchPacingMs:  pacingMs,
			FetchPenaltyMs: penaltyMs,
			ConnectionPool: appconfig.ConnectionPoolConfig{
				MaxIdleConns:      2,
				MaxConnsPerHost:   2,
				IdleConnTimeoutMs: 60000,
			},
		},
	}
}

func TestFetchPreservesSymbolQuery(t *testing.T) {
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.RawQuery)
		w.Write([]byte(depthBody))
	}))
	defer srv.Close()

	f := NewFetcher(fetcherConfig(srv.URL, 1, 1), testLog())
	data, err := f.Fetch(context.Background(), "BTC-USDT")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(data) != depthBody {
		t.Errorf("unexpected body: %s", data)
	}
	if q := gotQuery.Load(); q != "symbol=BTC-USDT" {
		t.Errorf("expected symbol to survive unmangled, got %q", q)
	}
}

func TestFetchAllPacesRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(depthBody))
	}))
	defer srv.Close()

	pacing := 30 * time.Millisecond
	f := NewFetcher(fetcherConfig(srv.URL, int(pacing.Milliseconds()), 1), testLog())

	pairs := make([]string, 10)
	for i := range pairs {
		pairs[i] = "BTC-USDT"
	}

	start := time.Now()
	events, err := f.FetchAll(context.Background(), pairs)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	if len(events) != 10 {
		t.Fatalf("expected 10 snapshots, got %d", len(events))
	}
	// First request passes immediately, the other nine wait one pacing
	// interval each.
	if elapsed < 9*pacing {
		t.Errorf("batch finished in %v, expected at least %v", elapsed, 9*pacing)
	}
}

func TestFetchAllSkipsFailingInstrument(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) == 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(depthBody))
	}))
	defer srv.Close()

	f := NewFetcher(fetcherConfig(srv.URL, 1, 1), testLog())
	events, err := f.FetchAll(context.Background(), []string{"A-USDT", "B-USDT", "C-USDT", "D-USDT", "E-USDT"})
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 snapshots after one failure, got %d", len(events))
	}
	for _, ev := range events {
		if ev.Symbol == "C-USDT" {
			t.Error("failed instrument should not produce a snapshot")
		}
	}
}

func TestFetchAllStopsOnCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(depthBody))
	}))
	defer srv.Close()

	f := NewFetcher(fetcherConfig(srv.URL, 50, 1), testLog())
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(60 * time.Millisecond)
		cancel()
	}()

	pairs := make([]string, 100)
	for i := range pairs {
		pairs[i] = "BTC-USDT"
	}

	events, err := f.FetchAll(ctx, pairs)
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(events) == 0 || len(events) == len(pairs) {
		t.Errorf("expected a partial batch, got %d of %d", len(events), len(pairs))
	}
}

type fakeBook struct {
	bids     [][]string
	asks     [][]string
	updateID int64
}

func (b *fakeBook) ApplySnapshot(bids, asks [][]string, updateID int64) {
	b.bids, b.asks, b.updateID = bids, asks, updateID
}

func TestBootstrapSeedsBooks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(depthBody))
	}))
	defer srv.Close()

	f := NewFetcher(fetcherConfig(srv.URL, 1, 1), testLog())
	entries, err := f.Bootstrap(context.Background(), []string{"BTC-USDT", "ETH-USDT"}, func() book.OrderBook {
		return &fakeBook{}
	})
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 tracker entries, got %d", len(entries))
	}

	entry, ok := entries["BTC-USDT"]
	if !ok {
		t.Fatal("missing BTC-USDT entry")
	}
	b := entry.Book.(*fakeBook)
	if b.updateID != 42 {
		t.Errorf("unexpected update id: %d", b.updateID)
	}
	if len(b.bids) != 1 || b.bids[0][0] != "50000" {
		t.Errorf("unexpected bids: %v", b.bids)
	}
}
