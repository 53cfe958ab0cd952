package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	appconfig "kucoinflow/config"
	"kucoinflow/logger"
	"kucoinflow/models"
)

// Catalog discovers tradable instruments and ranks them by USDT-normalized
// volume. Results are cached for the configured TTL; concurrent refresh
// triggers are collapsed into a single upstream fetch, with every waiter
// observing the same result.
type Catalog struct {
	cfg    *appconfig.Config
	client *http.Client
	log    *logger.Log

	mu     sync.RWMutex
	cached *models.CatalogSnapshot
	group  singleflight.Group

	now func() time.Time
}

func New(cfg *appconfig.Config, client *http.Client, log *logger.Log) *Catalog {
	if client == nil {
		client = &http.Client{Timeout: cfg.RestTimeout()}
	}
	return &Catalog{
		cfg:    cfg,
		client: client,
		log:    log,
		now:    time.Now,
	}
}

type symbolRecord struct {
	Symbol        string `json:"symbol"`
	BaseCurrency  string `json:"baseCurrency"`
	QuoteCurrency string `json:"quoteCurrency"`
	EnableTrading bool   `json:"enableTrading"`
}

type symbolsResponse struct {
	Code string         `json:"code"`
	Data []symbolRecord `json:"data"`
}

type tickerRecord struct {
	Symbol   string `json:"symbol"`
	Last     string `json:"last"`
	Vol      string `json:"vol"`
	VolValue string `json:"volValue"`
}

type tickersResponse struct {
	Code string `json:"code"`
	Data struct {
		Time   int64          `json:"time"`
		Ticker []tickerRecord `json:"ticker"`
	} `json:"data"`
}

// Markets returns the ranked catalog, refreshing it when the TTL has lapsed.
// Callers share the returned slice and must not mutate it.
func (c *Catalog) Markets(ctx context.Context) ([]models.TradingPair, error) {
	if pairs, ok := c.fresh(); ok {
		return pairs, nil
	}

	v, err, _ := c.group.Do("markets", func() (interface{}, error) {
		// A waiter that lost the race may arrive after the winning
		// refresh already stored a fresh snapshot.
		if pairs, ok := c.fresh(); ok {
			return pairs, nil
		}

		pairs, err := c.refresh(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cached = &models.CatalogSnapshot{Pairs: pairs, FetchedAt: c.now()}
		c.mu.Unlock()
		return pairs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.TradingPair), nil
}

func (c *Catalog) fresh() ([]models.TradingPair, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cached == nil {
		return nil, false
	}
	if c.now().Sub(c.cached.FetchedAt) >= c.cfg.CatalogTTL() {
		return nil, false
	}
	return c.cached.Pairs, true
}

// TradingPairs returns the ranked symbol list. Discovery failures degrade to
// an empty list with a logged warning; callers must tolerate empty output.
// A fixed symbol list in the configuration bypasses discovery.
func (c *Catalog) TradingPairs(ctx context.Context) []string {
	if len(c.cfg.Catalog.Symbols) > 0 {
		return append([]string(nil), c.cfg.Catalog.Symbols...)
	}

	pairs, err := c.Markets(ctx)
	if err != nil {
		c.log.WithComponent("catalog").WithError(err).Warn("error getting active exchange information, check network connection")
		return nil
	}

	symbols := make([]string, len(pairs))
	for i, p := range pairs {
		symbols[i] = p.Symbol
	}
	return symbols
}

// refresh fetches the instrument and ticker listings concurrently, joins
// tickers against enabled instruments and computes USDT cross rates.
func (c *Catalog) refresh(ctx context.Context) ([]models.TradingPair, error) {
	var symbols symbolsResponse
	var tickers tickersResponse

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.fetchJSON(gctx, c.cfg.Catalog.SymbolsURL, "fetching exchange information", &symbols)
	})
	g.Go(func() error {
		return c.fetchJSON(gctx, c.cfg.Catalog.TickerURL, "fetching markets information", &tickers)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	enabled := make(map[string]symbolRecord, len(symbols.Data))
	for _, s := range symbols.Data {
		if s.EnableTrading {
			enabled[s.Symbol] = s
		}
	}

	ticker := tickers.Data.Ticker
	pairs := make([]models.TradingPair, 0, len(ticker))
	for _, t := range ticker {
		s, ok := enabled[t.Symbol]
		if !ok {
			continue
		}
		vol := parseFloat(t.VolValue)
		pair := models.TradingPair{
			Symbol:     t.Symbol,
			BaseAsset:  s.BaseCurrency,
			QuoteAsset: s.QuoteCurrency,
			Volume:     vol,
		}
		pair.USDVolume = usdVolume(s.BaseCurrency, s.QuoteCurrency, vol, parseFloat(t.Last), ticker)
		pairs = append(pairs, pair)
	}

	sortByUSDVolume(pairs)

	c.log.WithComponent("catalog").WithFields(logger.Fields{
		"instruments": len(pairs),
		"tickers":     len(ticker),
	}).Info("market catalog refreshed")

	return pairs, nil
}

func (c *Catalog) fetchJSON(ctx context.Context, url, op string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &models.NetworkError{Op: op, Status: res.StatusCode}
	}
	return json.NewDecoder(res.Body).Decode(v)
}

// usdVolume derives the USDT-denominated volume for a pair. Direct USDT
// quotes pass through; inverse quotes divide by the last price; anything
// else needs a bridge ticker pairing the quote currency against USDT. The
// first bridge in ticker iteration order wins, which keeps the result
// deterministic when several candidates exist.
func usdVolume(base, quote string, vol, last float64, tickers []tickerRecord) *float64 {
	switch {
	case quote == "USDT":
		return &vol
	case base == "USDT":
		if last <= 0 {
			return nil
		}
		v := vol / last
		return &v
	default:
		for _, b := range tickers {
			bridgeBase, bridgeQuote, ok := splitSymbol(b.Symbol)
			if !ok {
				continue
			}
			if bridgeBase == quote && bridgeQuote == "USDT" {
				v := vol * parseFloat(b.VolValue)
				return &v
			}
			if bridgeBase == "USDT" && bridgeQuote == quote {
				bv := parseFloat(b.VolValue)
				if bv <= 0 {
					return nil
				}
				v := vol / bv
				return &v
			}
		}
		return nil
	}
}

func splitSymbol(symbol string) (base, quote string, ok bool) {
	parts := strings.SplitN(symbol, "-", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

// sortByUSDVolume orders pairs descending by USD volume; pairs without a
// derivable USD volume sort last.
func sortByUSDVolume(pairs []models.TradingPair) {
	sort.SliceStable(pairs, func(i, j int) bool {
		vi, vj := pairs[i].USDVolume, pairs[j].USDVolume
		switch {
		case vi == nil:
			return false
		case vj == nil:
			return true
		default:
			return *vi > *vj
		}
	})
}
