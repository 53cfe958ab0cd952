package snapshot

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	appconfig "kucoinflow/config"
	"kucoinflow/logger"
	"kucoinflow/models"
)

// Fetcher retrieves full order-book depth snapshots over REST. Batch
// fetches are strictly sequential and paced to honor the venue's limit of
// 100 requests per 10 seconds.
type Fetcher struct {
	cfg     *appconfig.Config
	client  *http.Client
	log     *logger.Log
	limiter *rate.Limiter
}

func NewFetcher(cfg *appconfig.Config, log *logger.Log) *Fetcher {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Rest.ConnectionPool.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.Rest.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:     cfg.Rest.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout(),
		DialContext: (&net.Dialer{
			Timeout: cfg.RestTimeout(),
		}).DialContext,
	}

	return &Fetcher{
		cfg:    cfg,
		client: &http.Client{Transport: transport, Timeout: cfg.RestTimeout()},
		log:    log,
		limiter: rate.NewLimiter(rate.Every(cfg.FetchPacing()), 1),
	}
}

// Fetch retrieves the depth snapshot for one instrument. The symbol is
// percent-encoded and appended as a literal query string: running it through
// url.Values would re-encode the whole parameter and mangle symbols
// containing '-'.
func (f *Fetcher) Fetch(ctx context.Context, pair string) ([]byte, error) {
	reqURL := f.cfg.Rest.DepthURL + "?symbol=" + url.QueryEscape(pair)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	res, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &models.NetworkError{Op: "fetching market snapshot for " + pair, Status: res.StatusCode}
	}

	return io.ReadAll(res.Body)
}

// FetchAll retrieves snapshots for the given instruments sequentially,
// pacing requests through the rate limiter. A failing instrument is logged,
// penalized with an extra delay and skipped; the batch never aborts. The
// returned slice holds whichever snapshots succeeded, in request order.
func (f *Fetcher) FetchAll(ctx context.Context, pairs []string) ([]models.SnapshotEvent, error) {
	log := f.log.WithComponent("snapshot_fetcher")

	events := make([]models.SnapshotEvent, 0, len(pairs))
	for _, pair := range pairs {
		if err := f.limiter.Wait(ctx); err != nil {
			return events, err
		}

		data, err := f.Fetch(ctx, pair)
		if err != nil {
			if ctx.Err() != nil {
				return events, ctx.Err()
			}
			log.WithFields(logger.Fields{"symbol": pair}).WithError(err).Error("error getting snapshot")
			if err := sleepCtx(ctx, f.cfg.FetchPenalty()); err != nil {
				return events, err
			}
			continue
		}

		events = append(events, models.SnapshotEvent{
			Symbol:    pair,
			Data:      data,
			Timestamp: time.Now().UTC(),
		})
	}
	return events, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
