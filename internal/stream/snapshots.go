package stream

import (
	"context"
	"time"

	appconfig "kucoinflow/config"
	"kucoinflow/internal/catalog"
	"kucoinflow/internal/channel"
	"kucoinflow/internal/snapshot"
	"kucoinflow/logger"
	"kucoinflow/models"
)

// SnapshotLoop periodically re-fetches full REST snapshots for every
// instrument in the catalog. Cycles are aligned to top-of-hour boundaries:
// after covering all instruments the loop sleeps until the next full hour
// rather than a fixed interval from its start time.
type SnapshotLoop struct {
	cfg     *appconfig.Config
	catalog *catalog.Catalog
	fetcher *snapshot.Fetcher
	out     *channel.Channels
	log     *logger.Log
}

func NewSnapshotLoop(cfg *appconfig.Config, cat *catalog.Catalog, fetcher *snapshot.Fetcher, out *channel.Channels, log *logger.Log) *SnapshotLoop {
	return &SnapshotLoop{cfg: cfg, catalog: cat, fetcher: fetcher, out: out, log: log}
}

func (l *SnapshotLoop) Run(ctx context.Context) {
	log := l.log.WithComponent("snapshot_loop")

	for {
		if err := l.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				log.Info("snapshot loop stopped")
				return
			}
			log.WithError(err).Error("unexpected error in snapshot cycle")
			if sleepCtx(ctx, l.cfg.SnapshotPenalty()) != nil {
				log.Info("snapshot loop stopped")
				return
			}
			continue
		}

		if sleepCtx(ctx, nextHourWait(time.Now().UTC())) != nil {
			log.Info("snapshot loop stopped")
			return
		}
	}
}

// cycle covers every instrument once. A failing instrument is logged and
// penalized, never aborting the rest of the cycle; only cancellation
// escapes.
func (l *SnapshotLoop) cycle(ctx context.Context) error {
	log := l.log.WithComponent("snapshot_loop")

	pairs := l.catalog.TradingPairs(ctx)
	for _, pair := range pairs {
		data, err := l.fetcher.Fetch(ctx, pair)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.WithFields(logger.Fields{"symbol": pair}).WithError(err).Error("error fetching snapshot")
			if err := sleepCtx(ctx, l.cfg.SnapshotPenalty()); err != nil {
				return err
			}
			continue
		}

		l.out.SendSnapshot(ctx, models.SnapshotEvent{
			Symbol:    pair,
			Data:      data,
			Timestamp: time.Now().UTC(),
		})
		log.WithFields(logger.Fields{"symbol": pair}).Debug("saved order book snapshot")

		if err := sleepCtx(ctx, l.cfg.SnapshotInterval()); err != nil {
			return err
		}
	}
	return nil
}

// nextHourWait returns the wall-clock time remaining until the next
// top-of-hour boundary.
func nextHourWait(now time.Time) time.Duration {
	return now.Truncate(time.Hour).Add(time.Hour).Sub(now)
}
