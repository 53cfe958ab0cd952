package channel

import (
	"context"
	"sync"
	"time"

	"kucoinflow/logger"
	"kucoinflow/models"
)

type Stats struct {
	SnapshotsSent    int64
	SnapshotsDropped int64
	DiffsSent        int64
	DiffsDropped     int64
	TradesSent       int64
	TradesDropped    int64
}

// Channels bundles the three per-stream output channels read by the external
// order-book tracker. Sends never block: when a consumer falls behind the
// buffer, the event is dropped and the drop is logged and counted.
type Channels struct {
	Snapshots chan models.SnapshotEvent
	Diffs     chan models.DiffEvent
	Trades    chan models.TradeEvent

	stats      Stats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(snapshotBuffer, diffBuffer, tradeBuffer int, log *logger.Log) *Channels {
	c := &Channels{
		Snapshots: make(chan models.SnapshotEvent, snapshotBuffer),
		Diffs:     make(chan models.DiffEvent, diffBuffer),
		Trades:    make(chan models.TradeEvent, tradeBuffer),
		log:       log,
	}

	log.WithComponent("channels").WithFields(logger.Fields{
		"snapshot_buffer": snapshotBuffer,
		"diff_buffer":     diffBuffer,
		"trade_buffer":    tradeBuffer,
	}).Info("output channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Snapshots)
	close(c.Diffs)
	close(c.Trades)
	c.log.WithComponent("channels").Info("output channels closed")
}

func (c *Channels) SendSnapshot(ctx context.Context, ev models.SnapshotEvent) bool {
	select {
	case c.Snapshots <- ev:
		c.statsMutex.Lock()
		c.stats.SnapshotsSent++
		c.statsMutex.Unlock()
		logger.IncrementSnapshotRead(len(ev.Data))
		return true
	case <-ctx.Done():
		return false
	default:
		c.statsMutex.Lock()
		c.stats.SnapshotsDropped++
		c.statsMutex.Unlock()
		c.log.WithComponent("snapshot_channel").WithFields(logger.Fields{"symbol": ev.Symbol}).Warn("snapshot channel full, dropping event")
		return false
	}
}

func (c *Channels) SendDiff(ctx context.Context, ev models.DiffEvent) bool {
	select {
	case c.Diffs <- ev:
		c.statsMutex.Lock()
		c.stats.DiffsSent++
		c.statsMutex.Unlock()
		logger.IncrementDiffRead(len(ev.Data))
		return true
	case <-ctx.Done():
		return false
	default:
		c.statsMutex.Lock()
		c.stats.DiffsDropped++
		c.statsMutex.Unlock()
		c.log.WithComponent("diff_channel").WithFields(logger.Fields{"symbol": ev.Symbol}).Warn("diff channel full, dropping event")
		return false
	}
}

func (c *Channels) SendTrade(ctx context.Context, ev models.TradeEvent) bool {
	select {
	case c.Trades <- ev:
		c.statsMutex.Lock()
		c.stats.TradesSent++
		c.statsMutex.Unlock()
		logger.IncrementTradeRead(len(ev.Data))
		return true
	case <-ctx.Done():
		return false
	default:
		c.statsMutex.Lock()
		c.stats.TradesDropped++
		c.statsMutex.Unlock()
		c.log.WithComponent("trade_channel").WithFields(logger.Fields{"symbol": ev.Symbol}).Warn("trade channel full, dropping event")
		return false
	}
}

func (c *Channels) GetStats() Stats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}

// StartMetricsReporting periodically logs channel depths so a stalled
// consumer shows up before drops begin.
func (c *Channels) StartMetricsReporting(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.log.LogMetric("channels", "snapshot_channel_size", len(c.Snapshots), "gauge", nil)
				c.log.LogMetric("channels", "diff_channel_size", len(c.Diffs), "gauge", nil)
				c.log.LogMetric("channels", "trade_channel_size", len(c.Trades), "gauge", nil)
			}
		}
	}()
}
