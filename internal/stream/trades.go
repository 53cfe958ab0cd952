package stream

import (
	"context"
	"strings"
	"time"

	appconfig "kucoinflow/config"
	"kucoinflow/internal/catalog"
	"kucoinflow/internal/channel"
	"kucoinflow/logger"
	"kucoinflow/models"
)

// TradeLoop streams executed trades over match topics, one TradeEvent per
// record, restarting the whole connect-subscribe-consume sequence after a
// fixed backoff on any non-cancellation failure.
type TradeLoop struct {
	cfg      *appconfig.Config
	catalog  *catalog.Catalog
	sessions *SessionManager
	out      *channel.Channels
	log      *logger.Log
}

func NewTradeLoop(cfg *appconfig.Config, cat *catalog.Catalog, sessions *SessionManager, out *channel.Channels, log *logger.Log) *TradeLoop {
	return &TradeLoop{cfg: cfg, catalog: cat, sessions: sessions, out: out, log: log}
}

func (l *TradeLoop) Run(ctx context.Context) {
	log := l.log.WithComponent("trade_loop")

	for {
		err := l.stream(ctx)
		if ctx.Err() != nil {
			log.Info("trade loop stopped")
			return
		}
		log.WithError(err).Error("unexpected error with websocket connection, retrying after backoff")
		if sleepCtx(ctx, l.cfg.ReconnectBackoff()) != nil {
			log.Info("trade loop stopped")
			return
		}
	}
}

func (l *TradeLoop) stream(ctx context.Context) error {
	pairs := l.catalog.TradingPairs(ctx)
	if len(pairs) == 0 {
		return errNoInstruments
	}

	topics := make([]string, len(pairs))
	for i, pair := range pairs {
		topics[i] = "/market/match:" + pair
	}

	sess, err := l.sessions.Open(ctx, topics, true)
	if err != nil {
		return err
	}
	defer sess.Close()

	log := l.log.WithComponent("trade_loop")
	for {
		msg, err := sess.Next(ctx)
		if err != nil {
			return err
		}

		symbol := topicSymbol(msg.Topic)
		records, err := models.TradeRecords(msg.Data)
		if err != nil {
			log.WithFields(logger.Fields{"symbol": symbol}).WithError(err).Warn("dropping malformed trade payload")
			continue
		}

		now := time.Now().UTC()
		for _, rec := range records {
			l.out.SendTrade(ctx, models.TradeEvent{
				Symbol:    symbol,
				Data:      rec,
				Timestamp: now,
			})
		}
	}
}

// topicSymbol extracts the instrument from a topic such as
// "/market/match:BTC-USDT".
func topicSymbol(topic string) string {
	if i := strings.LastIndex(topic, ":"); i >= 0 {
		return topic[i+1:]
	}
	return topic
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
