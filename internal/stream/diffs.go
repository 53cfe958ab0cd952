package stream

import (
	"context"
	"time"

	appconfig "kucoinflow/config"
	"kucoinflow/internal/catalog"
	"kucoinflow/internal/channel"
	"kucoinflow/logger"
	"kucoinflow/models"
)

// DiffLoop streams level2 order-book deltas, one DiffEvent per message.
// Same resilience contract as TradeLoop: fixed backoff on failure,
// immediate unwind on cancellation.
type DiffLoop struct {
	cfg      *appconfig.Config
	catalog  *catalog.Catalog
	sessions *SessionManager
	out      *channel.Channels
	log      *logger.Log
}

func NewDiffLoop(cfg *appconfig.Config, cat *catalog.Catalog, sessions *SessionManager, out *channel.Channels, log *logger.Log) *DiffLoop {
	return &DiffLoop{cfg: cfg, catalog: cat, sessions: sessions, out: out, log: log}
}

func (l *DiffLoop) Run(ctx context.Context) {
	log := l.log.WithComponent("diff_loop")

	for {
		err := l.stream(ctx)
		if ctx.Err() != nil {
			log.Info("diff loop stopped")
			return
		}
		log.WithError(err).Error("unexpected error with websocket connection, retrying after backoff")
		if sleepCtx(ctx, l.cfg.ReconnectBackoff()) != nil {
			log.Info("diff loop stopped")
			return
		}
	}
}

func (l *DiffLoop) stream(ctx context.Context) error {
	pairs := l.catalog.TradingPairs(ctx)
	if len(pairs) == 0 {
		return errNoInstruments
	}

	topics := make([]string, len(pairs))
	for i, pair := range pairs {
		topics[i] = "/market/level2:" + pair
	}

	sess, err := l.sessions.Open(ctx, topics, false)
	if err != nil {
		return err
	}
	defer sess.Close()

	for {
		msg, err := sess.Next(ctx)
		if err != nil {
			return err
		}

		l.out.SendDiff(ctx, models.DiffEvent{
			Symbol:    topicSymbol(msg.Topic),
			Data:      msg.Data,
			Timestamp: time.Now().UTC(),
		})
	}
}
