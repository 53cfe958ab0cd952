package snapshot

import (
	"context"

	"github.com/google/uuid"

	"kucoinflow/internal/book"
	"kucoinflow/logger"
	"kucoinflow/models"
)

// Bootstrap seeds one order book per instrument from a fresh REST snapshot
// and returns the tracker entries keyed by symbol. Instruments whose
// snapshot fetch or parse fails are skipped; the rest are still seeded.
func (f *Fetcher) Bootstrap(ctx context.Context, pairs []string, newBook book.Factory) (map[string]book.TrackerEntry, error) {
	batchID := uuid.NewString()
	log := f.log.WithComponent("snapshot_fetcher").WithFields(logger.Fields{"batch_id": batchID})

	events, err := f.FetchAll(ctx, pairs)
	if err != nil {
		return nil, err
	}

	entries := make(map[string]book.TrackerEntry, len(events))
	for i, ev := range events {
		msg, err := models.SnapshotMessageFromExchange(ev.Data, ev.Symbol, ev.Timestamp)
		if err != nil {
			log.WithFields(logger.Fields{"symbol": ev.Symbol}).WithError(err).Error("error parsing snapshot")
			continue
		}

		b := newBook()
		b.ApplySnapshot(msg.Bids, msg.Asks, msg.UpdateID)
		entries[ev.Symbol] = book.TrackerEntry{
			Symbol:    ev.Symbol,
			Timestamp: ev.Timestamp,
			Book:      b,
		}

		log.WithFields(logger.Fields{
			"symbol":   ev.Symbol,
			"progress": i + 1,
			"total":    len(events),
		}).Info("initialized order book")
	}

	return entries, nil
}
