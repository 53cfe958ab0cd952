// Package book defines the boundary to the order-book tracking subsystem.
// The book data structure and its diff-application algorithm live outside
// this service; the feed only needs a way to create books and seed them with
// an initial snapshot.
package book

import "time"

// OrderBook is the mutation entrypoint the tracker exposes for seeding a
// book from a REST snapshot.
type OrderBook interface {
	ApplySnapshot(bids [][]string, asks [][]string, updateID int64)
}

// Factory creates an empty order book for one instrument.
type Factory func() OrderBook

// TrackerEntry pairs an instrument with its seeded order book.
type TrackerEntry struct {
	Symbol    string
	Timestamp time.Time
	Book      OrderBook
}
