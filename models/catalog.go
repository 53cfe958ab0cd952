package models

import "time"

// TradingPair describes one tradable instrument joined from the venue's
// instrument and ticker listings. Volume is the raw quote-denominated value
// reported by the ticker; USDVolume stays nil when no USDT cross rate could
// be derived, which excludes the pair from USD-ranked output but keeps it in
// the raw catalog.
type TradingPair struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string
	Volume     float64
	USDVolume  *float64
}

// CatalogSnapshot is what the market catalog caches: the ranked pairs plus
// the wall-clock time of the refresh that produced them.
type CatalogSnapshot struct {
	Pairs     []TradingPair
	FetchedAt time.Time
}
