package models

import "time"

// Output events handed to the order-book tracking subsystem. Each carries the
// raw exchange payload alongside instrument metadata; per-producer emission
// order is preserved by the owning loop.

type SnapshotEvent struct {
	Symbol    string
	Data      []byte
	Timestamp time.Time
}

type DiffEvent struct {
	Symbol    string
	Data      []byte
	Timestamp time.Time
}

type TradeEvent struct {
	Symbol    string
	Data      []byte
	Timestamp time.Time
}
