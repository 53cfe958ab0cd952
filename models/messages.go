package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// OrderBookMessage is the typed form of a snapshot or diff payload expected
// by the order-book tracking subsystem: price levels as [price, size] string
// pairs plus the update identifier that orders the message.
type OrderBookMessage struct {
	Symbol    string
	Bids      [][]string
	Asks      [][]string
	UpdateID  int64
	Timestamp time.Time
}

// TradeMessage is the typed form of a single executed trade record.
type TradeMessage struct {
	Symbol    string
	TradeID   string
	Side      string
	Price     string
	Size      string
	Sequence  string
	Timestamp time.Time
}

type depthEnvelope struct {
	Code string `json:"code"`
	Data struct {
		Time     int64      `json:"time"`
		Sequence string     `json:"sequence"`
		Bids     [][]string `json:"bids"`
		Asks     [][]string `json:"asks"`
	} `json:"data"`
}

// SnapshotMessageFromExchange converts a raw REST depth response into an
// order book message. The symbol travels as metadata because the depth
// endpoint does not echo it back.
func SnapshotMessageFromExchange(raw []byte, symbol string, ts time.Time) (OrderBookMessage, error) {
	var env depthEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return OrderBookMessage{}, &MalformedPayloadError{Kind: "snapshot", Err: err}
	}
	seq, err := strconv.ParseInt(env.Data.Sequence, 10, 64)
	if err != nil && env.Data.Sequence != "" {
		return OrderBookMessage{}, &MalformedPayloadError{Kind: "snapshot", Err: err}
	}
	return OrderBookMessage{
		Symbol:    symbol,
		Bids:      env.Data.Bids,
		Asks:      env.Data.Asks,
		UpdateID:  seq,
		Timestamp: ts,
	}, nil
}

type level2Change struct {
	SequenceStart int64  `json:"sequenceStart"`
	SequenceEnd   int64  `json:"sequenceEnd"`
	Symbol        string `json:"symbol"`
	Changes       struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	} `json:"changes"`
}

// DiffMessageFromExchange converts a raw level2 websocket payload into an
// order book message.
func DiffMessageFromExchange(raw []byte, ts time.Time) (OrderBookMessage, error) {
	var change level2Change
	if err := json.Unmarshal(raw, &change); err != nil {
		return OrderBookMessage{}, &MalformedPayloadError{Kind: "diff", Err: err}
	}
	return OrderBookMessage{
		Symbol:    change.Symbol,
		Bids:      change.Changes.Bids,
		Asks:      change.Changes.Asks,
		UpdateID:  change.SequenceEnd,
		Timestamp: ts,
	}, nil
}

type matchRecord struct {
	Sequence string `json:"sequence"`
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Price    string `json:"price"`
	Size     string `json:"size"`
	TradeID  string `json:"tradeId"`
	Time     string `json:"time"`
}

// TradeMessageFromExchange converts one raw trade record into a typed trade
// message. The symbol parameter is a fallback for records that omit it.
func TradeMessageFromExchange(raw []byte, symbol string, ts time.Time) (TradeMessage, error) {
	var rec matchRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return TradeMessage{}, &MalformedPayloadError{Kind: "trade", Err: err}
	}
	if rec.Symbol == "" {
		rec.Symbol = symbol
	}
	return TradeMessage{
		Symbol:    rec.Symbol,
		TradeID:   rec.TradeID,
		Side:      rec.Side,
		Price:     rec.Price,
		Size:      rec.Size,
		Sequence:  rec.Sequence,
		Timestamp: ts,
	}, nil
}

// TradeRecords splits a "message" payload from a match topic into individual
// trade records. The venue batches records under the instrument's data; a
// bare object counts as a batch of one.
func TradeRecords(data json.RawMessage) ([]json.RawMessage, error) {
	var batch []json.RawMessage
	if err := json.Unmarshal(data, &batch); err == nil {
		return batch, nil
	}
	var single map[string]json.RawMessage
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, &MalformedPayloadError{Kind: "trade", Err: err}
	}
	return []json.RawMessage{data}, nil
}
