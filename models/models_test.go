package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseConnectionToken(t *testing.T) {
	raw := []byte(`{"code":"200000","data":{"token":"abc123","instanceServers":[{"endpoint":"wss://push1.example.com/endpoint","protocol":"websocket","pingInterval":50000,"pingTimeout":10000}]}}`)

	tk, err := ParseConnectionToken(raw)
	if err != nil {
		t.Fatalf("ParseConnectionToken failed: %v", err)
	}
	if tk.Endpoint != "wss://push1.example.com/endpoint" {
		t.Errorf("unexpected endpoint: %s", tk.Endpoint)
	}
	if tk.Token != "abc123" {
		t.Errorf("unexpected token: %s", tk.Token)
	}
}

func TestParseConnectionTokenMissingServers(t *testing.T) {
	_, err := ParseConnectionToken([]byte(`{"code":"200000","data":{"token":"abc123","instanceServers":[]}}`))
	var malformed *MalformedPayloadError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedPayloadError, got %v", err)
	}
}

func TestSubscribeRequestPrivateChannelSerialization(t *testing.T) {
	private := false
	withFlag, err := json.Marshal(SubscribeRequest{ID: 1, Type: "subscribe", Topic: "/market/match:BTC-USDT", PrivateChannel: &private, Response: true})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(withFlag) != `{"id":1,"type":"subscribe","topic":"/market/match:BTC-USDT","privateChannel":false,"response":true}` {
		t.Errorf("unexpected trade subscription payload: %s", withFlag)
	}

	withoutFlag, err := json.Marshal(SubscribeRequest{ID: 2, Type: "subscribe", Topic: "/market/level2:BTC-USDT", Response: true})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(withoutFlag) != `{"id":2,"type":"subscribe","topic":"/market/level2:BTC-USDT","response":true}` {
		t.Errorf("unexpected level2 subscription payload: %s", withoutFlag)
	}
}

func TestSnapshotMessageFromExchange(t *testing.T) {
	raw := []byte(`{"code":"200000","data":{"time":1698000000000,"sequence":"3262786978","bids":[["0.05","100"]],"asks":[["0.06","50"]]}}`)
	ts := time.Now()

	msg, err := SnapshotMessageFromExchange(raw, "ETH-BTC", ts)
	if err != nil {
		t.Fatalf("SnapshotMessageFromExchange failed: %v", err)
	}
	if msg.Symbol != "ETH-BTC" {
		t.Errorf("unexpected symbol: %s", msg.Symbol)
	}
	if msg.UpdateID != 3262786978 {
		t.Errorf("unexpected update id: %d", msg.UpdateID)
	}
	if len(msg.Bids) != 1 || msg.Bids[0][0] != "0.05" {
		t.Errorf("unexpected bids: %v", msg.Bids)
	}
}

func TestSnapshotMessageFromExchangeMalformed(t *testing.T) {
	_, err := SnapshotMessageFromExchange([]byte(`{"code":`), "ETH-BTC", time.Now())
	var malformed *MalformedPayloadError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedPayloadError, got %v", err)
	}
}

func TestDiffMessageFromExchange(t *testing.T) {
	raw := []byte(`{"sequenceStart":100,"sequenceEnd":102,"symbol":"BTC-USDT","changes":{"bids":[["50000","1","101"]],"asks":[["50001","2","102"]]}}`)

	msg, err := DiffMessageFromExchange(raw, time.Now())
	if err != nil {
		t.Fatalf("DiffMessageFromExchange failed: %v", err)
	}
	if msg.Symbol != "BTC-USDT" {
		t.Errorf("unexpected symbol: %s", msg.Symbol)
	}
	if msg.UpdateID != 102 {
		t.Errorf("unexpected update id: %d", msg.UpdateID)
	}
	if len(msg.Asks) != 1 || msg.Asks[0][0] != "50001" {
		t.Errorf("unexpected asks: %v", msg.Asks)
	}
}

func TestTradeMessageFromExchange(t *testing.T) {
	raw := []byte(`{"sequence":"123","symbol":"BTC-USDT","side":"buy","price":"50000","size":"0.1","tradeId":"t1","time":"1698000000000000000"}`)

	msg, err := TradeMessageFromExchange(raw, "fallback", time.Now())
	if err != nil {
		t.Fatalf("TradeMessageFromExchange failed: %v", err)
	}
	if msg.Symbol != "BTC-USDT" {
		t.Errorf("unexpected symbol: %s", msg.Symbol)
	}
	if msg.Side != "buy" || msg.Price != "50000" {
		t.Errorf("unexpected trade fields: %+v", msg)
	}
}

func TestTradeMessageFallbackSymbol(t *testing.T) {
	msg, err := TradeMessageFromExchange([]byte(`{"side":"sell"}`), "ETH-USDT", time.Now())
	if err != nil {
		t.Fatalf("TradeMessageFromExchange failed: %v", err)
	}
	if msg.Symbol != "ETH-USDT" {
		t.Errorf("expected fallback symbol, got %s", msg.Symbol)
	}
}

func TestTradeRecordsBatchAndSingle(t *testing.T) {
	batch, err := TradeRecords(json.RawMessage(`[{"tradeId":"a"},{"tradeId":"b"}]`))
	if err != nil {
		t.Fatalf("TradeRecords failed: %v", err)
	}
	if len(batch) != 2 {
		t.Errorf("expected 2 records, got %d", len(batch))
	}

	single, err := TradeRecords(json.RawMessage(`{"tradeId":"a"}`))
	if err != nil {
		t.Fatalf("TradeRecords failed: %v", err)
	}
	if len(single) != 1 {
		t.Errorf("expected 1 record, got %d", len(single))
	}

	if _, err := TradeRecords(json.RawMessage(`"garbage"`)); err == nil {
		t.Error("expected error for non-object payload")
	}
}

func TestNetworkError(t *testing.T) {
	err := &NetworkError{Op: "fetching markets information", Status: 502}
	if err.Error() != "fetching markets information: HTTP status is 502" {
		t.Errorf("unexpected error string: %s", err.Error())
	}
}
