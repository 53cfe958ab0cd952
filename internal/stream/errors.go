package stream

import "errors"

var (
	// ErrRecoverableTimeout marks a connection declared dead by the
	// two-stage liveness check: the receive window lapsed and the follow-up
	// ping went unanswered. Always recoverable via reconnect.
	ErrRecoverableTimeout = errors.New("websocket liveness probe timed out")

	// ErrConnectionClosed marks a peer-initiated close. Treated exactly
	// like a liveness failure: the session ends, the loop reconnects.
	ErrConnectionClosed = errors.New("websocket connection closed")

	errNoInstruments = errors.New("no tradable instruments resolved")
)
