package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"kucoinflow/logger"
	"kucoinflow/models"
)

// livenessState tracks the two-stage heartbeat: a session is Waiting while
// traffic flows, Probing after the receive window lapses and a ping is in
// flight, and dead once the probe goes unanswered.
type livenessState int

const (
	stateWaiting livenessState = iota
	stateProbing
)

// Session is one live websocket connection. The read pump feeds raw frames
// into msgs; Next classifies them and runs the liveness state machine. The
// underlying socket is released on every exit path.
type Session struct {
	conn Conn
	log  *logger.Log
	id   string

	messageTimeout time.Duration
	pingTimeout    time.Duration

	msgs    chan []byte
	readErr chan error
	done    chan struct{}

	closeOnce sync.Once
}

func newSession(conn Conn, messageTimeout, pingTimeout time.Duration, log *logger.Log) *Session {
	s := &Session{
		conn:           conn,
		log:            log,
		id:             newSessionID(),
		messageTimeout: messageTimeout,
		pingTimeout:    pingTimeout,
		msgs:           make(chan []byte, 256),
		readErr:        make(chan error, 1),
		done:           make(chan struct{}),
	}
	go s.readPump()
	return s
}

func (s *Session) readPump() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case s.readErr <- err:
			case <-s.done:
			}
			return
		}
		select {
		case s.msgs <- data:
		case <-s.done:
			return
		}
	}
}

// Close releases the socket. Safe to call from any exit path, repeatedly.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if err := s.conn.Close(); err != nil {
			s.log.WithComponent("session").WithFields(logger.Fields{"session_id": s.id}).WithError(err).Debug("error closing websocket")
		}
	})
}

// Next blocks until the next data message arrives or the session dies.
// Heartbeat traffic (pong, ack, welcome) is consumed silently, unrecognized
// types are logged at debug level and dropped, malformed frames are logged
// and dropped. When no frame arrives inside the receive window an
// application-level ping is sent; a session whose ping also goes unanswered
// is closed and reported as ErrRecoverableTimeout. A peer-initiated close
// surfaces as ErrConnectionClosed. Both are recoverable; cancellation is
// returned as-is and is not.
func (s *Session) Next(ctx context.Context) (models.InboundMessage, error) {
	log := s.log.WithComponent("session").WithFields(logger.Fields{"session_id": s.id})

	state := stateWaiting
	timer := time.NewTimer(s.messageTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Close()
			return models.InboundMessage{}, ctx.Err()

		case err := <-s.readErr:
			s.Close()
			return models.InboundMessage{}, fmt.Errorf("%w: %v", ErrConnectionClosed, err)

		case raw := <-s.msgs:
			var msg models.InboundMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				log.WithError(err).Warn("dropping malformed inbound message")
				continue
			}

			// Any well-formed frame proves the connection alive.
			state = stateWaiting
			resetTimer(timer, s.messageTimeout)

			switch msg.Type {
			case models.MessageTypePong, models.MessageTypeAck, models.MessageTypeWelcome:
			case models.MessageTypeMessage:
				return msg, nil
			default:
				log.WithFields(logger.Fields{"type": msg.Type}).Debug("unrecognized message received from websocket")
			}

		case <-timer.C:
			if state == stateProbing {
				log.Warn("websocket ping timed out, going to reconnect")
				s.Close()
				return models.InboundMessage{}, ErrRecoverableTimeout
			}

			state = stateProbing
			ping := models.PingRequest{ID: nextRequestID(), Type: "ping"}
			if err := s.conn.WriteJSON(ping); err != nil {
				s.Close()
				return models.InboundMessage{}, fmt.Errorf("%w: ping write failed: %v", ErrRecoverableTimeout, err)
			}
			timer.Reset(s.pingTimeout)
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
