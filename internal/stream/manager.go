package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	appconfig "kucoinflow/config"
	"kucoinflow/logger"
	"kucoinflow/models"
)

// Conn is the subset of *websocket.Conn the session relies on. Tests swap in
// a scripted implementation.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v interface{}) error
	Close() error
}

// requestID hands out ids for subscription and ping frames. Seeded with the
// process start time so ids stay unique across restarts the way the venue
// expects.
var requestID atomic.Int64

func init() {
	requestID.Store(time.Now().Unix())
}

func nextRequestID() int64 {
	return requestID.Add(1)
}

// SessionManager owns the websocket lifecycle for one stream kind: token
// acquisition, connection, subscription and session construction. Tokens are
// single-use; every Open acquires a fresh one.
type SessionManager struct {
	cfg    *appconfig.Config
	client *http.Client
	log    *logger.Log
	dial   func(ctx context.Context, wsURL string) (Conn, error)
}

func NewSessionManager(cfg *appconfig.Config, log *logger.Log) *SessionManager {
	dialer := &websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout(),
	}
	return &SessionManager{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RestTimeout()},
		log:    log,
		dial: func(ctx context.Context, wsURL string) (Conn, error) {
			conn, _, err := dialer.DialContext(ctx, wsURL, nil)
			return conn, err
		},
	}
}

// Token POSTs to the bullet endpoint with an empty body and returns the
// single-use connection token.
func (m *SessionManager) Token(ctx context.Context) (models.ConnectionToken, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.Rest.TokenURL, nil)
	if err != nil {
		return models.ConnectionToken{}, err
	}

	res, err := m.client.Do(req)
	if err != nil {
		return models.ConnectionToken{}, err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return models.ConnectionToken{}, &models.NetworkError{Op: "fetching websocket connection data", Status: res.StatusCode}
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return models.ConnectionToken{}, err
	}
	return models.ParseConnectionToken(body)
}

// Open acquires a fresh token, connects and subscribes one topic per
// instrument. withPrivateFlag controls whether the subscription carries an
// explicit privateChannel=false field (trade topics do, level2 does not).
func (m *SessionManager) Open(ctx context.Context, topics []string, withPrivateFlag bool) (*Session, error) {
	tk, err := m.Token(ctx)
	if err != nil {
		return nil, err
	}

	wsURL := fmt.Sprintf("%s?token=%s&acceptUserMessage=true", tk.Endpoint, tk.Token)
	conn, err := m.dial(ctx, wsURL)
	if err != nil {
		return nil, err
	}

	sess := newSession(conn, m.cfg.MessageTimeout(), m.cfg.PingTimeout(), m.log)

	var private *bool
	if withPrivateFlag {
		f := false
		private = &f
	}

	for _, topic := range topics {
		sub := models.SubscribeRequest{
			ID:             nextRequestID(),
			Type:           "subscribe",
			Topic:          topic,
			PrivateChannel: private,
			Response:       true,
		}
		if err := conn.WriteJSON(sub); err != nil {
			sess.Close()
			return nil, err
		}
	}

	m.log.WithComponent("session").WithFields(logger.Fields{
		"session_id": sess.id,
		"topics":     len(topics),
	}).Info("websocket session opened")

	return sess, nil
}

var newSessionID = uuid.NewString
