package models

import "encoding/json"

// Inbound websocket message types recognised by the session.
const (
	MessageTypePong    = "pong"
	MessageTypeAck     = "ack"
	MessageTypeWelcome = "welcome"
	MessageTypeMessage = "message"
)

// ConnectionToken is the single-use credential returned by the bullet
// endpoint. A fresh token must be acquired for every connection attempt;
// tokens are never reused across reconnects.
type ConnectionToken struct {
	Endpoint string
	Token    string
}

// SubscribeRequest is sent once per topic after connecting. PrivateChannel is
// a pointer so the field is serialized only for streams that require it
// (trade subscriptions send an explicit false, level2 omits it).
type SubscribeRequest struct {
	ID             int64  `json:"id"`
	Type           string `json:"type"`
	Topic          string `json:"topic"`
	PrivateChannel *bool  `json:"privateChannel,omitempty"`
	Response       bool   `json:"response"`
}

// PingRequest is the application-level liveness probe sent after a receive
// timeout.
type PingRequest struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// InboundMessage is the tagged envelope of every payload the venue sends.
// Only type "message" carries data; unrecognised types are logged at debug
// level and dropped at the session boundary.
type InboundMessage struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Topic   string          `json:"topic"`
	Subject string          `json:"subject"`
	Data    json.RawMessage `json:"data"`
}

// tokenResponse mirrors the bullet endpoint envelope.
type tokenResponse struct {
	Code string `json:"code"`
	Data struct {
		Token           string `json:"token"`
		InstanceServers []struct {
			Endpoint     string `json:"endpoint"`
			Protocol     string `json:"protocol"`
			PingInterval int64  `json:"pingInterval"`
			PingTimeout  int64  `json:"pingTimeout"`
		} `json:"instanceServers"`
	} `json:"data"`
}

// ParseConnectionToken extracts endpoint and token from a bullet response
// body. The websocket URL is endpoint?token=<token>&acceptUserMessage=true.
func ParseConnectionToken(raw []byte) (ConnectionToken, error) {
	var resp tokenResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ConnectionToken{}, &MalformedPayloadError{Kind: "token", Err: err}
	}
	if resp.Data.Token == "" || len(resp.Data.InstanceServers) == 0 {
		return ConnectionToken{}, &MalformedPayloadError{Kind: "token", Err: errMissingInstanceServer}
	}
	return ConnectionToken{
		Endpoint: resp.Data.InstanceServers[0].Endpoint,
		Token:    resp.Data.Token,
	}, nil
}

var errMissingInstanceServer = jsonError("token response missing token or instance servers")

type jsonError string

func (e jsonError) Error() string { return string(e) }
