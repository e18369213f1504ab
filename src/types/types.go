package types

import (
	"encoding/json"
	"time"
)

// Message is a single WebSocket frame in either direction.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewMessage encodes payload as the data of an event frame.
func NewMessage(event string, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Event: event, Data: raw}, nil
}

// Decode unmarshals the frame data into v.
func (m Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// ClientInfo holds metadata about a connected user.
type ClientInfo struct {
	ID          string    `json:"connectionId"`
	UserID      string    `json:"userId"`
	ConnectedAt time.Time `json:"connectedAt"`
	Rooms       []string  `json:"rooms"`
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}

// Pinger is implemented by connections that support keepalive pings.
type Pinger interface {
	Ping() error
}
