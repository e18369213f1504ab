package types

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// Client to server event names.
const (
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventSendMessage       = "send_message"
	EventTyping            = "typing"
)

// Server to client event names.
const (
	EventJoinedConversation = "joined_conversation"
	EventLeftConversation   = "left_conversation"
	EventReceiveMessage     = "receive_message"
	EventMessageSent        = "message_sent"
	EventError              = "error"
)

// Event is one decoded client request. The set of implementations is closed.
type Event interface {
	event()
}

// JoinConversation asks to join the room of a match.
type JoinConversation struct {
	MatchID string `json:"matchId"`
}

// LeaveConversation asks to leave the room of a match.
type LeaveConversation struct {
	MatchID string `json:"matchId"`
}

// SendMessage carries a chat payload for the other participant.
type SendMessage struct {
	MatchID    string          `json:"matchId"`
	ReceiverID string          `json:"receiverId"`
	Message    json.RawMessage `json:"message"`

	// Malformed is set when the frame data could not be decoded.
	Malformed bool `json:"-"`
}

// Complete reports whether all required fields are present.
func (e SendMessage) Complete() bool {
	return !e.Malformed && e.MatchID != "" && e.ReceiverID != "" && !Blank(e.Message)
}

// Typing carries a typing indicator for the other participant.
type Typing struct {
	MatchID    string `json:"matchId"`
	ReceiverID string `json:"receiverId"`
	IsTyping   bool   `json:"isTyping"`

	Malformed bool `json:"-"`
}

// Complete reports whether the routing fields are present.
func (e Typing) Complete() bool {
	return !e.Malformed && e.MatchID != "" && e.ReceiverID != ""
}

// Unknown is any frame whose event name is not recognised.
type Unknown struct {
	Name string
}

func (JoinConversation) event()  {}
func (LeaveConversation) event() {}
func (SendMessage) event()       {}
func (Typing) event()            {}
func (Unknown) event()           {}

// ParseEvent turns a frame into a typed event. Join and leave frames with
// undecodable data yield an empty match id; send and typing frames are
// flagged as malformed.
func ParseEvent(msg Message) Event {
	switch msg.Event {
	case EventJoinConversation:
		var e JoinConversation
		_ = msg.Decode(&e)
		return e
	case EventLeaveConversation:
		var e LeaveConversation
		_ = msg.Decode(&e)
		return e
	case EventSendMessage:
		var e SendMessage
		if err := msg.Decode(&e); err != nil {
			return SendMessage{Malformed: true}
		}
		return e
	case EventTyping:
		var e Typing
		if err := msg.Decode(&e); err != nil {
			return Typing{Malformed: true}
		}
		return e
	default:
		return Unknown{Name: msg.Event}
	}
}

// Blank reports whether a raw JSON value counts as absent: missing, null,
// an empty string, false or zero.
func Blank(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	switch string(v) {
	case "", "null", `""`, "false":
		return true
	}
	if c := v[0]; c == '-' || (c >= '0' && c <= '9') {
		f, err := strconv.ParseFloat(string(v), 64)
		return err == nil && f == 0
	}
	return false
}

// JoinedConversation acknowledges a join.
type JoinedConversation struct {
	MatchID string `json:"matchId"`
}

// LeftConversation acknowledges a leave.
type LeftConversation struct {
	MatchID string `json:"matchId"`
}

// ReceiveMessage is delivered to the recipient of a chat message.
type ReceiveMessage struct {
	MatchID   string          `json:"matchId"`
	SenderID  string          `json:"senderId"`
	Message   json.RawMessage `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
}

// MessageSent acknowledges a relay attempt to the sender. Success does not
// imply delivery.
type MessageSent struct {
	MatchID    string `json:"matchId"`
	ReceiverID string `json:"receiverId"`
	Success    bool   `json:"success"`
}

// TypingNotice is delivered to the recipient of a typing indicator.
type TypingNotice struct {
	MatchID  string `json:"matchId"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// ErrorNotice reports a rejected request to its sender.
type ErrorNotice struct {
	Message string `json:"message"`
}
