package hub

import (
	"github.com/orchestra-mcp/matchrelay/src/types"
)

const errMissingFields = "missing required fields"

// handle processes one frame. A panicking handler is contained to its own
// connection: it reports false and the caller closes that connection.
func (h *Hub) handle(c *Client, msg types.Message) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error().
				Interface("panic", r).
				Str("user_id", c.UserID).
				Str("connection_id", c.ID).
				Str("event", msg.Event).
				Msg("event handler panicked, closing connection")
			ok = false
		}
	}()
	h.dispatch(c, types.ParseEvent(msg))
	return true
}

func (h *Hub) dispatch(c *Client, ev types.Event) {
	switch e := ev.(type) {
	case types.JoinConversation:
		h.joinConversation(c, e)
	case types.LeaveConversation:
		h.leaveConversation(c, e)
	case types.SendMessage:
		h.sendMessage(c, e)
	case types.Typing:
		h.typing(c, e)
	case types.Unknown:
		h.logger.Debug().
			Str("connection_id", c.ID).
			Str("event", e.Name).
			Msg("unknown event")
	}
}

func (h *Hub) joinConversation(c *Client, e types.JoinConversation) {
	if e.MatchID == "" {
		h.logger.Debug().Str("connection_id", c.ID).Msg("join without match id")
		return
	}
	c.roomsMu.Lock()
	if c.retired {
		c.roomsMu.Unlock()
		return
	}
	h.rooms.Join(c, e.MatchID)
	c.roomsMu.Unlock()

	h.logger.Debug().
		Str("user_id", c.UserID).
		Str("match_id", e.MatchID).
		Msg("joined conversation")
	h.emit(c, types.EventJoinedConversation, types.JoinedConversation{MatchID: e.MatchID})
}

func (h *Hub) leaveConversation(c *Client, e types.LeaveConversation) {
	if e.MatchID == "" {
		h.logger.Debug().Str("connection_id", c.ID).Msg("leave without match id")
		return
	}
	h.rooms.Leave(c, e.MatchID)
	h.emit(c, types.EventLeftConversation, types.LeftConversation{MatchID: e.MatchID})
}

// sendMessage relays a chat message to the receiver's current connection if
// there is one. The sender is acknowledged either way: the ack confirms the
// relay attempt, not delivery.
func (h *Hub) sendMessage(c *Client, e types.SendMessage) {
	if !e.Complete() {
		h.emit(c, types.EventError, types.ErrorNotice{Message: errMissingFields})
		return
	}

	if peer, ok := h.registry.Lookup(e.ReceiverID); ok {
		h.emit(peer, types.EventReceiveMessage, types.ReceiveMessage{
			MatchID:   e.MatchID,
			SenderID:  c.UserID,
			Message:   e.Message,
			Timestamp: h.opts.Clock().UTC(),
		})
	} else {
		h.logger.Debug().
			Str("user_id", c.UserID).
			Str("receiver_id", e.ReceiverID).
			Str("match_id", e.MatchID).
			Msg("receiver offline, message not relayed")
	}

	h.emit(c, types.EventMessageSent, types.MessageSent{
		MatchID:    e.MatchID,
		ReceiverID: e.ReceiverID,
		Success:    true,
	})
}

// typing forwards a typing indicator. Incomplete events are ignored and the
// sender never gets a reply.
func (h *Hub) typing(c *Client, e types.Typing) {
	if !e.Complete() {
		return
	}
	peer, ok := h.registry.Lookup(e.ReceiverID)
	if !ok {
		return
	}
	h.emit(peer, types.EventTyping, types.TypingNotice{
		MatchID:  e.MatchID,
		UserID:   c.UserID,
		IsTyping: e.IsTyping,
	})
}

// emit encodes payload and queues it for c.
func (h *Hub) emit(c *Client, event string, payload any) bool {
	msg, err := types.NewMessage(event, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("encode event")
		return false
	}
	if !c.enqueue(msg) {
		h.logger.Warn().
			Str("user_id", c.UserID).
			Str("connection_id", c.ID).
			Str("event", event).
			Msg("send buffer full or closed, dropping")
		return false
	}
	return true
}
