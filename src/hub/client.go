package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/orchestra-mcp/matchrelay/src/types"
)

// Client is one authenticated connection. It only exists once its user has
// been verified, so every event it reads comes from a known user.
type Client struct {
	ID     string
	UserID string

	conn        types.Conn
	hub         *Hub
	send        chan types.Message
	connectedAt time.Time

	done           chan struct{}
	closeOnce      sync.Once
	disconnectOnce sync.Once

	// roomsMu orders room joins against the disconnect cleanup.
	roomsMu sync.Mutex
	retired bool
}

// Info returns metadata about this connection.
func (c *Client) Info() types.ClientInfo {
	return types.ClientInfo{
		ID:          c.ID,
		UserID:      c.UserID,
		ConnectedAt: c.connectedAt,
		Rooms:       c.hub.rooms.Rooms(c),
	}
}

// Done is closed once the connection has been shut down.
func (c *Client) Done() <-chan struct{} { return c.done }

// enqueue queues msg for writing without blocking. A closed connection or a
// full queue drops the message.
func (c *Client) enqueue(msg types.Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// readPump reads frames and handles them one at a time until the connection
// fails, then runs the disconnect cleanup.
func (c *Client) readPump() {
	defer c.hub.Disconnect(c)

	for {
		var msg types.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if isDecodeError(err) {
				c.hub.logger.Debug().Err(err).
					Str("connection_id", c.ID).
					Msg("dropping undecodable frame")
				continue
			}
			return
		}
		if !c.hub.handle(c, msg) {
			return
		}
	}
}

// writePump is the only writer to the connection.
func (c *Client) writePump(pingInterval time.Duration) {
	var tick <-chan time.Time
	pinger, canPing := c.conn.(types.Pinger)
	if canPing && pingInterval > 0 {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteJSON(msg); err != nil {
				c.close()
				return
			}
		case <-tick:
			if err := pinger.Ping(); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// close stops both pumps and closes the transport.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
