package hub

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/orchestra-mcp/matchrelay/src/auth"
	"github.com/orchestra-mcp/matchrelay/src/types"
)

// Authenticate resolves token to a user ID. A missing token fails without
// consulting the verifier, and a verifier that outlives the auth timeout
// counts as a failure.
func (h *Hub) Authenticate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: missing token", auth.ErrAuthenticationFailed)
	}

	ctx, cancel := context.WithTimeout(ctx, h.opts.AuthTimeout)
	defer cancel()

	type result struct {
		userID string
		err    error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("verifier panic: %v", r)}
			}
		}()
		id, err := h.verifier.Verify(ctx, token)
		done <- result{userID: id, err: err}
	}()

	select {
	case r := <-done:
		switch {
		case r.err != nil && errors.Is(r.err, auth.ErrAuthenticationFailed):
			return "", r.err
		case r.err != nil:
			return "", fmt.Errorf("%w: %w", auth.ErrAuthenticationFailed, r.err)
		case r.userID == "":
			return "", fmt.Errorf("%w: empty user id", auth.ErrAuthenticationFailed)
		}
		return r.userID, nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", auth.ErrAuthenticationFailed, ctx.Err())
	}
}

// Connect admits an authenticated connection for userID and makes it the
// user's current connection. An older connection of the same user stays open
// but stops receiving relayed events.
func (h *Hub) Connect(userID string, conn types.Conn) (*Client, error) {
	if userID == "" {
		return nil, ErrInvalidUser
	}

	c := &Client{
		ID:          uuid.New().String(),
		UserID:      userID,
		conn:        conn,
		hub:         h,
		send:        make(chan types.Message, h.opts.SendBuffer),
		connectedAt: h.opts.Clock(),
		done:        make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	prev, replaced := h.registry.Register(userID, c)

	log := h.logger.Info().Str("user_id", userID).Str("connection_id", c.ID)
	if replaced {
		log = log.Str("superseded", prev.ID)
	}
	log.Msg("client connected")

	for _, cb := range h.callbacks(true) {
		cb(userID)
	}
	return c, nil
}

// Serve runs the connection until it closes. It blocks, and always finishes
// with Disconnect.
func (h *Hub) Serve(c *Client) {
	go c.writePump(h.opts.PingInterval)
	c.readPump()
}

// Disconnect closes c and removes it from its rooms and from the registry.
// It is safe to call more than once; only the first call has effect.
func (h *Hub) Disconnect(c *Client) {
	c.disconnectOnce.Do(func() {
		c.close()

		h.mu.Lock()
		delete(h.clients, c.ID)
		h.mu.Unlock()

		c.roomsMu.Lock()
		c.retired = true
		left := h.rooms.LeaveAll(c)
		c.roomsMu.Unlock()

		offline := h.registry.Unregister(c.UserID, c)

		h.logger.Info().
			Str("user_id", c.UserID).
			Str("connection_id", c.ID).
			Int("rooms_left", len(left)).
			Bool("offline", offline).
			Msg("client disconnected")

		if !offline {
			return
		}
		for _, cb := range h.callbacks(false) {
			cb(c.UserID)
		}
	})
}

// Kick terminates the current connection of userID. It reports whether the
// user was connected.
func (h *Hub) Kick(userID string) bool {
	c, ok := h.registry.Lookup(userID)
	if !ok {
		return false
	}
	h.Disconnect(c)
	return true
}

// Shutdown disconnects every live connection.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	all := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.Disconnect(c)
	}
	h.logger.Info().Int("clients", len(all)).Msg("hub shut down")
}
