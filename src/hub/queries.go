package hub

import (
	"github.com/orchestra-mcp/matchrelay/src/types"
)

// ConnectedUsers returns the IDs of users with a current connection.
func (h *Hub) ConnectedUsers() []string {
	return h.registry.Users()
}

// IsOnline reports whether userID has a current connection.
func (h *Hub) IsOnline(userID string) bool {
	_, ok := h.registry.Lookup(userID)
	return ok
}

// ClientInfo returns info for a user's current connection, or nil.
func (h *Hub) ClientInfo(userID string) *types.ClientInfo {
	c, ok := h.registry.Lookup(userID)
	if !ok {
		return nil
	}
	info := c.Info()
	return &info
}

// Rooms returns conversation IDs with their member counts.
func (h *Hub) Rooms() map[string]int {
	return h.rooms.Counts()
}

// ClientCount returns the number of live connections, superseded ones
// included.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// UserCount returns the number of reachable users.
func (h *Hub) UserCount() int {
	return h.registry.Len()
}
