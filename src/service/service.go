package service

import (
	"fmt"

	"github.com/orchestra-mcp/matchrelay/src/hub"
	"github.com/orchestra-mcp/matchrelay/src/types"
	"github.com/rs/zerolog"
)

// Stats summarises the relay's current state.
type Stats struct {
	Endpoint    string         `json:"endpoint"`
	Connections int            `json:"connections"`
	OnlineUsers int            `json:"onlineUsers"`
	Rooms       map[string]int `json:"rooms"`
}

// UserStatus describes whether a user is reachable through the relay.
type UserStatus struct {
	UserID string            `json:"userId"`
	Online bool              `json:"online"`
	Client *types.ClientInfo `json:"client,omitempty"`
}

// Service provides the read-mostly API used by the HTTP surface.
type Service struct {
	hub      *hub.Hub
	endpoint string
	logger   zerolog.Logger
}

// New creates a service backed by the given hub.
func New(h *hub.Hub, endpoint string, logger zerolog.Logger) *Service {
	return &Service{hub: h, endpoint: endpoint, logger: logger}
}

// Hub returns the underlying hub.
func (s *Service) Hub() *hub.Hub { return s.hub }

// Stats returns connection, user and room counts.
func (s *Service) Stats() Stats {
	return Stats{
		Endpoint:    s.endpoint,
		Connections: s.hub.ClientCount(),
		OnlineUsers: s.hub.UserCount(),
		Rooms:       s.hub.Rooms(),
	}
}

// GetConnectedUsers returns IDs of all reachable users.
func (s *Service) GetConnectedUsers() []string {
	return s.hub.ConnectedUsers()
}

// GetUserStatus reports whether userID is reachable and on which connection.
func (s *Service) GetUserStatus(userID string) UserStatus {
	info := s.hub.ClientInfo(userID)
	return UserStatus{UserID: userID, Online: info != nil, Client: info}
}

// Disconnect terminates the current connection of userID.
func (s *Service) Disconnect(userID string) error {
	if !s.hub.Kick(userID) {
		return fmt.Errorf("user %s not connected", userID)
	}
	s.logger.Info().Str("user_id", userID).Msg("user disconnected by server")
	return nil
}
