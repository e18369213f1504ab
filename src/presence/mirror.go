package presence

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
)

const mirrorStripes = 32

// Reachability reports whether a user currently has a live connection.
type Reachability interface {
	IsOnline(userID string) bool
}

// Mirror applies connect and disconnect notifications to a Publisher.
// Updates for the same user are serialized, and a disconnect is skipped when
// the user has already connected again, so a late release cannot erase a
// fresh mark.
type Mirror struct {
	pub    Publisher
	reach  Reachability
	locks  [mirrorStripes]sync.Mutex
	logger zerolog.Logger
}

// NewMirror creates a Mirror publishing to pub.
func NewMirror(pub Publisher, reach Reachability, logger zerolog.Logger) *Mirror {
	return &Mirror{
		pub:    pub,
		reach:  reach,
		logger: logger.With().Str("component", "presence-mirror").Logger(),
	}
}

func (m *Mirror) lock(userID string) *sync.Mutex {
	return &m.locks[xxhash.Sum64String(userID)%mirrorStripes]
}

// Connected marks userID online.
func (m *Mirror) Connected(userID string) {
	mu := m.lock(userID)
	mu.Lock()
	defer mu.Unlock()

	if err := m.pub.Online(userID); err != nil {
		m.logger.Warn().Err(err).Str("user_id", userID).Msg("presence online failed")
	}
}

// Disconnected marks userID offline unless a newer connection is live.
func (m *Mirror) Disconnected(userID string) {
	mu := m.lock(userID)
	mu.Lock()
	defer mu.Unlock()

	if m.reach.IsOnline(userID) {
		m.logger.Debug().Str("user_id", userID).Msg("user reconnected, keeping presence")
		return
	}
	if err := m.pub.Offline(userID); err != nil {
		m.logger.Warn().Err(err).Str("user_id", userID).Msg("presence offline failed")
	}
}
