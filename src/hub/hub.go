package hub

import (
	"errors"
	"sync"
	"time"

	"github.com/orchestra-mcp/matchrelay/src/auth"
	"github.com/orchestra-mcp/matchrelay/src/registry"
	"github.com/orchestra-mcp/matchrelay/src/rooms"
	"github.com/rs/zerolog"
)

// ErrInvalidUser is returned when admitting a connection without a user ID.
var ErrInvalidUser = errors.New("user id is required")

// Options tunes a Hub. Zero values select the defaults.
type Options struct {
	AuthTimeout  time.Duration    // verification deadline, default 10s
	SendBuffer   int              // outbound queue per connection, default 256
	PingInterval time.Duration    // keepalive period, 0 disables pings
	Clock        func() time.Time // server timestamps, default time.Now
}

func (o *Options) norm() {
	if o.AuthTimeout <= 0 {
		o.AuthTimeout = 10 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

// Hub authenticates connections, tracks which user is reachable where and
// relays chat events between the participants of a match.
type Hub struct {
	verifier auth.Verifier
	opts     Options

	registry registry.Directory[*Client]
	rooms    *rooms.Tracker[*Client]
	clients  map[string]*Client // connection ID -> live client

	onConnect []func(string)
	onDisconn []func(string)

	mu     sync.RWMutex
	logger zerolog.Logger
}

// New creates a Hub that admits users vouched for by verifier.
func New(verifier auth.Verifier, logger zerolog.Logger, opts Options) *Hub {
	opts.norm()
	return &Hub{
		verifier: verifier,
		opts:     opts,
		registry: registry.New[*Client](),
		rooms:    rooms.New[*Client](),
		clients:  make(map[string]*Client),
		logger:   logger.With().Str("component", "hub").Logger(),
	}
}

// OnConnection registers a callback invoked with the user ID each time a
// user becomes reachable on a new connection.
func (h *Hub) OnConnection(cb func(userID string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onConnect = append(h.onConnect, cb)
}

// OnDisconnection registers a callback invoked with the user ID when a user
// is no longer reachable. Closing a superseded connection does not fire it.
func (h *Hub) OnDisconnection(cb func(userID string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDisconn = append(h.onDisconn, cb)
}

func (h *Hub) callbacks(connect bool) []func(string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if connect {
		return append([]func(string){}, h.onConnect...)
	}
	return append([]func(string){}, h.onDisconn...)
}
