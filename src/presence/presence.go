package presence

// Publisher mirrors which users are reachable on this relay to a shared store
// so other services can show who is online.
type Publisher interface {
	// Online marks a user as reachable on this instance.
	Online(userID string) error

	// Offline clears a user's mark if this instance still owns it.
	Offline(userID string) error

	// Start connects to the store and begins refreshing marks.
	Start() error

	// Stop halts refreshing and closes the store connection.
	Stop() error

	// Available reports whether the store is connected and operational.
	Available() bool

	// SetSource attaches the users the refresh loop re-asserts.
	SetSource(source UserSource)
}

var _ Publisher = (*RedisPublisher)(nil)

// UserSource is implemented by the Hub to list currently reachable users.
type UserSource interface {
	ConnectedUsers() []string
}
