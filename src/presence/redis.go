package presence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// releaseScript deletes a presence key only when it still names this instance,
// so a relay that lost a user to another instance does not clear their mark.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisPublisher stores one key per reachable user, valued with the owning
// instance ID and kept alive by a refresh loop.
type RedisPublisher struct {
	client     *redis.Client
	prefix     string
	ttl        time.Duration
	instanceID string
	source     UserSource
	logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	active bool
}

// NewRedisPublisher creates a presence publisher backed by Redis.
func NewRedisPublisher(cfg *RedisConfig, logger zerolog.Logger) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithCancel(context.Background())

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultRedisConfig().TTL
	}

	return &RedisPublisher{
		client:     client,
		prefix:     cfg.Prefix,
		ttl:        ttl,
		instanceID: uuid.New().String(),
		logger:     logger.With().Str("component", "redis-presence").Logger(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// SetSource attaches the list of reachable users that the refresh loop
// re-asserts.
func (p *RedisPublisher) SetSource(source UserSource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.source = source
}

// Client exposes the underlying Redis client for sharing.
func (p *RedisPublisher) Client() *redis.Client { return p.client }

// Start pings Redis and begins refreshing presence keys.
func (p *RedisPublisher) Start() error {
	if err := p.client.Ping(p.ctx).Err(); err != nil {
		return err
	}

	p.mu.Lock()
	p.active = true
	p.mu.Unlock()

	p.wg.Add(1)
	go p.refresh()

	p.logger.Info().
		Str("instance_id", p.instanceID).
		Dur("ttl", p.ttl).
		Msg("redis presence started")
	return nil
}

// Online marks userID as reachable on this instance.
func (p *RedisPublisher) Online(userID string) error {
	if !p.Available() {
		return nil
	}
	return p.client.Set(p.ctx, p.key(userID), p.instanceID, p.ttl).Err()
}

// Offline clears userID's mark if this instance owns it.
func (p *RedisPublisher) Offline(userID string) error {
	if !p.Available() {
		return nil
	}
	return releaseScript.Run(p.ctx, p.client, []string{p.key(userID)}, p.instanceID).Err()
}

// Stop halts the refresh loop and closes the Redis connection.
func (p *RedisPublisher) Stop() error {
	p.mu.Lock()
	p.active = false
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
	return p.client.Close()
}

// Available reports whether the publisher is connected.
func (p *RedisPublisher) Available() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active
}

func (p *RedisPublisher) key(userID string) string {
	return p.prefix + "presence:" + userID
}

// refresh re-asserts every reachable user's key at half the TTL.
func (p *RedisPublisher) refresh() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.refreshOnce()
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *RedisPublisher) refreshOnce() {
	p.mu.RLock()
	source := p.source
	p.mu.RUnlock()
	if source == nil {
		return
	}
	users := source.ConnectedUsers()
	if len(users) == 0 {
		return
	}
	pipe := p.client.Pipeline()
	for _, id := range users {
		pipe.Set(p.ctx, p.key(id), p.instanceID, p.ttl)
	}
	if _, err := pipe.Exec(p.ctx); err != nil {
		p.logger.Error().Err(err).Int("users", len(users)).Msg("presence refresh failed")
		return
	}
	p.logger.Debug().Int("users", len(users)).Msg("presence refreshed")
}
