package providers

import (
	"errors"

	"github.com/orchestra-mcp/matchrelay/config"
	"github.com/orchestra-mcp/matchrelay/src/auth"
	"github.com/orchestra-mcp/matchrelay/src/hub"
	"github.com/orchestra-mcp/matchrelay/src/presence"
	"github.com/orchestra-mcp/matchrelay/src/service"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrNoVerifier is returned by Activate when neither an identity provider nor
// a JWT secret is configured.
var ErrNoVerifier = errors.New("no token verifier configured: set AUTH_URL or JWT_SECRET")

// RelayPlugin assembles the relay: verifier, hub, service and presence.
type RelayPlugin struct {
	active   bool
	cfg      *config.RelayConfig
	logger   zerolog.Logger
	verifier auth.Verifier
	hub      *hub.Hub
	service  *service.Service
	presence presence.Publisher

	// Shared with the token cache while presence is connected.
	redis       *redis.Client
	redisPrefix string
}

// NewRelayPlugin creates a relay plugin instance.
func NewRelayPlugin(cfg *config.RelayConfig, logger zerolog.Logger) *RelayPlugin {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &RelayPlugin{cfg: cfg, logger: logger}
}

func (p *RelayPlugin) ID() string      { return "matchrelay/relay" }
func (p *RelayPlugin) Name() string    { return "Match Relay" }
func (p *RelayPlugin) Version() string { return "0.1.0" }
func (p *RelayPlugin) IsActive() bool  { return p.active }

// UseVerifier overrides the verifier built from configuration. Call it before
// Activate.
func (p *RelayPlugin) UseVerifier(v auth.Verifier) { p.verifier = v }

// Activate initializes presence, the verifier, the hub and the service.
func (p *RelayPlugin) Activate() error {
	if p.cfg.Presence {
		// Non-fatal: without Redis the relay runs standalone.
		p.initPresence()
	}

	verifier, err := p.buildVerifier()
	if err != nil {
		p.stopPresence()
		return err
	}

	p.hub = hub.New(verifier, p.logger, hub.Options{
		AuthTimeout:  p.cfg.AuthTimeoutDuration(),
		SendBuffer:   p.cfg.SendBuffer,
		PingInterval: p.cfg.PingIntervalDuration(),
	})
	p.service = service.New(p.hub, "/ws", p.logger)

	if p.presence != nil {
		p.attachPresence(p.presence)
	}

	p.active = true
	p.logger.Info().Str("plugin", p.ID()).Bool("presence", p.presence != nil).Msg("relay plugin activated")
	return nil
}

// initPresence tries to start the Redis presence publisher.
// If Redis is not reachable, the relay runs in standalone mode.
func (p *RelayPlugin) initPresence() {
	cfg := presence.RedisConfigFromEnv()
	rp := presence.NewRedisPublisher(cfg, p.logger)

	if err := rp.Start(); err != nil {
		p.logger.Warn().Err(err).Msg("redis presence unavailable, running standalone")
		_ = rp.Stop()
		return
	}

	p.presence = rp
	p.redis = rp.Client()
	p.redisPrefix = cfg.Prefix
	p.logger.Info().Str("redis_addr", cfg.Addr).Msg("redis presence connected")
}

func (p *RelayPlugin) buildVerifier() (auth.Verifier, error) {
	v := p.verifier
	switch {
	case v != nil:
	case p.cfg.AuthURL != "":
		v = auth.NewHTTPVerifier(auth.HTTPConfig{
			URL:     p.cfg.AuthURL,
			Header:  p.cfg.AuthHeader,
			IDField: p.cfg.AuthIDField,
		})
		p.logger.Info().Str("auth_url", p.cfg.AuthURL).Msg("verifying tokens with identity provider")
	case p.cfg.JWTSecret != "":
		v = auth.NewJWTVerifier([]byte(p.cfg.JWTSecret), p.cfg.JWTUserClaim)
		p.logger.Info().Msg("verifying tokens as signed JWTs")
	default:
		return nil, ErrNoVerifier
	}

	if ttl := p.cfg.TokenCacheTTLDuration(); ttl > 0 && p.redis != nil {
		v = auth.NewCachingVerifier(v, p.redis, p.redisPrefix, ttl, p.logger)
	}
	return v, nil
}

// attachPresence mirrors the hub's reachability changes into pub. Presence
// starts before the hub because the token cache shares its Redis client.
func (p *RelayPlugin) attachPresence(pub presence.Publisher) {
	pub.SetSource(p.hub)
	mirror := presence.NewMirror(pub, p.hub, p.logger)
	p.hub.OnConnection(mirror.Connected)
	p.hub.OnDisconnection(mirror.Disconnected)
}

func (p *RelayPlugin) stopPresence() {
	if p.presence == nil {
		return
	}
	if err := p.presence.Stop(); err != nil {
		p.logger.Error().Err(err).Msg("presence stop error")
	}
	p.presence = nil
	p.redis = nil
}

// Deactivate disconnects every client and stops presence.
func (p *RelayPlugin) Deactivate() error {
	if p.hub != nil {
		p.hub.Shutdown()
	}
	p.stopPresence()
	p.active = false
	return nil
}

// Service exposes the relay service.
func (p *RelayPlugin) Service() *service.Service { return p.service }

// Hub exposes the relay hub.
func (p *RelayPlugin) Hub() *hub.Hub { return p.hub }
