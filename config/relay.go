package config

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// RelayConfig holds relay server configuration.
type RelayConfig struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	AllowedOrigin   string `json:"allowed_origin"`
	AuthTimeout     int    `json:"auth_timeout_seconds"`
	PingInterval    int    `json:"ping_interval_seconds"`
	WriteTimeout    int    `json:"write_timeout_seconds"`
	ReadBufferSize  int    `json:"read_buffer_size"`
	WriteBufferSize int    `json:"write_buffer_size"`
	MaxMessageSize  int    `json:"max_message_size"`
	SendBuffer      int    `json:"send_buffer"`
	AdminKey        string `json:"-"`
	Presence        bool   `json:"presence"`

	// Identity verification. AuthURL selects the identity provider;
	// otherwise JWTSecret selects local JWT validation.
	JWTSecret     string `json:"-"`
	JWTUserClaim  string `json:"jwt_user_claim"`
	AuthURL       string `json:"auth_url"`
	AuthHeader    string `json:"auth_header"`
	AuthIDField   string `json:"auth_id_field"`
	TokenCacheTTL int    `json:"token_cache_ttl_seconds"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
}

// DefaultConfig returns the default relay configuration.
func DefaultConfig() *RelayConfig {
	return &RelayConfig{
		Port:            3001,
		AllowedOrigin:   "*",
		AuthTimeout:     10,
		PingInterval:    25,
		WriteTimeout:    10,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		MaxMessageSize:  64 * 1024,
		SendBuffer:      256,
		Presence:        true,
		LogLevel:        "info",
		LogFormat:       "json",
	}
}

// FromEnv loads configuration from environment variables, keeping defaults
// for missing or invalid values.
func FromEnv() *RelayConfig {
	cfg := DefaultConfig()

	cfg.Host = envString("HOST", cfg.Host)
	cfg.Port = envInt("PORT", cfg.Port)
	cfg.AllowedOrigin = envString("CLIENT_URL", cfg.AllowedOrigin)
	cfg.AuthTimeout = envInt("RELAY_AUTH_TIMEOUT", cfg.AuthTimeout)
	cfg.PingInterval = envInt("RELAY_PING_INTERVAL", cfg.PingInterval)
	cfg.WriteTimeout = envInt("RELAY_WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.ReadBufferSize = envInt("RELAY_READ_BUFFER", cfg.ReadBufferSize)
	cfg.WriteBufferSize = envInt("RELAY_WRITE_BUFFER", cfg.WriteBufferSize)
	cfg.MaxMessageSize = envInt("RELAY_MAX_MESSAGE_SIZE", cfg.MaxMessageSize)
	cfg.SendBuffer = envInt("RELAY_SEND_BUFFER", cfg.SendBuffer)
	cfg.AdminKey = envString("RELAY_ADMIN_KEY", cfg.AdminKey)
	cfg.Presence = envBool("RELAY_PRESENCE", cfg.Presence)

	cfg.JWTSecret = envString("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTUserClaim = envString("JWT_USER_CLAIM", cfg.JWTUserClaim)
	cfg.AuthURL = envString("AUTH_URL", cfg.AuthURL)
	cfg.AuthHeader = envString("AUTH_HEADER", cfg.AuthHeader)
	cfg.AuthIDField = envString("AUTH_ID_FIELD", cfg.AuthIDField)
	cfg.TokenCacheTTL = envInt("TOKEN_CACHE_TTL", cfg.TokenCacheTTL)

	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envString("LOG_FORMAT", cfg.LogFormat)
	return cfg
}

// Addr returns the listen address.
func (c *RelayConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// AuthTimeoutDuration returns the token verification deadline.
func (c *RelayConfig) AuthTimeoutDuration() time.Duration {
	return time.Duration(c.AuthTimeout) * time.Second
}

// PingIntervalDuration returns the keepalive period.
func (c *RelayConfig) PingIntervalDuration() time.Duration {
	return time.Duration(c.PingInterval) * time.Second
}

// WriteTimeoutDuration returns the per-frame write deadline.
func (c *RelayConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(c.WriteTimeout) * time.Second
}

// TokenCacheTTLDuration returns how long verified tokens are cached.
func (c *RelayConfig) TokenCacheTTLDuration() time.Duration {
	return time.Duration(c.TokenCacheTTL) * time.Second
}

// OriginAllowed reports whether a browser origin may open a connection.
// Requests without an Origin header come from native clients and pass.
func (c *RelayConfig) OriginAllowed(origin string) bool {
	if origin == "" || c.AllowedOrigin == "" || c.AllowedOrigin == "*" {
		return true
	}
	return strings.EqualFold(strings.TrimRight(origin, "/"), strings.TrimRight(c.AllowedOrigin, "/"))
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
