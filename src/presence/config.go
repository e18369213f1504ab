package presence

import (
	"os"
	"strconv"
	"time"
)

// RedisConfig holds connection settings for the Redis presence store.
type RedisConfig struct {
	Addr     string        // Redis address, default "localhost:6379"
	Password string        // Redis password, default ""
	DB       int           // Redis database number, default 0
	Prefix   string        // Key prefix, default "matchrelay:"
	TTL      time.Duration // Presence key lifetime, default 60s
}

// DefaultRedisConfig returns a RedisConfig with sensible defaults.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:   "localhost:6379",
		Prefix: "matchrelay:",
		TTL:    60 * time.Second,
	}
}

// RedisConfigFromEnv loads Redis configuration from environment variables.
// Falls back to defaults for any missing values.
func RedisConfigFromEnv() *RedisConfig {
	cfg := DefaultRedisConfig()

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Password = pw
	}
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			cfg.DB = db
		}
	}
	if prefix := os.Getenv("REDIS_PREFIX"); prefix != "" {
		cfg.Prefix = prefix
	}
	if ttlStr := os.Getenv("REDIS_PRESENCE_TTL"); ttlStr != "" {
		if ttl, err := strconv.Atoi(ttlStr); err == nil && ttl > 0 {
			cfg.TTL = time.Duration(ttl) * time.Second
		}
	}
	return cfg
}
