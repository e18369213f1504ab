package presence

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticUsers []string

func (s staticUsers) ConnectedUsers() []string { return s }

func TestDefaultRedisConfig(t *testing.T) {
	cfg := DefaultRedisConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Empty(t, cfg.Password)
	assert.Equal(t, 0, cfg.DB)
	assert.Equal(t, "matchrelay:", cfg.Prefix)
	assert.Equal(t, 60*time.Second, cfg.TTL)
}

func TestRedisConfigFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis.example.com:6380")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_PREFIX", "test:")
	t.Setenv("REDIS_PRESENCE_TTL", "30")

	cfg := RedisConfigFromEnv()
	assert.Equal(t, "redis.example.com:6380", cfg.Addr)
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, 3, cfg.DB)
	assert.Equal(t, "test:", cfg.Prefix)
	assert.Equal(t, 30*time.Second, cfg.TTL)
}

func TestRedisConfigFromEnvDefaults(t *testing.T) {
	cfg := RedisConfigFromEnv()
	assert.Equal(t, DefaultRedisConfig(), cfg)
}

func TestRedisConfigFromEnvInvalidValues(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")
	t.Setenv("REDIS_PRESENCE_TTL", "-5")

	cfg := RedisConfigFromEnv()
	assert.Equal(t, 0, cfg.DB)
	assert.Equal(t, 60*time.Second, cfg.TTL)
}

func TestPublisherUnavailableBeforeStart(t *testing.T) {
	p := NewRedisPublisher(DefaultRedisConfig(), zerolog.Nop())
	t.Cleanup(func() { _ = p.client.Close() })

	p.SetSource(staticUsers{"u1"})
	assert.False(t, p.Available())
	// Without a connection, presence updates are no-ops.
	assert.NoError(t, p.Online("u1"))
	assert.NoError(t, p.Offline("u1"))
}

func TestPublisherInstanceIDUnique(t *testing.T) {
	cfg := DefaultRedisConfig()
	p1 := NewRedisPublisher(cfg, zerolog.Nop())
	p2 := NewRedisPublisher(cfg, zerolog.Nop())
	t.Cleanup(func() {
		_ = p1.client.Close()
		_ = p2.client.Close()
	})
	assert.NotEqual(t, p1.instanceID, p2.instanceID)
}

func TestPublisherKey(t *testing.T) {
	cfg := DefaultRedisConfig()
	cfg.Prefix = "app:"
	p := NewRedisPublisher(cfg, zerolog.Nop())
	t.Cleanup(func() { _ = p.client.Close() })
	assert.Equal(t, "app:presence:user-9", p.key("user-9"))
}

func TestPublisherZeroTTLUsesDefault(t *testing.T) {
	cfg := DefaultRedisConfig()
	cfg.TTL = 0
	p := NewRedisPublisher(cfg, zerolog.Nop())
	t.Cleanup(func() { _ = p.client.Close() })
	assert.Equal(t, 60*time.Second, p.ttl)
}

func startPublisher(t *testing.T) (*RedisPublisher, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := DefaultRedisConfig()
	cfg.Addr = mr.Addr()
	cfg.Prefix = "test:"

	p := NewRedisPublisher(cfg, zerolog.Nop())
	require.NoError(t, p.Start())
	t.Cleanup(func() { _ = p.Stop() })
	require.True(t, p.Available())
	return p, mr
}

func TestPublisherOnlineThenOffline(t *testing.T) {
	p, mr := startPublisher(t)

	require.NoError(t, p.Online("u1"))
	owner, err := mr.Get("test:presence:u1")
	require.NoError(t, err)
	assert.Equal(t, p.instanceID, owner)
	assert.Equal(t, 60*time.Second, mr.TTL("test:presence:u1"))

	require.NoError(t, p.Offline("u1"))
	assert.False(t, mr.Exists("test:presence:u1"))
}

func TestPublisherOfflineKeepsForeignMark(t *testing.T) {
	p, mr := startPublisher(t)

	require.NoError(t, mr.Set("test:presence:u1", "other-instance"))
	require.NoError(t, p.Offline("u1"))

	owner, err := mr.Get("test:presence:u1")
	require.NoError(t, err)
	assert.Equal(t, "other-instance", owner)
}

func TestPublisherMarkExpiresWithoutRefresh(t *testing.T) {
	p, mr := startPublisher(t)

	require.NoError(t, p.Online("u1"))
	mr.FastForward(61 * time.Second)
	assert.False(t, mr.Exists("test:presence:u1"))
}

func TestPublisherRefreshReassertsSourceUsers(t *testing.T) {
	p, mr := startPublisher(t)
	p.SetSource(staticUsers{"u1", "u2"})

	require.NoError(t, p.Online("u1"))
	mr.FastForward(40 * time.Second)
	p.refreshOnce()

	for _, id := range []string{"u1", "u2"} {
		owner, err := mr.Get("test:presence:" + id)
		require.NoError(t, err, id)
		assert.Equal(t, p.instanceID, owner)
		assert.Equal(t, 60*time.Second, mr.TTL("test:presence:"+id))
	}
}

func TestPublisherRefreshWithoutSource(t *testing.T) {
	p, mr := startPublisher(t)
	p.refreshOnce()
	assert.Empty(t, mr.Keys())
}

func TestPublisherStopMakesUpdatesNoOps(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := DefaultRedisConfig()
	cfg.Addr = mr.Addr()

	p := NewRedisPublisher(cfg, zerolog.Nop())
	require.NoError(t, p.Start())
	require.NoError(t, p.Stop())

	assert.False(t, p.Available())
	assert.NoError(t, p.Online("u1"))
	assert.Empty(t, mr.Keys())
}
