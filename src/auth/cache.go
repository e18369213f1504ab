package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// CachingVerifier remembers successful verifications in Redis so reconnects
// within ttl skip the identity provider. Failures are never cached, and a JWT
// is never cached past its expiry. A session revoked at the identity provider
// is still accepted until its cache entry expires.
type CachingVerifier struct {
	inner  Verifier
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

// NewCachingVerifier wraps inner with a Redis-backed cache.
func NewCachingVerifier(inner Verifier, client redis.UniversalClient, prefix string, ttl time.Duration, logger zerolog.Logger) *CachingVerifier {
	return &CachingVerifier{
		inner:  inner,
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With().Str("component", "token-cache").Logger(),
		now:    time.Now,
	}
}

// Verify returns a cached user ID for token or delegates to the inner verifier.
func (v *CachingVerifier) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		return v.inner.Verify(ctx, token)
	}
	key := v.key(token)

	id, err := v.client.Get(ctx, key).Result()
	switch {
	case err == nil && id != "":
		return id, nil
	case err != nil && !errors.Is(err, redis.Nil):
		v.logger.Warn().Err(err).Msg("token cache read failed")
	}

	id, err = v.inner.Verify(ctx, token)
	if err != nil {
		return "", err
	}
	ttl := v.cacheTTL(token)
	if ttl <= 0 {
		return id, nil
	}
	if err := v.client.Set(ctx, key, id, ttl).Err(); err != nil {
		v.logger.Warn().Err(err).Msg("token cache write failed")
	}
	return id, nil
}

// cacheTTL caps the cache lifetime at the token's own expiry when the token
// is a JWT carrying "exp". Opaque tokens use the configured ttl.
func (v *CachingVerifier) cacheTTL(token string) time.Duration {
	ttl := v.ttl
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return ttl
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return ttl
	}
	if left := exp.Time.Sub(v.now()); left < ttl {
		return left
	}
	return ttl
}

func (v *CachingVerifier) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return v.prefix + "token:" + hex.EncodeToString(sum[:])
}
