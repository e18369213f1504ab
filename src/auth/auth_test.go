package auth

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

var testSecret = []byte("test-secret")

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Equal(t, "abc", BearerToken("abc"))
	assert.Equal(t, "", BearerToken(""))
}

func TestJWTVerifierSubject(t *testing.T) {
	v := NewJWTVerifier(testSecret, "")
	token := sign(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	id, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", id)
}

func TestJWTVerifierNumericUserID(t *testing.T) {
	v := NewJWTVerifier(testSecret, "")
	token := sign(t, jwt.SigningMethodHS512, testSecret, jwt.MapClaims{"user_id": float64(17)})

	id, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "17", id)
}

func TestJWTVerifierCustomClaim(t *testing.T) {
	v := NewJWTVerifier(testSecret, "uid")
	token := sign(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"uid": "abc", "sub": "ignored"})

	id, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "abc", id)
}

func TestJWTVerifierRejects(t *testing.T) {
	v := NewJWTVerifier(testSecret, "")

	cases := map[string]string{
		"missing":      "",
		"garbage":      "not-a-jwt",
		"wrong secret": sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "u"}),
		"expired": sign(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
			"sub": "u",
			"exp": time.Now().Add(-time.Hour).Unix(),
		}),
		"no user id": sign(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"role": "x"}),
		"alg none":   sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.MapClaims{"sub": "u"}),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), token)
			assert.ErrorIs(t, err, ErrAuthenticationFailed)
		})
	}
}

// startProvider serves handler on an in-memory listener and returns a client
// dialing it.
func startProvider(t *testing.T, handler fasthttp.RequestHandler) *fasthttp.Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: handler}
	go srv.Serve(ln) //nolint:errcheck
	t.Cleanup(func() {
		_ = srv.Shutdown()
		_ = ln.Close()
	})
	return &fasthttp.Client{
		Dial: func(string) (net.Conn, error) { return ln.Dial() },
	}
}

func TestHTTPVerifierSuccess(t *testing.T) {
	var gotHeader string
	client := startProvider(t, func(ctx *fasthttp.RequestCtx) {
		gotHeader = string(ctx.Request.Header.Peek("X-Appwrite-JWT"))
		body, _ := json.Marshal(map[string]any{"$id": "user-7", "name": "Asha"})
		ctx.SetContentType("application/json")
		ctx.SetBody(body)
	})

	v := NewHTTPVerifier(HTTPConfig{
		URL:    "http://idp.test/v1/account",
		Header: "X-Appwrite-JWT",
		Client: client,
	})
	id, err := v.Verify(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "user-7", id)
	assert.Equal(t, "tok", gotHeader)
}

func TestHTTPVerifierBearerHeader(t *testing.T) {
	var gotHeader string
	client := startProvider(t, func(ctx *fasthttp.RequestCtx) {
		gotHeader = string(ctx.Request.Header.Peek(fasthttp.HeaderAuthorization))
		ctx.SetBodyString(`{"id":"u1"}`)
	})

	v := NewHTTPVerifier(HTTPConfig{URL: "http://idp.test/me", IDField: "id", Client: client})
	id, err := v.Verify(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "u1", id)
	assert.Equal(t, "Bearer tok", gotHeader)
}

func TestHTTPVerifierRejects(t *testing.T) {
	client := startProvider(t, func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Request.Header.Peek(fasthttp.HeaderAuthorization)) {
		case "Bearer unauthorized":
			ctx.SetStatusCode(fasthttp.StatusUnauthorized)
		case "Bearer garbage":
			ctx.SetBodyString("not json")
		default:
			ctx.SetBodyString(`{"name":"no id"}`)
		}
	})
	v := NewHTTPVerifier(HTTPConfig{URL: "http://idp.test/me", Client: client})

	for _, token := range []string{"", "unauthorized", "garbage", "noid"} {
		_, err := v.Verify(context.Background(), token)
		assert.ErrorIs(t, err, ErrAuthenticationFailed, token)
	}
}

func TestHTTPVerifierHonorsDeadline(t *testing.T) {
	client := startProvider(t, func(ctx *fasthttp.RequestCtx) {
		time.Sleep(500 * time.Millisecond)
		ctx.SetBodyString(`{"$id":"late"}`)
	})
	v := NewHTTPVerifier(HTTPConfig{URL: "http://idp.test/me", Client: client})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := v.Verify(ctx, "tok")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestCachingVerifierFallsBackWhenRedisDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	calls := 0
	inner := VerifierFunc(func(_ context.Context, token string) (string, error) {
		calls++
		if token == "good" {
			return "user-1", nil
		}
		return "", ErrAuthenticationFailed
	})
	v := NewCachingVerifier(inner, client, "test:", time.Minute, zerolog.Nop())

	id, err := v.Verify(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "user-1", id)

	_, err = v.Verify(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.Equal(t, 2, calls)
}

func TestCachingVerifierKeyHidesToken(t *testing.T) {
	v := NewCachingVerifier(nil, nil, "p:", time.Minute, zerolog.Nop())
	key := v.key("secret-token")
	assert.NotContains(t, key, "secret-token")
	assert.Equal(t, key, v.key("secret-token"))
	assert.Contains(t, key, "p:token:")
}

// countingVerifier accepts "good" and JWTs, and counts how often it is asked.
type countingVerifier struct{ calls int }

func (c *countingVerifier) Verify(_ context.Context, token string) (string, error) {
	c.calls++
	if token == "bad" {
		return "", ErrAuthenticationFailed
	}
	return "user-1", nil
}

func newCachedVerifier(t *testing.T, ttl time.Duration) (*CachingVerifier, *countingVerifier, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	inner := &countingVerifier{}
	return NewCachingVerifier(inner, client, "test:", ttl, zerolog.Nop()), inner, mr
}

func TestCachingVerifierServesRepeatFromCache(t *testing.T) {
	v, inner, mr := newCachedVerifier(t, time.Minute)
	ctx := context.Background()

	id, err := v.Verify(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, "user-1", id)

	id, err = v.Verify(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, "user-1", id)
	assert.Equal(t, 1, inner.calls)

	cached, err := mr.Get(v.key("good"))
	require.NoError(t, err)
	assert.Equal(t, "user-1", cached)
	assert.Equal(t, time.Minute, mr.TTL(v.key("good")))

	mr.FastForward(time.Minute + time.Second)
	_, err = v.Verify(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachingVerifierDoesNotCacheFailures(t *testing.T) {
	v, inner, mr := newCachedVerifier(t, time.Minute)

	for i := 0; i < 2; i++ {
		_, err := v.Verify(context.Background(), "bad")
		assert.ErrorIs(t, err, ErrAuthenticationFailed)
	}
	assert.Equal(t, 2, inner.calls)
	assert.False(t, mr.Exists(v.key("bad")))
}

func TestCachingVerifierCapsTTLAtTokenExpiry(t *testing.T) {
	v, _, mr := newCachedVerifier(t, time.Hour)
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return now }

	soon := sign(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
		"sub": "user-1",
		"exp": now.Add(5 * time.Minute).Unix(),
	})
	_, err := v.Verify(context.Background(), soon)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, mr.TTL(v.key(soon)))

	late := sign(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
		"sub": "user-1",
		"exp": now.Add(3 * time.Hour).Unix(),
	})
	_, err = v.Verify(context.Background(), late)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, mr.TTL(v.key(late)))

	expired := sign(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
		"sub": "user-1",
		"exp": now.Add(-time.Minute).Unix(),
	})
	_, err = v.Verify(context.Background(), expired)
	require.NoError(t, err)
	assert.False(t, mr.Exists(v.key(expired)))
}
