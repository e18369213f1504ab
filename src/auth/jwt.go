package auth

import (
	"context"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// JWTVerifier validates HMAC-signed tokens with a shared secret.
type JWTVerifier struct {
	secret []byte
	claim  string
	parser *jwt.Parser
}

// NewJWTVerifier creates a verifier that reads the user ID from claim.
// An empty claim means "sub", falling back to "user_id".
func NewJWTVerifier(secret []byte, claim string) *JWTVerifier {
	return &JWTVerifier{
		secret: secret,
		claim:  claim,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})),
	}
}

// Verify parses and validates token and returns its user ID.
func (v *JWTVerifier) Verify(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: missing token", ErrAuthenticationFailed)
	}
	claims := jwt.MapClaims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}
	if !parsed.Valid {
		return "", fmt.Errorf("%w: invalid token", ErrAuthenticationFailed)
	}

	keys := []string{v.claim}
	if v.claim == "" {
		keys = []string{"sub", "user_id"}
	}
	for _, key := range keys {
		if id := claimString(claims[key]); id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: no user id in token", ErrAuthenticationFailed)
}

func claimString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatInt(int64(id), 10)
	default:
		return ""
	}
}
