package auth

import (
	"context"
	"errors"
	"strings"
)

// ErrAuthenticationFailed is returned for a missing, invalid or unverifiable
// token. Verifiers wrap their cause with it.
var ErrAuthenticationFailed = errors.New("authentication failed")

// Verifier resolves an opaque bearer token to a stable user ID.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, token string) (string, error)

// Verify calls f.
func (f VerifierFunc) Verify(ctx context.Context, token string) (string, error) {
	return f(ctx, token)
}

// BearerToken strips an optional "Bearer " prefix.
func BearerToken(value string) string {
	value = strings.TrimSpace(value)
	if len(value) > 7 && strings.EqualFold(value[:7], "bearer ") {
		return strings.TrimSpace(value[7:])
	}
	return value
}
