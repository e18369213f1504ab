package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// HTTPConfig configures an HTTPVerifier.
type HTTPConfig struct {
	URL     string // identity provider endpoint returning the current account
	Header  string // header carrying the token, default "Authorization"
	IDField string // JSON field holding the user ID, default "$id"
	Client  *fasthttp.Client
}

// HTTPVerifier asks the external identity provider who owns a token.
type HTTPVerifier struct {
	url     string
	header  string
	idField string
	client  *fasthttp.Client
}

// NewHTTPVerifier creates a verifier backed by an identity provider endpoint.
func NewHTTPVerifier(cfg HTTPConfig) *HTTPVerifier {
	v := &HTTPVerifier{
		url:     cfg.URL,
		header:  cfg.Header,
		idField: cfg.IDField,
		client:  cfg.Client,
	}
	if v.header == "" {
		v.header = fasthttp.HeaderAuthorization
	}
	if v.idField == "" {
		v.idField = "$id"
	}
	if v.client == nil {
		v.client = &fasthttp.Client{
			Name:         "matchrelay",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
	}
	return v
}

// Verify calls the provider with token and returns the account ID.
func (v *HTTPVerifier) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: missing token", ErrAuthenticationFailed)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(v.url)
	req.Header.SetMethod(fasthttp.MethodGet)
	if strings.EqualFold(v.header, fasthttp.HeaderAuthorization) {
		req.Header.Set(v.header, "Bearer "+token)
	} else {
		req.Header.Set(v.header, token)
	}

	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = v.client.DoDeadline(req, resp, deadline)
	} else {
		err = v.client.Do(req, resp)
	}
	if err != nil {
		return "", fmt.Errorf("%w: identity provider: %w", ErrAuthenticationFailed, err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return "", fmt.Errorf("%w: identity provider returned %d", ErrAuthenticationFailed, resp.StatusCode())
	}

	var account map[string]any
	if err := json.Unmarshal(resp.Body(), &account); err != nil {
		return "", fmt.Errorf("%w: decode account: %w", ErrAuthenticationFailed, err)
	}
	id := claimString(account[v.idField])
	if id == "" {
		return "", fmt.Errorf("%w: account has no %q", ErrAuthenticationFailed, v.idField)
	}
	return id, nil
}
