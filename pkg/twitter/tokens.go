package twitter

import (
	"strings"
	"sync"
)

// BearerToken is the fixed, publicly known bearer token of the X web client.
// Every in-session API call carries it alongside the per-session CSRF token.
const BearerToken = "AAAAAAAAAAAAAAAAAAAAANRILgAAAAAAnNwIzUejRCOuH5E6I8xnZz4puTs%3D1Zv7ttfk8LF81IUq16cHjhLTvJu4FA33AGWWjCpTnA"

// Tokens holds the request credentials derived from the active session.
type Tokens struct {
	CSRFToken   string
	BearerToken string
}

// TokenSource derives request credentials from the session cookie. The result
// is cached for the lifetime of the source to avoid re-parsing on every call.
type TokenSource struct {
	cookie string

	mu     sync.Mutex
	cached *Tokens
}

// NewTokenSource creates a token source over a raw Cookie header value.
func NewTokenSource(cookie string) *TokenSource {
	return &TokenSource{cookie: cookie}
}

// Tokens returns the session credentials, or a no_auth error when the ct0
// CSRF cookie is absent (no session).
func (ts *TokenSource) Tokens() (*Tokens, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.cached != nil {
		return ts.cached, nil
	}

	csrf := cookieValue(ts.cookie, "ct0")
	if csrf == "" {
		return nil, &Error{Type: ErrorTypeNoAuth, Message: "ct0 cookie not found, no active session"}
	}

	ts.cached = &Tokens{CSRFToken: csrf, BearerToken: BearerToken}
	return ts.cached, nil
}

// SetCookie replaces the cookie value and drops the cache.
func (ts *TokenSource) SetCookie(cookie string) {
	ts.mu.Lock()
	ts.cookie = cookie
	ts.cached = nil
	ts.mu.Unlock()
}

// cookieValue extracts a named value from a Cookie header string.
func cookieValue(cookie, name string) string {
	for _, part := range strings.Split(cookie, ";") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, name+"=") {
			if val := strings.TrimPrefix(part, name+"="); val != "" {
				return val
			}
		}
	}
	return ""
}
