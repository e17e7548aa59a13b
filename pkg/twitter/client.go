package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hernaezTlon/x-following-cleaner/pkg/logger"
	"github.com/hernaezTlon/x-following-cleaner/pkg/ratelimit"
	"github.com/hernaezTlon/x-following-cleaner/pkg/retry"
)

// Client talks to X's undocumented in-session APIs. All calls carry the
// session cookie, the CSRF header, and the web client's bearer credential.
type Client struct {
	httpClient *http.Client
	tokens     *TokenSource
	cookie     string
	userAgent  string
	baseURL    string
	limiter    ratelimit.Limiter
	retries    *retry.Policy
	logger     logger.Logger
}

// NewClient creates an API client over an authenticated session cookie.
func NewClient(cookie, userAgent string, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     NewTokenSource(cookie),
		cookie:     cookie,
		userAgent:  userAgent,
		baseURL:    BaseURL,
		limiter:    ratelimit.NewTokenBucket(60, time.Minute),
		retries:    networkRetryPolicy(log),
		logger:     log,
	}
}

// networkRetryPolicy retries transient network failures on read requests.
// API-level errors, rate limits included, pass straight through to the
// callers that know how to interpret them.
func networkRetryPolicy(log logger.Logger) *retry.Policy {
	p := retry.DefaultPolicy()
	p.RetryIf = func(err error) bool {
		return Reason(err) == "network"
	}
	p.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.WithError(err).WithField("attempt", attempt).Debug("Retrying request after network error")
	}
	return p
}

// SetHTTPClient overrides the underlying HTTP client (tests).
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// SetBaseURL overrides the API base URL (tests).
func (c *Client) SetBaseURL(base string) {
	c.baseURL = base
}

// SetLimiter overrides the request rate limiter.
func (c *Client) SetLimiter(l ratelimit.Limiter) {
	c.limiter = l
}

// SetRetryPolicy overrides the network retry policy.
func (c *Client) SetRetryPolicy(p *retry.Policy) {
	c.retries = p
}

// Tokens exposes the session token source.
func (c *Client) Tokens() (*Tokens, error) {
	return c.tokens.Tokens()
}

// do performs an authenticated request and returns the raw body. GET
// requests retry transient network failures; POSTs run exactly once and
// leave retries to their callers.
func (c *Client) do(ctx context.Context, method, rawURL string, body io.Reader, form bool) ([]byte, error) {
	if method == http.MethodGet {
		return retry.DoWithResult(ctx, func() ([]byte, error) {
			return c.doOnce(ctx, method, rawURL, nil, form)
		}, c.retries)
	}
	return c.doOnce(ctx, method, rawURL, body, form)
}

func (c *Client) doOnce(ctx context.Context, method, rawURL string, body io.Reader, form bool) ([]byte, error) {
	tokens, err := c.tokens.Tokens()
	if err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, &Error{Type: ErrorTypeNetwork, Message: fmt.Sprintf("failed to create request: %v", err)}
	}

	req.Header.Set("Authorization", "Bearer "+tokens.BearerToken)
	req.Header.Set("X-Csrf-Token", tokens.CSRFToken)
	req.Header.Set("Cookie", c.cookie)
	req.Header.Set("X-Twitter-Auth-Type", "OAuth2Session")
	req.Header.Set("X-Twitter-Active-User", "yes")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "*/*")
	if form {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   method,
			"url":      rawURL,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, &Error{Type: ErrorTypeNetwork, Message: fmt.Sprintf("network error: %v", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Type: ErrorTypeNetwork, Message: fmt.Sprintf("failed to read response body: %v", err), Code: resp.StatusCode}
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   method,
		"url":      rawURL,
		"status":   resp.StatusCode,
		"duration": duration,
	})

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return data, NewHTTPError(resp.StatusCode, snippet(data))
	}
	return data, nil
}

// GetJSON performs an authenticated GET and decodes the JSON response.
func (c *Client) GetJSON(ctx context.Context, rawURL string, target interface{}) error {
	data, err := c.do(ctx, http.MethodGet, rawURL, nil, false)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return &Error{Type: ErrorTypeBadJSON, Message: fmt.Sprintf("failed to decode response: %v (body: %s)", err, snippet(data))}
	}
	return nil
}

// PostForm performs an authenticated form POST and decodes the JSON response.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values, target interface{}) error {
	data, err := c.do(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()), true)
	if err != nil {
		return err
	}
	if target == nil {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return &Error{Type: ErrorTypeBadJSON, Message: fmt.Sprintf("failed to decode response: %v (body: %s)", err, snippet(data))}
	}
	return nil
}

// GetText fetches a URL as text with session credentials. Used for script
// bundle scanning, where responses are JavaScript rather than JSON.
func (c *Client) GetText(ctx context.Context, rawURL string) (string, error) {
	data, err := c.do(ctx, http.MethodGet, rawURL, nil, false)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// snippet truncates a response body for error messages.
func snippet(data []byte) string {
	const max = 200
	s := string(data)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
