package twitter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hernaezTlon/x-following-cleaner/pkg/logger"
	"github.com/hernaezTlon/x-following-cleaner/pkg/retry"
)

const testCookie = "auth_token=abc; ct0=csrf-value-123"

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(testCookie, "test-agent/1.0", logger.NewTestLogger())
	c.SetBaseURL(srv.URL)
	return c, srv
}

func TestClientSendsSessionHeaders(t *testing.T) {
	var got http.Header
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte(`{}`))
	}))

	var out map[string]any
	err := c.GetJSON(context.Background(), c.baseURL+"/i/api/1.1/test.json", &out)
	require.NoError(t, err)

	assert.Equal(t, "Bearer "+BearerToken, got.Get("Authorization"))
	assert.Equal(t, "csrf-value-123", got.Get("X-Csrf-Token"))
	assert.Equal(t, testCookie, got.Get("Cookie"))
	assert.Equal(t, "OAuth2Session", got.Get("X-Twitter-Auth-Type"))
	assert.Equal(t, "yes", got.Get("X-Twitter-Active-User"))
	assert.Equal(t, "test-agent/1.0", got.Get("User-Agent"))
}

func TestClientNoSessionCookie(t *testing.T) {
	c := NewClient("other=1", "agent", logger.NewTestLogger())

	var out map[string]any
	err := c.GetJSON(context.Background(), "http://127.0.0.1:0/unused", &out)
	require.Error(t, err)
	assert.True(t, IsNoAuth(err))
	assert.Equal(t, "no_auth", Reason(err))
}

func TestClientHTTPStatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		reason string
	}{
		{"rate limited", http.StatusTooManyRequests, "rate_limited"},
		{"not found", http.StatusNotFound, "http_404"},
		{"server error", http.StatusInternalServerError, "http_500"},
		{"forbidden", http.StatusForbidden, "http_403"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"errors":[{"message":"nope"}]}`))
			}))

			var out map[string]any
			err := c.GetJSON(context.Background(), c.baseURL+"/i/api/1.1/test.json", &out)
			require.Error(t, err)
			assert.Equal(t, tt.reason, Reason(err))
		})
	}
}

func TestClientBadJSON(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	}))

	var out map[string]any
	err := c.GetJSON(context.Background(), c.baseURL+"/i/api/1.1/test.json", &out)
	require.Error(t, err)
	assert.Equal(t, "bad_json", Reason(err))
}

func TestClientPostFormEncodesBody(t *testing.T) {
	var gotBody string
	var gotContentType string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotBody = r.PostForm.Get("user_id")
		gotContentType = r.Header.Get("Content-Type")
		w.Write([]byte(`{"ok":true}`))
	}))

	form := url.Values{"user_id": {"12345"}}
	err := c.PostForm(context.Background(), c.baseURL+"/i/api/1.1/test.json", form, nil)
	require.NoError(t, err)
	assert.Equal(t, "12345", gotBody)
	assert.Equal(t, "application/x-www-form-urlencoded", gotContentType)
}

// flakyTransport fails the first n round trips with a transport error, then
// delegates to the real transport.
type flakyTransport struct {
	failures int
	calls    int
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("connection reset by peer")
	}
	return http.DefaultTransport.RoundTrip(req)
}

func TestClientRetriesNetworkErrorsOnGet(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	transport := &flakyTransport{failures: 2}
	c.SetHTTPClient(&http.Client{Transport: transport})
	policy := retry.DefaultPolicy()
	policy.RetryIf = func(err error) bool { return Reason(err) == "network" }
	policy.Backoff = &retry.FixedBackoff{Delay: 0}
	c.SetRetryPolicy(policy)

	var out map[string]any
	err := c.GetJSON(context.Background(), c.baseURL+"/i/api/1.1/test.json", &out)
	require.NoError(t, err)
	assert.Equal(t, 3, transport.calls)
}

func TestClientDoesNotRetryPosts(t *testing.T) {
	c, _ := newTestClient(t, nil)
	transport := &flakyTransport{failures: 1}
	c.SetHTTPClient(&http.Client{Transport: transport})

	err := c.PostForm(context.Background(), c.baseURL+"/i/api/1.1/test.json", url.Values{}, nil)
	require.Error(t, err)
	assert.Equal(t, "network", Reason(err))
	assert.Equal(t, 1, transport.calls)
}

func TestClientGetText(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`window.__INITIAL_STATE__={};`))
	}))

	body, err := c.GetText(context.Background(), c.baseURL+"/main.js")
	require.NoError(t, err)
	assert.Contains(t, body, "__INITIAL_STATE__")
}

func TestTokenSourceCaching(t *testing.T) {
	ts := NewTokenSource(testCookie)

	first, err := ts.Tokens()
	require.NoError(t, err)
	second, err := ts.Tokens()
	require.NoError(t, err)
	assert.Same(t, first, second)

	ts.SetCookie("ct0=newer")
	third, err := ts.Tokens()
	require.NoError(t, err)
	assert.Equal(t, "newer", third.CSRFToken)
}

func TestCookieValue(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		want   string
	}{
		{"present", "a=1; ct0=tok; b=2", "tok"},
		{"first", "ct0=tok", "tok"},
		{"absent", "a=1; b=2", ""},
		{"empty value", "ct0=; a=1", ""},
		{"prefix name does not match", "xct0=tok", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cookieValue(tt.cookie, "ct0"))
		})
	}
}
