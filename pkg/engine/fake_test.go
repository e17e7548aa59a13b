package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hernaezTlon/x-following-cleaner/pkg/twitter"
)

// fakeAPI is a scripted API. Each hook receives a zero-based call index so
// tests can make a call fail first and succeed later.
type fakeAPI struct {
	mu    sync.Mutex
	calls map[string]int

	identity func(username string, call int) (*twitter.UserIdentity, error)
	tweets   func(userID string, call int) ([]time.Time, error)
	show     func(screenName string, call int) (string, error)
	timeline func(userID string, call int) ([]time.Time, error)
	friends  func(cursor string, call int) (*twitter.FriendsPage, error)
	destroy  func(userID string, call int) (*twitter.UnfollowResult, error)
}

func (f *fakeAPI) bump(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	n := f.calls[name]
	f.calls[name] = n + 1
	return n
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) UserByScreenName(ctx context.Context, reg *twitter.Registry, username string) (*twitter.UserIdentity, error) {
	n := f.bump("identity")
	if f.identity == nil {
		return nil, fmt.Errorf("unexpected UserByScreenName(%s)", username)
	}
	return f.identity(username, n)
}

func (f *fakeAPI) UserTweets(ctx context.Context, reg *twitter.Registry, userID string, count int) ([]time.Time, error) {
	n := f.bump("tweets")
	if f.tweets == nil {
		return nil, fmt.Errorf("unexpected UserTweets(%s)", userID)
	}
	return f.tweets(userID, n)
}

func (f *fakeAPI) UserShow(ctx context.Context, screenName string) (string, error) {
	n := f.bump("show")
	if f.show == nil {
		return "", fmt.Errorf("unexpected UserShow(%s)", screenName)
	}
	return f.show(screenName, n)
}

func (f *fakeAPI) UserTimeline(ctx context.Context, userID string, count int) ([]time.Time, error) {
	n := f.bump("timeline")
	if f.timeline == nil {
		return nil, fmt.Errorf("unexpected UserTimeline(%s)", userID)
	}
	return f.timeline(userID, n)
}

func (f *fakeAPI) FriendsList(ctx context.Context, screenName, cursor string, count int) (*twitter.FriendsPage, error) {
	n := f.bump("friends")
	if f.friends == nil {
		return nil, fmt.Errorf("unexpected FriendsList(%s)", cursor)
	}
	return f.friends(cursor, n)
}

func (f *fakeAPI) DestroyFriendship(ctx context.Context, userID string) (*twitter.UnfollowResult, error) {
	n := f.bump("destroy")
	if f.destroy == nil {
		return nil, fmt.Errorf("unexpected DestroyFriendship(%s)", userID)
	}
	return f.destroy(userID, n)
}

var _ API = (*fakeAPI)(nil)

// fakeRefresher records registry refresh requests.
type fakeRefresher struct {
	mu     sync.Mutex
	result bool
	calls  int
}

func (r *fakeRefresher) Refresh(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.result
}

func (r *fakeRefresher) refreshed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func rateLimitErr() error {
	return &twitter.Error{Type: twitter.ErrorTypeRateLimited, Message: "Rate limit exceeded", Code: 429}
}

func notFoundErr() error {
	return twitter.NewHTTPError(404, "not found")
}

func apiErr(msg string) error {
	return &twitter.Error{Type: twitter.ErrorTypeAPI, Message: msg}
}

func staleQueryErr() error {
	return &twitter.Error{Type: twitter.ErrorTypeStaleQuery, Message: "Unknown operation"}
}

// noSleep replaces engine sleeps in tests.
func noSleep(ctx context.Context, d time.Duration) error { return nil }

// sleepRecorder collects requested sleep durations without sleeping.
type sleepRecorder struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slept = append(s.slept, d)
	return nil
}

func (s *sleepRecorder) countOf(d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.slept {
		if v == d {
			n++
		}
	}
	return n
}
