package twitter

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFriendsListPaging(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/i/api/1.1/friends/list.json", r.URL.Path)
		assert.Equal(t, "me", r.URL.Query().Get("screen_name"))
		assert.Equal(t, "20", r.URL.Query().Get("count"))
		assert.Equal(t, "1700000000", r.URL.Query().Get("cursor"))
		w.Write([]byte(`{
			"users":[
				{"id_str":"1","screen_name":"alice","name":"Alice"},
				{"id_str":"2","screen_name":"bob","name":"Bob"},
				{"id_str":"3","screen_name":"","name":"ghost"}
			],
			"next_cursor_str":"1700000001"
		}`))
	}))

	page, err := c.FriendsList(context.Background(), "me", "1700000000", 20)
	require.NoError(t, err)
	require.Len(t, page.Accounts, 2)
	assert.Equal(t, "alice", page.Accounts[0].Username)
	assert.Equal(t, "1", page.Accounts[0].UserID)
	assert.Equal(t, "1700000001", page.NextCursor)
	assert.False(t, page.Done())
}

func TestFriendsPageDone(t *testing.T) {
	assert.True(t, (&FriendsPage{NextCursor: "0"}).Done())
	assert.True(t, (&FriendsPage{NextCursor: ""}).Done())
	assert.False(t, (&FriendsPage{NextCursor: "1700000001"}).Done())
}

func TestUserShow(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/i/api/1.1/users/show.json", r.URL.Path)
		assert.Equal(t, "alice", r.URL.Query().Get("screen_name"))
		w.Write([]byte(`{"id_str":"424242","screen_name":"alice"}`))
	}))

	id, err := c.UserShow(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "424242", id)
}

func TestUserShowMissingID(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"screen_name":"alice"}`))
	}))

	_, err := c.UserShow(context.Background(), "alice")
	require.Error(t, err)
	assert.Equal(t, "rest_error", Reason(err))
}

func TestUserTimeline(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/i/api/1.1/statuses/user_timeline.json", r.URL.Path)
		assert.Equal(t, "424242", r.URL.Query().Get("user_id"))
		w.Write([]byte(`[
			{"created_at":"Mon Jan 06 10:00:00 +0000 2025"},
			{"created_at":"not a date"},
			{"created_at":"Tue Feb 11 08:00:00 +0000 2025"}
		]`))
	}))

	ts, err := c.UserTimeline(context.Background(), "424242", 20)
	require.NoError(t, err)
	require.Len(t, ts, 2)

	newest, ok := NewestTimestamp(ts)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, time.February, 11, 8, 0, 0, 0, time.UTC), newest.UTC())
}

func TestUserTimelineNotFound(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"errors":[{"code":34,"message":"Sorry, that page does not exist."}]}`))
	}))

	_, err := c.UserTimeline(context.Background(), "424242", 20)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, "http_404", Reason(err))
}

func TestDestroyFriendship(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		stillFollowing bool
	}{
		{"unfollow confirmed", `{"screen_name":"alice","following":false}`, false},
		{"unfollow did not stick", `{"screen_name":"alice","following":true}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/i/api/1.1/friendships/destroy.json", r.URL.Path)
				require.NoError(t, r.ParseForm())
				assert.Equal(t, "424242", r.PostForm.Get("user_id"))
				w.Write([]byte(tt.body))
			}))

			res, err := c.DestroyFriendship(context.Background(), "424242")
			require.NoError(t, err)
			assert.Equal(t, "alice", res.Username)
			assert.Equal(t, tt.stillFollowing, res.StillFollowing)
		})
	}
}

func TestWrapRESTKeepsRateLimitClassification(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"errors":[{"code":88,"message":"Rate limit exceeded"}]}`))
	}))

	_, err := c.FriendsList(context.Background(), "me", "", 20)
	require.Error(t, err)
	assert.True(t, IsRateLimit(err))
	assert.Equal(t, "rate_limited", Reason(err))
}
