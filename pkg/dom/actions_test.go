package dom

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hernaezTlon/x-following-cleaner/pkg/logger"
)

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func testScrollOptions() ScrollOptions {
	return ScrollOptions{
		Delay:         time.Millisecond,
		MaxScrolls:    100,
		StableScrolls: 3,
		Sleep:         noSleep,
	}
}

func TestProfileHandle(t *testing.T) {
	tests := []struct {
		href   string
		want   string
		wantOK bool
	}{
		{"/alice", "alice", true},
		{"https://x.com/bob", "bob", true},
		{"/Under_score99", "Under_score99", true},
		{"/home", "", false},
		{"/explore", "", false},
		{"/alice/status/123", "", false},
		{"/search?q=x", "", false},
		{"/", "", false},
		{"", "", false},
		{"/way_too_long_for_a_handle", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			got, ok := ProfileHandle(tt.href)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Alice", displayName("Alice"))
	assert.Equal(t, "Alice", displayName("Alice@alice"))
	assert.Equal(t, "", displayName("@alice"))
	assert.Equal(t, "", displayName("  "))
}

func TestCollectFollowing(t *testing.T) {
	page := NewFakePage()
	page.SetNodes(UserCellLink, []Node{
		{Text: "", Attrs: map[string]string{"href": "/alice"}},        // avatar link
		{Text: "Alice", Attrs: map[string]string{"href": "/alice"}},   // name link
		{Text: "@alice", Attrs: map[string]string{"href": "/alice"}},  // handle link
		{Text: "@me", Attrs: map[string]string{"href": "/me"}},        // own account
		{Text: "weird", Attrs: map[string]string{"href": "/i/lists"}}, // not a profile
	})
	page.Heights = []int{1000, 1000, 1000, 1000}
	page.OnScroll = func(scrolls int) {
		if scrolls == 1 {
			page.SetNodes(UserCellLink, []Node{
				{Text: "Alice", Attrs: map[string]string{"href": "/alice"}},
				{Text: "Bob", Attrs: map[string]string{"href": "/bob"}},
			})
		}
	}

	accounts, err := CollectFollowing(context.Background(), page, "me", testScrollOptions(), logger.NewTestLogger())
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "alice", accounts[0].Username)
	assert.Equal(t, "Alice", accounts[0].Name)
	assert.Equal(t, "bob", accounts[1].Username)
	assert.Contains(t, page.Navigated[0], "/me/following")
}

func TestCollectFollowingNameBackfill(t *testing.T) {
	// The avatar link shows up first with no text; the name link later in the
	// same cell must fill the display name in.
	page := NewFakePage()
	page.SetNodes(UserCellLink, []Node{
		{Text: "", Attrs: map[string]string{"href": "/carol"}},
		{Text: "Carol D", Attrs: map[string]string{"href": "/carol"}},
	})
	page.Heights = []int{500, 500, 500, 500}

	accounts, err := CollectFollowing(context.Background(), page, "me", testScrollOptions(), logger.NewTestLogger())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "Carol D", accounts[0].Name)
}

func TestCollectFollowingStopsWhenHeightStabilizes(t *testing.T) {
	page := NewFakePage()
	page.Heights = []int{1000, 2000, 2000, 2000, 2000}

	opts := testScrollOptions()
	opts.StableScrolls = 2
	_, err := CollectFollowing(context.Background(), page, "me", opts, logger.NewTestLogger())
	require.NoError(t, err)
	// Stops after two consecutive unchanged heights, well short of MaxScrolls.
	assert.Less(t, page.Scrolls, 10)
}

func TestCollectFollowingScrollCeiling(t *testing.T) {
	page := NewFakePage()
	heights := make([]int, 200)
	for i := range heights {
		heights[i] = 100 * (i + 1) // never stabilizes
	}
	page.Heights = heights

	opts := testScrollOptions()
	opts.MaxScrolls = 5
	_, err := CollectFollowing(context.Background(), page, "me", opts, logger.NewTestLogger())
	require.NoError(t, err)
	assert.Equal(t, 5, page.Scrolls)
}

func TestLoggedInUsername(t *testing.T) {
	page := NewFakePage()
	page.SetNodes(ProfileLink, []Node{
		{Attrs: map[string]string{"href": "/myhandle"}},
	})

	username, err := LoggedInUsername(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, "myhandle", username)
}

func TestLoggedInUsernameNotLoggedIn(t *testing.T) {
	page := NewFakePage()
	_, err := LoggedInUsername(context.Background(), page)
	assert.Error(t, err)
}

func TestLatestTweetTime(t *testing.T) {
	page := NewFakePage()
	page.SetNodes(TweetTimestamp, []Node{
		{Attrs: map[string]string{"datetime": "2024-03-01T10:00:00.000Z"}},
		{Attrs: map[string]string{"datetime": "2025-01-15T08:30:00.000Z"}},
		{Attrs: map[string]string{"datetime": "2011-06-01T00:00:00.000Z"}}, // join date noise
		{Attrs: map[string]string{"datetime": "garbage"}},
		{Attrs: map[string]string{}},
	})

	ts, err := LatestTweetTime(context.Background(), page, "alice")
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.Equal(t, 2025, ts.Year())
	assert.Contains(t, page.Navigated[0], "/alice")
}

func TestLatestTweetTimeNoTweets(t *testing.T) {
	page := NewFakePage()
	ts, err := LatestTweetTime(context.Background(), page, "alice")
	require.NoError(t, err)
	assert.Nil(t, ts)
}

func TestUnfollow(t *testing.T) {
	page := NewFakePage()
	page.SetNodes(FollowButton, []Node{{Text: "Follow"}})

	err := Unfollow(context.Background(), page, "alice", testScrollOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{FollowingButton, ConfirmUnfollow}, page.Clicked)
}

func TestUnfollowDidNotStick(t *testing.T) {
	page := NewFakePage()
	// No Follow button after confirming: still following.
	err := Unfollow(context.Background(), page, "alice", testScrollOptions())
	assert.Error(t, err)
}

func TestUnfollowNoButton(t *testing.T) {
	page := NewFakePage()
	page.ClickErr = errors.New("node not found")

	err := Unfollow(context.Background(), page, "alice", testScrollOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alice")
}
