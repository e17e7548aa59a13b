package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hernaezTlon/x-following-cleaner/pkg/dom"
	"github.com/hernaezTlon/x-following-cleaner/pkg/logger"
	"github.com/hernaezTlon/x-following-cleaner/pkg/models"
	"github.com/hernaezTlon/x-following-cleaner/pkg/store"
	"github.com/hernaezTlon/x-following-cleaner/pkg/twitter"
)

func collectorScrollOptions() dom.ScrollOptions {
	return dom.ScrollOptions{
		Delay:         1,
		MaxScrolls:    10,
		StableScrolls: 2,
		Sleep:         noSleep,
	}
}

func TestCollectPagesThroughFriendsList(t *testing.T) {
	api := &fakeAPI{
		friends: func(cursor string, call int) (*twitter.FriendsPage, error) {
			switch cursor {
			case "":
				return &twitter.FriendsPage{
					Accounts: []models.Account{
						{Username: "me"},
						{Username: "alice", Name: "Alice", UserID: "1"},
						{Username: "bob", UserID: "2"},
					},
					NextCursor: "page2",
				}, nil
			case "page2":
				return &twitter.FriendsPage{
					Accounts: []models.Account{
						{Username: "Bob", UserID: "2"},
						{Username: "carol", UserID: "3"},
					},
					NextCursor: "0",
				}, nil
			default:
				t.Fatalf("unexpected cursor %q", cursor)
				return nil, nil
			}
		},
	}
	ms := store.NewMemoryStore()
	c := NewCollector(api, nil, ms, collectorScrollOptions(), 10, nil, logger.NewTestLogger())

	accounts, err := c.Collect(context.Background(), "me")
	require.NoError(t, err)

	var names []string
	for _, acc := range accounts {
		names = append(names, acc.Key())
	}
	assert.Equal(t, []string{"alice", "bob", "carol"}, names, "own account skipped, duplicates collapsed")
	assert.Equal(t, 2, api.count("friends"))

	index := models.FollowingIndex{}
	require.NoError(t, store.GetJSON(ms, store.KeyFollowingIndex, &index))
	entry, ok := index.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, "1", entry.UserID)
	assert.Equal(t, "Alice", entry.Name)
}

func TestCollectStopsAtPageCeiling(t *testing.T) {
	api := &fakeAPI{
		friends: func(cursor string, call int) (*twitter.FriendsPage, error) {
			return &twitter.FriendsPage{
				Accounts:   []models.Account{{Username: "user" + cursor}},
				NextCursor: cursor + "x",
			}, nil
		},
	}
	c := NewCollector(api, nil, store.NewMemoryStore(), collectorScrollOptions(), 3, nil, logger.NewTestLogger())

	_, err := c.Collect(context.Background(), "me")
	require.NoError(t, err)
	assert.Equal(t, 3, api.count("friends"))
}

func TestCollectFallsBackToDOM(t *testing.T) {
	api := &fakeAPI{
		friends: func(cursor string, call int) (*twitter.FriendsPage, error) {
			return nil, apiErr("friends list gone")
		},
	}
	page := dom.NewFakePage()
	page.SetNodes(dom.UserCellLink, []dom.Node{
		{Text: "Alice", Attrs: map[string]string{"href": "/alice"}},
		{Text: "Bob", Attrs: map[string]string{"href": "/bob"}},
	})
	page.Heights = []int{1000, 1000, 1000}

	ms := store.NewMemoryStore()
	c := NewCollector(api, page, ms, collectorScrollOptions(), 5, nil, logger.NewTestLogger())

	accounts, err := c.Collect(context.Background(), "me")
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "alice", accounts[0].Key())

	// The DOM path still feeds the index, minus numeric ids.
	index := models.FollowingIndex{}
	require.NoError(t, store.GetJSON(ms, store.KeyFollowingIndex, &index))
	_, ok := index.Lookup("bob")
	assert.True(t, ok)
}

func TestCollectWithoutBrowserSurfacesRESTError(t *testing.T) {
	api := &fakeAPI{
		friends: func(cursor string, call int) (*twitter.FriendsPage, error) {
			return nil, apiErr("nope")
		},
	}
	c := NewCollector(api, nil, store.NewMemoryStore(), collectorScrollOptions(), 5, nil, logger.NewTestLogger())

	_, err := c.Collect(context.Background(), "me")
	require.Error(t, err)
}

func TestCollectEmptyEverywhereFails(t *testing.T) {
	api := &fakeAPI{
		friends: func(cursor string, call int) (*twitter.FriendsPage, error) {
			return &twitter.FriendsPage{NextCursor: "0"}, nil
		},
	}
	page := dom.NewFakePage()
	page.Heights = []int{500, 500, 500}
	c := NewCollector(api, page, store.NewMemoryStore(), collectorScrollOptions(), 5, nil, logger.NewTestLogger())

	_, err := c.Collect(context.Background(), "me")
	require.Error(t, err)
}
