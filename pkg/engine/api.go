package engine

import (
	"context"
	"time"

	"github.com/hernaezTlon/x-following-cleaner/pkg/twitter"
)

// API is the slice of the X client the engines consume. *twitter.Client
// satisfies it; tests substitute a scripted fake.
type API interface {
	UserByScreenName(ctx context.Context, reg *twitter.Registry, username string) (*twitter.UserIdentity, error)
	UserTweets(ctx context.Context, reg *twitter.Registry, userID string, count int) ([]time.Time, error)
	UserShow(ctx context.Context, screenName string) (string, error)
	UserTimeline(ctx context.Context, userID string, count int) ([]time.Time, error)
	FriendsList(ctx context.Context, screenName, cursor string, count int) (*twitter.FriendsPage, error)
	DestroyFriendship(ctx context.Context, userID string) (*twitter.UnfollowResult, error)
}

// Refresher re-resolves the endpoint registry from site bundles. Satisfied by
// *twitter.Resolver; nil disables stale-query recovery.
type Refresher interface {
	Refresh(ctx context.Context) bool
}

var _ API = (*twitter.Client)(nil)
