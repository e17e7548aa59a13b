package twitter

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/hernaezTlon/x-following-cleaner/pkg/models"
)

// friendsCursorEnd is the sentinel cursor value signalling the last page.
const friendsCursorEnd = "0"

// FriendsPage is one page of the paginated friends list.
type FriendsPage struct {
	Accounts   []models.Account
	NextCursor string
}

// Done reports whether this page was the last one.
func (p *FriendsPage) Done() bool {
	return p.NextCursor == "" || p.NextCursor == friendsCursorEnd
}

// FriendsList fetches one page of the accounts screenName follows via the
// legacy cursor-based REST endpoint.
func (c *Client) FriendsList(ctx context.Context, screenName, cursor string, count int) (*FriendsPage, error) {
	params := url.Values{}
	params.Set("screen_name", screenName)
	params.Set("count", strconv.Itoa(count))
	params.Set("skip_status", "true")
	params.Set("include_user_entities", "false")
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	var raw struct {
		Users []struct {
			IDStr      string `json:"id_str"`
			ScreenName string `json:"screen_name"`
			Name       string `json:"name"`
		} `json:"users"`
		NextCursorStr string `json:"next_cursor_str"`
	}
	if err := c.GetJSON(ctx, restURL(c.baseURL, "/friends/list.json", params), &raw); err != nil {
		return nil, wrapREST(err)
	}

	page := &FriendsPage{NextCursor: raw.NextCursorStr}
	for _, u := range raw.Users {
		if u.ScreenName == "" {
			continue
		}
		page.Accounts = append(page.Accounts, models.Account{
			Username: u.ScreenName,
			Name:     u.Name,
			UserID:   u.IDStr,
		})
	}
	return page, nil
}

// UserShow resolves a username to its numeric id via the REST users/show
// endpoint. Secondary identity source behind the GraphQL lookup.
func (c *Client) UserShow(ctx context.Context, screenName string) (string, error) {
	params := url.Values{}
	params.Set("screen_name", screenName)

	var raw struct {
		IDStr string `json:"id_str"`
	}
	if err := c.GetJSON(ctx, restURL(c.baseURL, "/users/show.json", params), &raw); err != nil {
		return "", wrapREST(err)
	}
	if raw.IDStr == "" {
		return "", &Error{Type: ErrorTypeREST, Message: "users/show returned no id"}
	}
	return raw.IDStr, nil
}

// UserTimeline fetches recent statuses for a numeric user id via the REST
// timeline endpoint. Secondary activity source behind the GraphQL timeline.
func (c *Client) UserTimeline(ctx context.Context, userID string, count int) ([]time.Time, error) {
	params := url.Values{}
	params.Set("user_id", userID)
	params.Set("count", strconv.Itoa(count))
	params.Set("include_rts", "true")
	params.Set("trim_user", "true")

	var raw []struct {
		CreatedAt string `json:"created_at"`
	}
	if err := c.GetJSON(ctx, restURL(c.baseURL, "/statuses/user_timeline.json", params), &raw); err != nil {
		return nil, wrapREST(err)
	}

	var out []time.Time
	for _, item := range raw {
		if ts, err := time.Parse(createdAtLayout, item.CreatedAt); err == nil {
			out = append(out, ts)
		}
	}
	return out, nil
}

// UnfollowResult reports what the destroy-relationship action observed.
type UnfollowResult struct {
	Username       string
	StillFollowing bool
}

// DestroyFriendship unfollows a numeric user id and interprets the response's
// relationship flags to confirm the unfollow took effect.
func (c *Client) DestroyFriendship(ctx context.Context, userID string) (*UnfollowResult, error) {
	form := url.Values{}
	form.Set("user_id", userID)

	var raw struct {
		ScreenName string `json:"screen_name"`
		Following  bool   `json:"following"`
	}
	if err := c.PostForm(ctx, restURL(c.baseURL, "/friendships/destroy.json", url.Values{}), form, &raw); err != nil {
		return nil, wrapREST(err)
	}

	return &UnfollowResult{
		Username:       raw.ScreenName,
		StillFollowing: raw.Following,
	}, nil
}

// wrapREST normalizes non-HTTP failures from REST calls onto the rest_error
// type while preserving rate-limit and HTTP classifications.
func wrapREST(err error) error {
	if apiErr, ok := err.(*Error); ok {
		switch apiErr.Type {
		case ErrorTypeNetwork:
			return &Error{Type: ErrorTypeREST, Message: apiErr.Message, Code: apiErr.Code}
		}
		return apiErr
	}
	return err
}
