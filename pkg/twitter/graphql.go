package twitter

import (
	"context"
	"fmt"
	"time"
)

// createdAtLayout is the legacy timestamp format used across the API.
const createdAtLayout = "Mon Jan 02 15:04:05 -0700 2006"

type gqlError struct {
	Message string `json:"message"`
}

// UserIdentity is the result of an identity lookup.
type UserIdentity struct {
	RestID     string
	ScreenName string
	Name       string
}

// UserByScreenName resolves a username to its numeric rest_id via the
// identity-lookup GraphQL operation currently registered.
func (c *Client) UserByScreenName(ctx context.Context, reg *Registry, username string) (*UserIdentity, error) {
	op := reg.OpName(OpIdentity)
	path, ok := reg.Path(op)
	if !ok {
		return nil, &Error{Type: ErrorTypeAPI, Message: fmt.Sprintf("operation %s not resolved", op)}
	}

	variables := map[string]any{
		"screen_name":              username,
		"withSafetyModeUserFields": true,
	}

	var raw struct {
		Data struct {
			User struct {
				Result struct {
					RestID string `json:"rest_id"`
					Legacy struct {
						ScreenName string `json:"screen_name"`
						Name       string `json:"name"`
					} `json:"legacy"`
				} `json:"result"`
			} `json:"user"`
		} `json:"data"`
		Errors []gqlError `json:"errors"`
	}
	if err := c.GetJSON(ctx, graphqlURL(c.baseURL, path, variables, gqlFeatures()), &raw); err != nil {
		return nil, err
	}
	if len(raw.Errors) > 0 {
		return nil, classifyGQLError(raw.Errors[0].Message)
	}
	if raw.Data.User.Result.RestID == "" {
		return nil, &Error{Type: ErrorTypeAPI, Message: fmt.Sprintf("no rest_id for %s", username)}
	}

	return &UserIdentity{
		RestID:     raw.Data.User.Result.RestID,
		ScreenName: raw.Data.User.Result.Legacy.ScreenName,
		Name:       raw.Data.User.Result.Legacy.Name,
	}, nil
}

// UserTweets fetches a small page of the user's recent timeline entries and
// returns their parseable creation timestamps. The API does not guarantee
// chronological order, so callers must take the maximum.
func (c *Client) UserTweets(ctx context.Context, reg *Registry, userID string, count int) ([]time.Time, error) {
	op := reg.OpName(OpTimeline)
	path, ok := reg.Path(op)
	if !ok {
		return nil, &Error{Type: ErrorTypeAPI, Message: fmt.Sprintf("operation %s not resolved", op)}
	}

	variables := map[string]any{
		"userId":                 userID,
		"count":                  count,
		"includePromotedContent": false,
		"withVoice":              true,
		"withV2Timeline":         true,
	}

	var raw struct {
		Data struct {
			User struct {
				Result struct {
					Timeline struct {
						Timeline timelineObj `json:"timeline"`
					} `json:"timeline"`
					TimelineV2 struct {
						Timeline timelineObj `json:"timeline"`
					} `json:"timeline_v2"`
				} `json:"result"`
			} `json:"user"`
		} `json:"data"`
		Errors []gqlError `json:"errors"`
	}
	if err := c.GetJSON(ctx, graphqlURL(c.baseURL, path, variables, gqlFeatures()), &raw); err != nil {
		return nil, err
	}
	if len(raw.Errors) > 0 {
		return nil, classifyGQLError(raw.Errors[0].Message)
	}

	tl := raw.Data.User.Result.Timeline.Timeline
	if len(tl.Instructions) == 0 {
		tl = raw.Data.User.Result.TimelineV2.Timeline
	}
	return extractTimestamps(tl), nil
}

// classifyGQLError maps a GraphQL application-level error message onto the
// error taxonomy.
func classifyGQLError(message string) *Error {
	switch {
	case IsRateLimitMessage(message):
		return &Error{Type: ErrorTypeRateLimited, Message: message, Code: 429}
	case ShouldRetryStaleQuery(message):
		return &Error{Type: ErrorTypeStaleQuery, Message: message}
	default:
		return &Error{Type: ErrorTypeAPI, Message: message}
	}
}

// --- Timeline parsing ---

type timelineObj struct {
	Instructions []timelineInstruction `json:"instructions"`
}

type timelineInstruction struct {
	Type    string          `json:"type"`
	Entries []timelineEntry `json:"entries"`
	Entry   *timelineEntry  `json:"entry"`
}

type timelineEntry struct {
	EntryID string `json:"entryId"`
	Content struct {
		ItemContent struct {
			TweetResults struct {
				Result tweetResult `json:"result"`
			} `json:"tweet_results"`
		} `json:"itemContent"`
	} `json:"content"`
}

type tweetResult struct {
	Legacy struct {
		CreatedAt string `json:"created_at"`
	} `json:"legacy"`
	// TweetWithVisibilityResults wraps the tweet one level deeper.
	Tweet *struct {
		Legacy struct {
			CreatedAt string `json:"created_at"`
		} `json:"legacy"`
	} `json:"tweet"`
}

func (t tweetResult) createdAt() string {
	if t.Legacy.CreatedAt != "" {
		return t.Legacy.CreatedAt
	}
	if t.Tweet != nil {
		return t.Tweet.Legacy.CreatedAt
	}
	return ""
}

// extractTimestamps collects every parseable tweet creation time from a
// timeline, pinned entries included.
func extractTimestamps(tl timelineObj) []time.Time {
	var out []time.Time
	collect := func(e timelineEntry) {
		raw := e.Content.ItemContent.TweetResults.Result.createdAt()
		if raw == "" {
			return
		}
		if ts, err := time.Parse(createdAtLayout, raw); err == nil {
			out = append(out, ts)
		}
	}
	for _, ins := range tl.Instructions {
		for _, e := range ins.Entries {
			collect(e)
		}
		if ins.Entry != nil {
			collect(*ins.Entry)
		}
	}
	return out
}

// NewestTimestamp returns the maximum of a set of timestamps, with ok=false
// for an empty set. Callers must not assume the first entry is the newest.
func NewestTimestamp(ts []time.Time) (time.Time, bool) {
	if len(ts) == 0 {
		return time.Time{}, false
	}
	newest := ts[0]
	for _, t := range ts[1:] {
		if t.After(newest) {
			newest = t
		}
	}
	return newest, true
}
