package dom

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/hernaezTlon/x-following-cleaner/pkg/logger"
	"github.com/hernaezTlon/x-following-cleaner/pkg/models"
	"github.com/hernaezTlon/x-following-cleaner/pkg/retry"
	"github.com/hernaezTlon/x-following-cleaner/pkg/twitter"
)

// profileHrefPattern matches a profile link href: exactly one path segment of
// handle characters.
var profileHrefPattern = regexp.MustCompile(`^/([A-Za-z0-9_]{1,15})$`)

// nonProfileSegments are single-segment paths that look like handles but
// aren't profiles.
var nonProfileSegments = map[string]bool{
	"home": true, "explore": true, "notifications": true, "messages": true,
	"search": true, "settings": true, "compose": true, "login": true,
	"follower_requests": true,
}

// domEpoch rejects timestamps older than the modern site. Elements like join
// dates also carry time tags and would otherwise pollute activity detection.
var domEpoch = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// ScrollOptions tunes the incremental scroll-and-collect loop.
type ScrollOptions struct {
	Delay         time.Duration
	MaxScrolls    int
	StableScrolls int

	// Sleep is swappable for tests. Defaults to a context-aware wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (o *ScrollOptions) sleep(ctx context.Context, d time.Duration) error {
	if o.Sleep != nil {
		return o.Sleep(ctx, d)
	}
	return retry.Wait(ctx, d)
}

// CollectFollowing scrolls the /<username>/following page and collects every
// account rendered into the list. The loop ends when the scroll height stops
// growing for StableScrolls consecutive rounds or MaxScrolls is reached,
// whichever comes first.
func CollectFollowing(ctx context.Context, p Page, username string, opts ScrollOptions, log logger.Logger) ([]models.Account, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	url := fmt.Sprintf("%s/%s/following", twitter.BaseURL, username)
	if err := p.Navigate(ctx, url); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var accounts []models.Account
	stable := 0
	lastHeight := -1

	self := strings.ToLower(username)
	for i := 0; i < opts.MaxScrolls; i++ {
		links, err := p.Nodes(ctx, UserCellLink)
		if err != nil {
			return nil, err
		}
		for _, link := range links {
			handle, ok := ProfileHandle(link.Attr("href"))
			if !ok {
				continue
			}
			key := strings.ToLower(handle)
			if key == self {
				continue
			}
			name := displayName(link.Text)
			if seen[key] {
				// Cells link to the same profile more than once; keep the
				// first display name that shows up.
				if name != "" {
					for j := range accounts {
						if accounts[j].Key() == key && accounts[j].Name == "" {
							accounts[j].Name = name
						}
					}
				}
				continue
			}
			seen[key] = true
			accounts = append(accounts, models.Account{Username: handle, Name: name})
		}

		height, err := p.ScrollHeight(ctx)
		if err != nil {
			return nil, err
		}
		if height == lastHeight {
			stable++
			if stable >= opts.StableScrolls {
				break
			}
		} else {
			stable = 0
			lastHeight = height
		}

		if err := p.ScrollBy(ctx, height); err != nil {
			return nil, err
		}
		if err := opts.sleep(ctx, opts.Delay); err != nil {
			return nil, err
		}
	}

	log.DebugWithFields("collected following via scroll", map[string]interface{}{
		"username": username,
		"count":    len(accounts),
	})
	return accounts, nil
}

// displayName filters link text down to a usable display name. Avatar links
// have no text and handle links read "@handle"; neither is a name.
func displayName(text string) string {
	text = strings.TrimSpace(text)
	if text == "" || strings.HasPrefix(text, "@") {
		return ""
	}
	// Name links sometimes concatenate the handle after the name.
	if at := strings.Index(text, "@"); at > 0 {
		text = strings.TrimSpace(text[:at])
	}
	return text
}

// ProfileHandle extracts the handle from a profile link href, rejecting
// same-shaped non-profile paths.
func ProfileHandle(href string) (string, bool) {
	href = strings.TrimPrefix(href, twitter.BaseURL)
	m := profileHrefPattern.FindStringSubmatch(href)
	if m == nil {
		return "", false
	}
	if nonProfileSegments[strings.ToLower(m[1])] {
		return "", false
	}
	return m[1], true
}

// LoggedInUsername detects the session's account from the navigation bar's
// profile link.
func LoggedInUsername(ctx context.Context, p Page) (string, error) {
	nodes, err := p.Nodes(ctx, ProfileLink)
	if err != nil {
		return "", err
	}
	for _, n := range nodes {
		if handle, ok := ProfileHandle(n.Attr("href")); ok {
			return handle, nil
		}
	}
	return "", fmt.Errorf("no profile link in page, not logged in?")
}

// LatestTweetTime reads the newest tweet timestamp off a rendered profile.
// Returns nil when the profile shows no post-2020 tweet timestamps at all.
func LatestTweetTime(ctx context.Context, p Page, username string) (*time.Time, error) {
	url := fmt.Sprintf("%s/%s", twitter.BaseURL, username)
	if err := p.Navigate(ctx, url); err != nil {
		return nil, err
	}

	nodes, err := p.Nodes(ctx, TweetTimestamp)
	if err != nil {
		return nil, err
	}

	var newest *time.Time
	for _, n := range nodes {
		raw := n.Attr("datetime")
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil || ts.Before(domEpoch) {
			continue
		}
		if newest == nil || ts.After(*newest) {
			t := ts
			newest = &t
		}
	}
	return newest, nil
}

// Unfollow drives the profile-page unfollow flow: open the profile, click the
// Following button, confirm the sheet, then verify the button flipped to
// Follow.
func Unfollow(ctx context.Context, p Page, username string, opts ScrollOptions) error {
	url := fmt.Sprintf("%s/%s", twitter.BaseURL, username)
	if err := p.Navigate(ctx, url); err != nil {
		return err
	}

	if err := p.Click(ctx, FollowingButton); err != nil {
		return fmt.Errorf("no following button for %s: %w", username, err)
	}
	if err := p.Click(ctx, ConfirmUnfollow); err != nil {
		return fmt.Errorf("no unfollow confirmation for %s: %w", username, err)
	}
	if err := opts.sleep(ctx, opts.Delay); err != nil {
		return err
	}

	// The button must now read Follow; anything else means it didn't stick.
	nodes, err := p.Nodes(ctx, FollowButton)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return fmt.Errorf("unfollow of %s did not take effect", username)
	}
	return nil
}
