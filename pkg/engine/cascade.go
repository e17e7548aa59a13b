package engine

import (
	"context"
	"errors"
	"time"

	"github.com/hernaezTlon/x-following-cleaner/pkg/dom"
	"github.com/hernaezTlon/x-following-cleaner/pkg/logger"
	"github.com/hernaezTlon/x-following-cleaner/pkg/models"
	"github.com/hernaezTlon/x-following-cleaner/pkg/twitter"
)

// Benign cascade outcomes. These are determinations, not failures.
const (
	ReasonNoTweets = "no_tweets"
	ReasonNoUserID = "no_user_id"
)

// ActivityResult is the outcome of a last-activity lookup. OK with a nil Date
// means the account verifiably has no recent posts, which is a successful
// determination of inactivity, not an error.
type ActivityResult struct {
	OK     bool
	Date   *time.Time
	Reason string
}

// Cascade resolves per-account identity and last activity through an ordered
// chain of data sources: cached id, durable index, GraphQL, REST fallback.
type Cascade struct {
	api      API
	registry *twitter.Registry
	refresh  Refresher
	index    models.FollowingIndex
	page     dom.Page
	logger   logger.Logger

	pageSize int

	// gqlIdentityDead is set when the GraphQL identity path 404s, switching
	// identity lookups to the REST endpoint for the rest of the session.
	gqlIdentityDead bool
}

// NewCascade creates a cascade over an API client and a shared endpoint
// registry. index may be nil; refresh may be nil to disable stale-query
// recovery.
func NewCascade(api API, registry *twitter.Registry, refresh Refresher, index models.FollowingIndex, pageSize int, log logger.Logger) *Cascade {
	if log == nil {
		log = logger.GetLogger()
	}
	if index == nil {
		index = models.FollowingIndex{}
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Cascade{
		api:      api,
		registry: registry,
		refresh:  refresh,
		index:    index,
		logger:   log,
		pageSize: pageSize,
	}
}

// SetPage attaches a rendered-page source, enabling the final activity tier:
// reading timestamps off the profile when both API timelines fail.
func (c *Cascade) SetPage(p dom.Page) {
	c.page = p
}

// Index exposes the identity cache so collectors can keep it current.
func (c *Cascade) Index() models.FollowingIndex {
	return c.index
}

// UserID resolves an account's numeric id: cached value, then the durable
// following index, then the identity APIs. A successful lookup is memoized
// onto the account and into the index.
func (c *Cascade) UserID(ctx context.Context, acc *models.Account) (string, error) {
	if acc.UserID != "" {
		return acc.UserID, nil
	}

	if entry, ok := c.index.Lookup(acc.Username); ok && entry.UserID != "" {
		acc.UserID = entry.UserID
		return acc.UserID, nil
	}

	id, err := c.lookupID(ctx, acc.Username)
	if err != nil {
		return "", err
	}

	acc.UserID = id
	c.index.Put(*acc)
	return id, nil
}

// lookupID queries the identity APIs. A 404 from the GraphQL path kills that
// path for the whole session; any other GraphQL failure falls back to REST
// for this call only.
func (c *Cascade) lookupID(ctx context.Context, username string) (string, error) {
	if !c.gqlIdentityDead {
		identity, err := withStaleRetry(ctx, c, func() (*twitter.UserIdentity, error) {
			return c.api.UserByScreenName(ctx, c.registry, username)
		})
		if err == nil {
			return identity.RestID, nil
		}
		if twitter.IsRateLimit(err) {
			return "", err
		}
		if twitter.IsNotFound(err) {
			c.logger.Warn("identity lookup 404, switching to REST for this session")
			c.gqlIdentityDead = true
		}
	}

	return c.api.UserShow(ctx, username)
}

// LastActivity determines when an account last posted. The timeline's wire
// order is not guaranteed, so the maximum parseable timestamp wins.
func (c *Cascade) LastActivity(ctx context.Context, acc *models.Account) ActivityResult {
	userID, err := c.UserID(ctx, acc)
	if err != nil {
		return failure(err)
	}
	if userID == "" {
		return ActivityResult{Reason: ReasonNoUserID}
	}

	timestamps, err := withStaleRetry(ctx, c, func() ([]time.Time, error) {
		return c.api.UserTweets(ctx, c.registry, userID, c.pageSize)
	})
	if err != nil {
		if twitter.IsRateLimit(err) {
			return failure(err)
		}
		// Secondary timeline source; only possible with a known id, which we
		// have at this point.
		timestamps, err = c.api.UserTimeline(ctx, userID, c.pageSize)
		if err != nil {
			return c.domActivity(ctx, acc, err)
		}
	}

	newest, ok := twitter.NewestTimestamp(timestamps)
	if !ok {
		return ActivityResult{OK: true, Reason: ReasonNoTweets}
	}
	return ActivityResult{OK: true, Date: &newest}
}

// domActivity is the last activity tier: read the newest timestamp off the
// rendered profile. Only reached when both API timelines failed; rate limits
// still propagate so the caller retries instead of burning browser loads.
func (c *Cascade) domActivity(ctx context.Context, acc *models.Account, apiErr error) ActivityResult {
	if c.page == nil || twitter.IsRateLimit(apiErr) {
		return failure(apiErr)
	}

	c.logger.WithField("username", acc.Username).Debug("timeline APIs failed, reading profile page")
	newest, err := dom.LatestTweetTime(ctx, c.page, acc.Username)
	if err != nil {
		return failure(apiErr)
	}
	if newest == nil {
		return ActivityResult{OK: true, Reason: ReasonNoTweets}
	}
	return ActivityResult{OK: true, Date: newest}
}

// withStaleRetry runs a GraphQL call and, when the error text suggests the
// persisted query id went stale, spends one registry refresh and one retry.
func withStaleRetry[T any](ctx context.Context, c *Cascade, call func() (T, error)) (T, error) {
	result, err := call()
	if err == nil || c.refresh == nil {
		return result, err
	}

	var apiErr *twitter.Error
	if !errors.As(err, &apiErr) || apiErr.Type != twitter.ErrorTypeStaleQuery {
		return result, err
	}

	c.logger.Info("query id looks stale, refreshing endpoint registry")
	if !c.refresh.Refresh(ctx) {
		return result, err
	}
	return call()
}

// failure classifies a cascade error into a skip reason.
func failure(err error) ActivityResult {
	if twitter.IsRateLimit(err) {
		return ActivityResult{Reason: string(twitter.ErrorTypeRateLimited)}
	}
	return ActivityResult{Reason: twitter.Reason(err)}
}
