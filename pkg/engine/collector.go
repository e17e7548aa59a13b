package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hernaezTlon/x-following-cleaner/pkg/dom"
	"github.com/hernaezTlon/x-following-cleaner/pkg/logger"
	"github.com/hernaezTlon/x-following-cleaner/pkg/models"
	"github.com/hernaezTlon/x-following-cleaner/pkg/ratelimit"
	"github.com/hernaezTlon/x-following-cleaner/pkg/store"
)

// friendsPageSize is how many accounts each friends/list page requests.
const friendsPageSize = 200

// friendsPageInterval spaces successive friends/list pages; the endpoint has
// one of the tightest rate windows on the API.
const friendsPageInterval = 250 * time.Millisecond

// Collector enumerates the full follow-list: cursor-paged REST primary with a
// scroll-and-scrape DOM fallback. Collected identities land in the durable
// FollowingIndex.
type Collector struct {
	api     API
	page    dom.Page
	store   store.Store
	scroll  dom.ScrollOptions
	maxPage int
	pacer   *ratelimit.Pacer
	sink    Sink
	logger  logger.Logger
}

// NewCollector creates a collector. page may be nil, which disables the DOM
// fallback.
func NewCollector(api API, page dom.Page, s store.Store, scroll dom.ScrollOptions, maxPages int, sink Sink, log logger.Logger) *Collector {
	if log == nil {
		log = logger.GetLogger()
	}
	if sink == nil {
		sink = NopSink{}
	}
	if maxPages <= 0 {
		maxPages = 50
	}
	return &Collector{
		api:     api,
		page:    page,
		store:   s,
		scroll:  scroll,
		maxPage: maxPages,
		pacer:   ratelimit.NewPacer(friendsPageInterval),
		sink:    sink,
		logger:  log,
	}
}

// Collect returns every account myUsername follows. The REST path is
// authoritative; zero accounts from it counts as failure and falls through to
// the DOM path.
func (c *Collector) Collect(ctx context.Context, myUsername string) ([]models.Account, error) {
	accounts, err := c.collectREST(ctx, myUsername)
	if err != nil {
		c.logger.WithError(err).Warn("friends list API failed, trying DOM fallback")
	}

	if len(accounts) == 0 {
		if c.page == nil {
			if err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("friends list returned no accounts and no browser is attached")
		}
		accounts, err = dom.CollectFollowing(ctx, c.page, myUsername, c.scroll, c.logger)
		if err != nil {
			return nil, err
		}
		if len(accounts) == 0 {
			return nil, fmt.Errorf("could not collect any followed accounts for %s", myUsername)
		}
	}

	c.updateIndex(accounts)
	return accounts, nil
}

// collectREST pages the cursor-based friends/list endpoint until the sentinel
// cursor or the page ceiling.
func (c *Collector) collectREST(ctx context.Context, myUsername string) ([]models.Account, error) {
	var accounts []models.Account
	seen := make(map[string]bool)
	cursor := ""

	for page := 0; page < c.maxPage; page++ {
		if err := c.pacer.Pace(ctx); err != nil {
			return accounts, err
		}

		result, err := c.api.FriendsList(ctx, myUsername, cursor, friendsPageSize)
		if err != nil {
			return accounts, err
		}

		for _, acc := range result.Accounts {
			key := acc.Key()
			if key == strings.ToLower(myUsername) || seen[key] {
				continue
			}
			seen[key] = true
			accounts = append(accounts, acc)
		}

		c.sink.Emit(Event{Type: EventScanProgress, Payload: ScanProgress{
			Current: len(accounts),
			Status:  "collecting",
		}})

		if result.Done() {
			break
		}
		cursor = result.NextCursor
	}

	return accounts, nil
}

// updateIndex merges collected identities into the durable following index.
func (c *Collector) updateIndex(accounts []models.Account) {
	index := models.FollowingIndex{}
	if err := store.GetJSON(c.store, store.KeyFollowingIndex, &index); err != nil && !errors.Is(err, store.ErrNotFound) {
		c.logger.WithError(err).Warn("could not load following index, rebuilding")
		index = models.FollowingIndex{}
	}
	for _, acc := range accounts {
		index.Put(acc)
	}
	if err := store.SetJSON(c.store, store.KeyFollowingIndex, index); err != nil {
		c.logger.WithError(err).Warn("could not persist following index")
	}
}
