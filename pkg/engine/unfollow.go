package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hernaezTlon/x-following-cleaner/pkg/config"
	"github.com/hernaezTlon/x-following-cleaner/pkg/dom"
	"github.com/hernaezTlon/x-following-cleaner/pkg/logger"
	"github.com/hernaezTlon/x-following-cleaner/pkg/models"
	"github.com/hernaezTlon/x-following-cleaner/pkg/retry"
	"github.com/hernaezTlon/x-following-cleaner/pkg/store"
	"github.com/hernaezTlon/x-following-cleaner/pkg/twitter"
)

// ReasonStillFollowing marks a destroy call whose response reported the
// relationship as still intact.
const ReasonStillFollowing = "still_following"

// debugRingSize bounds the persisted unfollow debug log.
const debugRingSize = 50

// UnfollowEngine walks a batch of accounts through REST unfollow with a
// browser fallback, with the same resumable checkpointing as the scan engine.
type UnfollowEngine struct {
	store   store.Store
	api     API
	cascade *Cascade
	page    dom.Page
	scroll  dom.ScrollOptions
	cfg     config.UnfollowConfig
	sink    Sink
	logger  logger.Logger

	saveEvery    int
	saveInterval time.Duration

	mu       sync.Mutex
	running  bool
	progress UnfollowProgress
	ring     []models.DebugEntry

	stopFlag atomic.Bool

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewUnfollowEngine creates an unfollow engine. page may be nil, which
// disables the browser fallback. saveEvery/saveInterval follow the scan
// engine's checkpoint policy.
func NewUnfollowEngine(s store.Store, api API, cascade *Cascade, page dom.Page, scroll dom.ScrollOptions, cfg config.UnfollowConfig, saveEvery int, saveInterval time.Duration, sink Sink, log logger.Logger) *UnfollowEngine {
	if log == nil {
		log = logger.GetLogger()
	}
	if sink == nil {
		sink = NopSink{}
	}
	e := &UnfollowEngine{
		store:        s,
		api:          api,
		cascade:      cascade,
		page:         page,
		scroll:       scroll,
		cfg:          cfg,
		sink:         sink,
		logger:       log,
		saveEvery:    saveEvery,
		saveInterval: saveInterval,
		sleep:        retry.Wait,
		now:          time.Now,
	}
	_ = store.GetJSON(s, store.KeyUnfollowDebug, &e.ring)
	return e
}

// Running reports whether an unfollow batch is active.
func (e *UnfollowEngine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Stop requests a cooperative stop and returns the partial progress.
func (e *UnfollowEngine) Stop() UnfollowProgress {
	e.stopFlag.Store(true)
	return e.Snapshot()
}

// Snapshot returns the latest progress counters.
func (e *UnfollowEngine) Snapshot() UnfollowProgress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress
}

// Start unfollows the named accounts. An empty list means the full confirmed
// inactive set from the last scan. Blocks until done, paused, or failed.
func (e *UnfollowEngine) Start(ctx context.Context, usernames []string) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.finish()

	accounts := e.resolveTargets(usernames)
	if len(accounts) == 0 {
		return e.fatal(fmt.Errorf("no accounts to unfollow"))
	}

	state := &models.UnfollowState{
		Accounts: accounts,
		Status:   models.StatusRunning,
	}
	return e.run(ctx, state)
}

// Resume continues a paused unfollow batch from its checkpoint.
func (e *UnfollowEngine) Resume(ctx context.Context) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.finish()

	state := &models.UnfollowState{}
	if err := store.GetJSON(e.store, store.KeyUnfollowState, state); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return e.fatal(fmt.Errorf("no paused unfollow batch to resume"))
		}
		return e.fatal(err)
	}

	state.Status = models.StatusRunning
	return e.run(ctx, state)
}

// resolveTargets maps the requested usernames onto the stored scan results so
// cached ids and display names carry over. Unknown usernames are still
// accepted as bare accounts.
func (e *UnfollowEngine) resolveTargets(usernames []string) []models.Account {
	var results []models.InactiveResult
	_ = store.GetJSON(e.store, store.KeyScanResults, &results)

	byKey := make(map[string]models.InactiveResult, len(results))
	for _, r := range results {
		byKey[strings.ToLower(r.Username)] = r
	}

	if len(usernames) == 0 {
		out := make([]models.Account, 0, len(results))
		for _, r := range results {
			out = append(out, models.Account{Username: r.Username, Name: r.Name, UserID: r.UserID})
		}
		return out
	}

	seen := make(map[string]bool, len(usernames))
	var out []models.Account
	for _, u := range usernames {
		key := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(u), "@"))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if r, ok := byKey[key]; ok {
			out = append(out, models.Account{Username: r.Username, Name: r.Name, UserID: r.UserID})
			continue
		}
		out = append(out, models.Account{Username: strings.TrimPrefix(strings.TrimSpace(u), "@")})
	}
	return out
}

func (e *UnfollowEngine) run(ctx context.Context, state *models.UnfollowState) error {
	cp := newCheckpointer(e.store, store.KeyUnfollowState, e.saveEvery, e.saveInterval, e.now)
	if err := cp.force(state, state.CurrentIndex); err != nil {
		return e.fatal(err)
	}

	delay := e.interAccountDelay()
	total := len(state.Accounts)
	for state.CurrentIndex < total {
		if e.stopFlag.Load() || ctx.Err() != nil {
			state.Status = models.StatusPaused
			if err := cp.force(state, state.CurrentIndex); err != nil {
				return e.fatal(err)
			}
			e.logger.InfoWithFields("unfollow paused", map[string]interface{}{
				"index": state.CurrentIndex,
				"total": total,
			})
			return ctx.Err()
		}

		acc := state.Accounts[state.CurrentIndex]
		if unfollowClassified(state, acc.Username) {
			state.CurrentIndex++
			continue
		}

		ok, reason := e.unfollowOne(ctx, &acc)
		if !ok && ctx.Err() != nil {
			// The attempt was cut short by cancellation, not refused; leave
			// the account unclassified so resume retries it.
			continue
		}
		if ok {
			state.Done = append(state.Done, acc.Username)
		} else {
			state.Skipped = append(state.Skipped, models.SkippedResult{
				Username: acc.Username,
				Name:     acc.Name,
				UserID:   acc.UserID,
				Reason:   reason,
			})
			logger.LogUnfollow(acc.Username, "", false, nil)
		}
		state.CurrentIndex++

		if err := cp.maybeSave(state, state.CurrentIndex); err != nil {
			e.logger.WithError(err).Warn("checkpoint write failed")
		}
		p := UnfollowProgress{
			Current: state.CurrentIndex,
			Total:   total,
			Status:  string(state.Status),
		}
		e.setProgress(p)
		e.sink.Emit(Event{Type: EventUnfollowProgress, Payload: p})

		if err := e.sleep(ctx, delay); err != nil {
			continue
		}
	}

	return e.complete(state, cp)
}

// interAccountDelay prefers the stored unfollowDelay setting (milliseconds)
// over the configured default.
func (e *UnfollowEngine) interAccountDelay() time.Duration {
	var ms int
	if err := store.GetJSON(e.store, store.KeyUnfollowDelay, &ms); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return e.cfg.Delay
}

// unfollowOne drives one account: REST destroy with bounded rate-limit
// retries, then the browser fallback for anything REST could not finish.
func (e *UnfollowEngine) unfollowOne(ctx context.Context, acc *models.Account) (bool, string) {
	attempts := e.cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}

	reason := ""
	for attempt := 1; attempt <= attempts; attempt++ {
		reason = e.tryREST(ctx, acc)
		if reason == "" {
			e.debug(acc.Username, "unfollowed via api")
			logger.LogUnfollow(acc.Username, "api", true, nil)
			return true, ""
		}
		if reason != string(twitter.ErrorTypeRateLimited) {
			break
		}
		e.debug(acc.Username, fmt.Sprintf("rate limited on attempt %d, cooling down", attempt))
		if err := e.sleep(ctx, e.cfg.RateLimitCooldown); err != nil {
			return false, reason
		}
	}

	if e.page == nil {
		return false, reason
	}

	e.debug(acc.Username, "api unfollow failed ("+reason+"), trying browser")
	if err := dom.Unfollow(ctx, e.page, acc.Username, e.scroll); err != nil {
		e.debug(acc.Username, "browser unfollow failed: "+err.Error())
		return false, reason
	}
	e.debug(acc.Username, "unfollowed via browser")
	logger.LogUnfollow(acc.Username, "browser", true, nil)
	return true, ""
}

// tryREST performs a single destroy attempt and returns "" on success or a
// reason string on failure.
func (e *UnfollowEngine) tryREST(ctx context.Context, acc *models.Account) string {
	id, err := e.cascade.UserID(ctx, acc)
	if err != nil {
		return twitter.Reason(err)
	}
	if id == "" {
		return ReasonNoUserID
	}
	res, err := e.api.DestroyFriendship(ctx, id)
	if err != nil {
		return twitter.Reason(err)
	}
	if res.StillFollowing {
		return ReasonStillFollowing
	}
	return ""
}

// complete finalizes the batch: forced checkpoint, results pruned of the
// accounts no longer followed, state cleared, completion event.
func (e *UnfollowEngine) complete(state *models.UnfollowState, cp *checkpointer) error {
	if err := cp.force(state, state.CurrentIndex); err != nil {
		return e.fatal(err)
	}

	e.pruneResults(state.Done)
	if err := e.store.Remove(store.KeyUnfollowState); err != nil {
		e.logger.WithError(err).Warn("could not clear unfollow state")
	}

	e.setProgress(UnfollowProgress{
		Current: state.CurrentIndex,
		Total:   len(state.Accounts),
		Status:  "completed",
	})
	e.sink.Emit(Event{Type: EventUnfollowComplete, Payload: UnfollowComplete{
		Unfollowed: len(state.Done),
		Usernames:  state.Done,
		Skipped:    state.Skipped,
	}})

	e.logger.InfoWithFields("unfollow batch complete", map[string]interface{}{
		"unfollowed": len(state.Done),
		"skipped":    len(state.Skipped),
	})
	return nil
}

// pruneResults drops successfully unfollowed accounts from the stored scan
// results so a later unfollow run does not retarget them.
func (e *UnfollowEngine) pruneResults(done []string) {
	if len(done) == 0 {
		return
	}
	var results []models.InactiveResult
	if err := store.GetJSON(e.store, store.KeyScanResults, &results); err != nil {
		return
	}
	gone := make(map[string]bool, len(done))
	for _, u := range done {
		gone[strings.ToLower(u)] = true
	}
	kept := results[:0]
	for _, r := range results {
		if !gone[strings.ToLower(r.Username)] {
			kept = append(kept, r)
		}
	}
	if err := store.SetJSON(e.store, store.KeyScanResults, kept); err != nil {
		e.logger.WithError(err).Warn("could not update scan results")
	}
}

// debug appends to the bounded debug ring, persists it, and emits it as an
// event.
func (e *UnfollowEngine) debug(username, message string) {
	entry := models.DebugEntry{
		Time:     e.now(),
		Username: username,
		Message:  message,
	}

	e.mu.Lock()
	e.ring = append(e.ring, entry)
	if len(e.ring) > debugRingSize {
		e.ring = e.ring[len(e.ring)-debugRingSize:]
	}
	ring := make([]models.DebugEntry, len(e.ring))
	copy(ring, e.ring)
	e.mu.Unlock()

	if err := store.SetJSON(e.store, store.KeyUnfollowDebug, ring); err != nil {
		e.logger.WithError(err).Warn("could not persist debug log")
	}
	e.sink.Emit(Event{Type: EventUnfollowDebug, Payload: entry})
}

// DebugLog returns a copy of the current debug ring.
func (e *UnfollowEngine) DebugLog() []models.DebugEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.DebugEntry, len(e.ring))
	copy(out, e.ring)
	return out
}

func unfollowClassified(state *models.UnfollowState, username string) bool {
	key := strings.ToLower(username)
	for _, u := range state.Done {
		if strings.ToLower(u) == key {
			return true
		}
	}
	for _, r := range state.Skipped {
		if strings.ToLower(r.Username) == key {
			return true
		}
	}
	return false
}

func (e *UnfollowEngine) setProgress(p UnfollowProgress) {
	e.mu.Lock()
	e.progress = p
	e.mu.Unlock()
}

func (e *UnfollowEngine) fatal(err error) error {
	e.logger.WithError(err).Error("unfollow failed")
	e.sink.Emit(Event{Type: EventError, Payload: ErrorEvent{Message: err.Error()}})
	return err
}

func (e *UnfollowEngine) begin() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return ErrAlreadyRunning
	}
	e.running = true
	e.stopFlag.Store(false)
	return nil
}

func (e *UnfollowEngine) finish() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
}
