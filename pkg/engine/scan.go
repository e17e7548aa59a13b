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
	"github.com/hernaezTlon/x-following-cleaner/pkg/logger"
	"github.com/hernaezTlon/x-following-cleaner/pkg/models"
	"github.com/hernaezTlon/x-following-cleaner/pkg/retry"
	"github.com/hernaezTlon/x-following-cleaner/pkg/store"
	"github.com/hernaezTlon/x-following-cleaner/pkg/twitter"
)

// ErrAlreadyRunning is returned when a start request races an active job of
// the same kind.
var ErrAlreadyRunning = errors.New("job already running")

// ReasonException marks accounts skipped because their step panicked or
// failed in a way the taxonomy doesn't cover.
const ReasonException = "exception"

// ScanEngine is the central state machine: it consumes the collected account
// list, drives the cascade per account, classifies results, and persists
// resumable progress. One scan at a time.
type ScanEngine struct {
	store     store.Store
	cascade   *Cascade
	collector *Collector
	cfg       config.ScanConfig
	sink      Sink
	logger    logger.Logger

	mu       sync.Mutex
	running  bool
	progress ScanProgress

	stopFlag atomic.Bool

	// sleep and now are swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewScanEngine creates a scan engine over a store, a cascade, and a
// collector.
func NewScanEngine(s store.Store, cascade *Cascade, collector *Collector, cfg config.ScanConfig, sink Sink, log logger.Logger) *ScanEngine {
	if log == nil {
		log = logger.GetLogger()
	}
	if sink == nil {
		sink = NopSink{}
	}
	return &ScanEngine{
		store:     s,
		cascade:   cascade,
		collector: collector,
		cfg:       cfg,
		sink:      sink,
		logger:    log,
		sleep:     retry.Wait,
		now:       time.Now,
	}
}

// Running reports whether a scan is active.
func (e *ScanEngine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Stop requests a cooperative stop. The loop finishes its in-flight account,
// checkpoints with status paused, and exits. Returns the partial progress at
// the moment of the request.
func (e *ScanEngine) Stop() ScanProgress {
	e.stopFlag.Store(true)
	return e.Snapshot()
}

// Snapshot returns the latest progress counters.
func (e *ScanEngine) Snapshot() ScanProgress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress
}

// Start collects the follow-list and scans it. days <= 0 falls back to the
// stored inactiveDays setting, then the configured default. Blocks until the
// scan completes, pauses, or fails; run it in a goroutine for async use.
func (e *ScanEngine) Start(ctx context.Context, myUsername string, days int) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.finish()

	if myUsername == "" {
		return e.fatal(fmt.Errorf("no username to scan"))
	}
	return e.startFresh(ctx, myUsername, e.effectiveDays(days))
}

// startFresh collects the follow-list and runs a scan from index zero. The
// intent record makes a crash during collection recoverable by Resume.
func (e *ScanEngine) startFresh(ctx context.Context, myUsername string, days int) error {
	if err := store.SetJSON(e.store, store.KeyScanIntent, models.ScanIntent{
		InactiveDays: days,
		MyUsername:   myUsername,
	}); err != nil {
		return e.fatal(err)
	}

	accounts, err := e.collector.Collect(ctx, myUsername)
	if err != nil {
		return e.fatal(err)
	}

	now := e.now()
	state := &models.ScanState{
		Accounts:      accounts,
		InactiveDays:  days,
		CutoffMillis:  now.Add(-time.Duration(days) * 24 * time.Hour).UnixMilli(),
		Status:        models.StatusRunning,
		StartTime:     now,
		LastHeartbeat: now,
	}

	return e.run(ctx, state, false)
}

// Resume continues a paused scan from its last durable checkpoint, or
// restarts from a persisted scan intent when no checkpoint was ever written.
func (e *ScanEngine) Resume(ctx context.Context) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.finish()

	state := &models.ScanState{}
	if err := store.GetJSON(e.store, store.KeyScanState, state); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// A crash during collection leaves no state, only the intent
			// record; restart that scan with its original parameters.
			var intent models.ScanIntent
			if ierr := store.GetJSON(e.store, store.KeyScanIntent, &intent); ierr == nil && intent.MyUsername != "" {
				e.logger.InfoWithFields("recovering interrupted scan from intent", map[string]interface{}{
					"username":      intent.MyUsername,
					"inactive_days": intent.InactiveDays,
				})
				return e.startFresh(ctx, intent.MyUsername, intent.InactiveDays)
			}
			return e.fatal(fmt.Errorf("no paused scan to resume"))
		}
		return e.fatal(err)
	}

	state.Status = models.StatusRunning
	return e.run(ctx, state, false)
}

// RetrySkipped re-runs the scan restricted to previously skipped accounts
// merged with any supplied ones, minus accounts already confirmed inactive.
// New findings merge into the existing results instead of replacing them.
func (e *ScanEngine) RetrySkipped(ctx context.Context, extra []models.Account, days int) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.finish()

	accounts := e.retryCandidates(extra)
	if len(accounts) == 0 {
		return e.fatal(fmt.Errorf("no skipped accounts to retry"))
	}

	days = e.effectiveDays(days)
	now := e.now()
	state := &models.ScanState{
		Accounts:      accounts,
		InactiveDays:  days,
		CutoffMillis:  now.Add(-time.Duration(days) * 24 * time.Hour).UnixMilli(),
		Status:        models.StatusRunning,
		StartTime:     now,
		LastHeartbeat: now,
	}

	return e.run(ctx, state, true)
}

// retryCandidates merges stored skipped accounts with the supplied list,
// deduplicates case-insensitively, and drops anything already confirmed
// inactive.
func (e *ScanEngine) retryCandidates(extra []models.Account) []models.Account {
	inactive := make(map[string]bool)
	var results []models.InactiveResult
	if err := store.GetJSON(e.store, store.KeyScanResults, &results); err == nil {
		for _, r := range results {
			inactive[strings.ToLower(r.Username)] = true
		}
	}

	var skipped []models.SkippedResult
	_ = store.GetJSON(e.store, store.KeyScanSkipped, &skipped)

	seen := make(map[string]bool)
	var out []models.Account
	add := func(acc models.Account) {
		key := acc.Key()
		if key == "" || seen[key] || inactive[key] {
			return
		}
		seen[key] = true
		out = append(out, acc)
	}

	for _, s := range skipped {
		add(models.Account{Username: s.Username, Name: s.Name, UserID: s.UserID})
	}
	for _, acc := range extra {
		add(acc)
	}
	return out
}

// run executes the per-account loop. Durable writes always happen before the
// corresponding progress event.
func (e *ScanEngine) run(ctx context.Context, state *models.ScanState, merge bool) error {
	cp := newCheckpointer(e.store, store.KeyScanState, e.cfg.SaveEvery, e.cfg.SaveInterval, e.now)

	// Forced checkpoint at job start; the scan intent is no longer needed
	// once resumable state exists.
	if err := cp.force(state, state.CurrentIndex); err != nil {
		return e.fatal(err)
	}
	_ = e.store.Remove(store.KeyScanIntent)

	total := len(state.Accounts)
	cutoff := state.Cutoff()

	for state.CurrentIndex < total {
		if e.stopFlag.Load() || ctx.Err() != nil {
			state.Status = models.StatusPaused
			if err := cp.force(state, state.CurrentIndex); err != nil {
				return e.fatal(err)
			}
			e.logger.InfoWithFields("scan paused", map[string]interface{}{
				"index": state.CurrentIndex,
				"total": total,
			})
			return ctx.Err()
		}

		acc := &state.Accounts[state.CurrentIndex]

		// The input list may repeat a username; everything past the first
		// occurrence is already classified.
		if state.Classified(acc.Username) {
			state.CurrentIndex++
			continue
		}

		res := e.step(ctx, acc)
		if !res.OK && ctx.Err() != nil {
			// A lookup aborted by cancellation says nothing about the
			// account; leave it unclassified and let the loop top pause.
			continue
		}
		switch {
		case res.OK:
			state.ConsecutiveFailures = 0
			e.classify(state, *acc, res, cutoff)
			state.CurrentIndex++

		case res.Reason == string(twitter.ErrorTypeRateLimited):
			// Never advance on rate limit; cool down and retry the same
			// account.
			logger.LogRateLimit(acc.Username, int(e.cfg.RateLimitCooldown.Seconds()))
			state.ConsecutiveFailures = 0
			if err := e.sleep(ctx, e.cfg.RateLimitCooldown); err != nil {
				continue
			}

		default:
			state.ConsecutiveFailures++
			state.Skipped = append(state.Skipped, models.SkippedResult{
				Username: acc.Username,
				Name:     acc.Name,
				UserID:   acc.UserID,
				Reason:   res.Reason,
			})
			state.CurrentIndex++

			if state.ConsecutiveFailures >= e.cfg.MaxConsecutiveFailures {
				e.logger.WarnWithFields("too many consecutive failures, cooling down", map[string]interface{}{
					"failures": state.ConsecutiveFailures,
				})
				state.ConsecutiveFailures = 0
				if err := e.sleep(ctx, e.cfg.RateLimitCooldown); err != nil {
					continue
				}
			}
		}

		state.LastHeartbeat = e.now()
		if err := cp.maybeSave(state, state.CurrentIndex); err != nil {
			e.logger.WithError(err).Warn("checkpoint write failed")
		}
		e.emitScanProgress(state, acc.Username, total)

		if err := e.sleep(ctx, e.cfg.CheckDelay); err != nil {
			continue
		}
	}

	return e.complete(state, cp, merge)
}

// step runs one account through the cascade, converting panics into skipped
// classifications so the loop survives anything a single account throws.
func (e *ScanEngine) step(ctx context.Context, acc *models.Account) (res ActivityResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorWithFields("account step panicked", map[string]interface{}{
				"username": acc.Username,
				"panic":    fmt.Sprint(r),
			})
			res = ActivityResult{Reason: ReasonException}
		}
	}()
	return e.cascade.LastActivity(ctx, acc)
}

// classify appends the account to exactly one result list. Inactive iff the
// newest post is absent or strictly before the cutoff.
func (e *ScanEngine) classify(state *models.ScanState, acc models.Account, res ActivityResult, cutoff time.Time) {
	if res.Date == nil || res.Date.Before(cutoff) {
		result := models.InactiveResult{
			Username:   acc.Username,
			Name:       acc.Name,
			UserID:     acc.UserID,
			LastActive: "Unknown",
		}
		if res.Date != nil {
			days := int(e.now().Sub(*res.Date).Hours() / 24)
			result.LastActive = models.FormatLastActive(*res.Date, e.now())
			result.DaysInactive = &days
		}
		state.Inactive = append(state.Inactive, result)
		logger.LogScanProgress(acc.Username, state.CurrentIndex+1, len(state.Accounts), len(state.Inactive))
		return
	}
	state.Active = append(state.Active, acc.Username)
}

// complete force-checkpoints the final index, persists the results, clears
// the resumable state, and emits scanComplete.
func (e *ScanEngine) complete(state *models.ScanState, cp *checkpointer, merge bool) error {
	state.LastHeartbeat = e.now()
	if err := cp.force(state, state.CurrentIndex); err != nil {
		return e.fatal(err)
	}

	results := state.Inactive
	skipped := state.Skipped
	if merge {
		var prior []models.InactiveResult
		if err := store.GetJSON(e.store, store.KeyScanResults, &prior); err == nil {
			results = mergeInactive(prior, state.Inactive)
		}
	}

	if err := store.SetJSON(e.store, store.KeyScanResults, results); err != nil {
		return e.fatal(err)
	}
	if err := store.SetJSON(e.store, store.KeyScanSkipped, skipped); err != nil {
		return e.fatal(err)
	}
	if err := store.SetJSON(e.store, store.KeyFollowingIndex, e.cascade.Index()); err != nil {
		e.logger.WithError(err).Warn("could not persist following index")
	}
	if err := e.store.Remove(store.KeyScanState); err != nil {
		e.logger.WithError(err).Warn("could not clear scan state")
	}

	e.setProgress(ScanProgress{
		Current:       state.CurrentIndex,
		Total:         len(state.Accounts),
		Status:        "completed",
		InactiveFound: len(state.Inactive),
		SkippedFound:  len(state.Skipped),
	})
	e.sink.Emit(Event{Type: EventScanComplete, Payload: ScanComplete{
		Results: results,
		Skipped: skipped,
	}})

	e.logger.InfoWithFields("scan complete", map[string]interface{}{
		"total":    len(state.Accounts),
		"inactive": len(state.Inactive),
		"active":   len(state.Active),
		"skipped":  len(state.Skipped),
	})
	return nil
}

// mergeInactive appends new findings to prior results, keeping the first
// entry per lowercase username.
func mergeInactive(prior, fresh []models.InactiveResult) []models.InactiveResult {
	seen := make(map[string]bool, len(prior))
	out := make([]models.InactiveResult, 0, len(prior)+len(fresh))
	for _, r := range prior {
		key := strings.ToLower(r.Username)
		if !seen[key] {
			seen[key] = true
			out = append(out, r)
		}
	}
	for _, r := range fresh {
		key := strings.ToLower(r.Username)
		if !seen[key] {
			seen[key] = true
			out = append(out, r)
		}
	}
	return out
}

func (e *ScanEngine) emitScanProgress(state *models.ScanState, current string, total int) {
	p := ScanProgress{
		Current:        state.CurrentIndex,
		Total:          total,
		Status:         string(state.Status),
		CurrentAccount: current,
		InactiveFound:  len(state.Inactive),
		SkippedFound:   len(state.Skipped),
	}
	e.setProgress(p)
	e.sink.Emit(Event{Type: EventScanProgress, Payload: p})
}

func (e *ScanEngine) setProgress(p ScanProgress) {
	e.mu.Lock()
	e.progress = p
	e.mu.Unlock()
}

// effectiveDays resolves the inactivity threshold: explicit argument, stored
// setting, configured default.
func (e *ScanEngine) effectiveDays(days int) int {
	if days > 0 {
		return days
	}
	var stored int
	if err := store.GetJSON(e.store, store.KeyInactiveDays, &stored); err == nil && stored > 0 {
		return stored
	}
	return e.cfg.InactiveDays
}

// fatal surfaces a job-level failure as an error event and returns it.
func (e *ScanEngine) fatal(err error) error {
	e.logger.WithError(err).Error("scan failed")
	e.sink.Emit(Event{Type: EventError, Payload: ErrorEvent{Message: err.Error()}})
	return err
}

func (e *ScanEngine) begin() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return ErrAlreadyRunning
	}
	e.running = true
	e.stopFlag.Store(false)
	return nil
}

func (e *ScanEngine) finish() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
}
