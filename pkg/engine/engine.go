package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/hernaezTlon/x-following-cleaner/pkg/logger"
	"github.com/hernaezTlon/x-following-cleaner/pkg/models"
	"github.com/hernaezTlon/x-following-cleaner/pkg/store"
)

// CommandType identifies a control command.
type CommandType string

const (
	CmdStartScan     CommandType = "startScan"
	CmdStartUnfollow CommandType = "startUnfollow"
	CmdRetrySkipped  CommandType = "retrySkipped"
	CmdStop          CommandType = "stop"
	CmdResumeScan    CommandType = "resumeScan"
	CmdPing          CommandType = "ping"
)

// Command is a control request. Only the fields relevant to Type are read.
type Command struct {
	Type         CommandType      `json:"type"`
	InactiveDays int              `json:"inactive_days,omitempty"`
	Usernames    []string         `json:"usernames,omitempty"`
	Accounts     []models.Account `json:"accounts,omitempty"`
}

// Ack statuses returned synchronously from Handle.
const (
	AckStarted        = "started"
	AckAlreadyRunning = "already_running"
	AckStopped        = "stopped"
	AckResuming       = "resuming"
	AckAlive          = "alive"
	AckError          = "error"
)

// Ack is the synchronous reply to a Command. Long-running work continues in
// the background and reports through the event sink.
type Ack struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Partial any    `json:"partial,omitempty"`
}

// Partial is the progress snapshot attached to a stop ack.
type Partial struct {
	Scan     *ScanProgress     `json:"scan,omitempty"`
	Unfollow *UnfollowProgress `json:"unfollow,omitempty"`
}

// Controller is the command surface over the two engines. It enforces
// at-most-one active job per kind and spawns jobs on goroutines so Handle
// always returns promptly.
type Controller struct {
	scan     *ScanEngine
	unfollow *UnfollowEngine
	username string
	logger   logger.Logger

	mu           sync.Mutex
	scanBusy     bool
	unfollowBusy bool
	wg           sync.WaitGroup
}

// NewController wires the command surface to the engines. username is the
// account whose follow-list is scanned.
func NewController(scan *ScanEngine, unfollow *UnfollowEngine, username string, log logger.Logger) *Controller {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Controller{
		scan:     scan,
		unfollow: unfollow,
		username: username,
		logger:   log,
	}
}

// Handle dispatches one command and returns its synchronous ack.
func (c *Controller) Handle(ctx context.Context, cmd Command) Ack {
	switch cmd.Type {
	case CmdPing:
		return Ack{Status: AckAlive}

	case CmdStartScan:
		return c.spawnScan(func() error {
			return c.scan.Start(ctx, c.username, cmd.InactiveDays)
		}, AckStarted)

	case CmdRetrySkipped:
		return c.spawnScan(func() error {
			return c.scan.RetrySkipped(ctx, cmd.Accounts, cmd.InactiveDays)
		}, AckStarted)

	case CmdResumeScan:
		return c.spawnScan(func() error {
			return c.scan.Resume(ctx)
		}, AckResuming)

	case CmdStartUnfollow:
		return c.spawnUnfollow(func() error {
			return c.unfollow.Start(ctx, cmd.Usernames)
		})

	case CmdStop:
		return c.stop()

	default:
		return Ack{Status: AckError, Message: "unknown command: " + string(cmd.Type)}
	}
}

// Wait blocks until all spawned jobs have finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) spawnScan(job func() error, ack string) Ack {
	c.mu.Lock()
	if c.scanBusy {
		c.mu.Unlock()
		return Ack{Status: AckAlreadyRunning}
	}
	c.scanBusy = true
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			c.scanBusy = false
			c.mu.Unlock()
		}()
		if err := job(); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.WithError(err).Error("scan job ended with error")
		}
	}()
	return Ack{Status: ack}
}

func (c *Controller) spawnUnfollow(job func() error) Ack {
	c.mu.Lock()
	if c.unfollowBusy {
		c.mu.Unlock()
		return Ack{Status: AckAlreadyRunning}
	}
	c.unfollowBusy = true
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			c.unfollowBusy = false
			c.mu.Unlock()
		}()
		if err := job(); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.WithError(err).Error("unfollow job ended with error")
		}
	}()
	return Ack{Status: AckStarted}
}

// stop flags every active job and returns their partial progress. Jobs park
// at their next iteration boundary after a forced checkpoint.
func (c *Controller) stop() Ack {
	partial := Partial{}
	if c.scan.Running() {
		p := c.scan.Stop()
		partial.Scan = &p
	}
	if c.unfollow.Running() {
		p := c.unfollow.Stop()
		partial.Unfollow = &p
	}
	return Ack{Status: AckStopped, Partial: partial}
}

// SeedDefaults installs first-run settings into the store when absent:
// a 30-day inactivity threshold and a 3000ms inter-unfollow delay.
func SeedDefaults(s store.Store) error {
	if _, err := s.Get(store.KeyInactiveDays); errors.Is(err, store.ErrNotFound) {
		if err := store.SetJSON(s, store.KeyInactiveDays, 30); err != nil {
			return err
		}
	}
	if _, err := s.Get(store.KeyUnfollowDelay); errors.Is(err, store.ErrNotFound) {
		if err := store.SetJSON(s, store.KeyUnfollowDelay, 3000); err != nil {
			return err
		}
	}
	return nil
}
