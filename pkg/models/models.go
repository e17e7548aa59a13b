package models

import (
	"strconv"
	"strings"
	"time"
)

// Account represents a single followed account. Username is the unique,
// case-insensitive key; UserID is the numeric rest_id, filled in lazily the
// first time an identity lookup succeeds.
type Account struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	UserID   string `json:"user_id,omitempty"`
}

// Key returns the canonical lowercase form of the username, used everywhere
// accounts are deduplicated or compared.
func (a Account) Key() string {
	return strings.ToLower(a.Username)
}

// InactiveResult records an account classified as inactive during a scan.
type InactiveResult struct {
	Username     string `json:"username"`
	Name         string `json:"name"`
	UserID       string `json:"user_id,omitempty"`
	LastActive   string `json:"last_active"`
	DaysInactive *int   `json:"days_inactive"`
}

// SkippedResult records an account whose activity could not be determined
// after the full data-source cascade was exhausted.
type SkippedResult struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	UserID   string `json:"user_id,omitempty"`
	Reason   string `json:"reason"`
}

// JobStatus is the persisted lifecycle state of a scan or unfollow job.
type JobStatus string

const (
	StatusRunning JobStatus = "running"
	StatusPaused  JobStatus = "paused"
)

// ScanState is the resumable unit of work for a scan job. CurrentIndex only
// advances after the corresponding account's classification has been appended,
// so Accounts[0:CurrentIndex) is always fully partitioned into exactly one of
// Inactive/Active/Skipped.
type ScanState struct {
	Accounts            []Account        `json:"accounts"`
	CurrentIndex        int              `json:"current_index"`
	Inactive            []InactiveResult `json:"inactive"`
	Active              []string         `json:"active"`
	Skipped             []SkippedResult  `json:"skipped"`
	InactiveDays        int              `json:"inactive_days"`
	CutoffMillis        int64            `json:"cutoff_timestamp"`
	ConsecutiveFailures int              `json:"consecutive_failures"`
	Status              JobStatus        `json:"status"`
	StartTime           time.Time        `json:"start_time"`
	LastHeartbeat       time.Time        `json:"last_heartbeat"`
}

// Cutoff returns the inactivity cutoff as a time.Time.
func (s *ScanState) Cutoff() time.Time {
	return time.UnixMilli(s.CutoffMillis)
}

// Classified reports whether the given username has already been placed into
// one of the three result lists.
func (s *ScanState) Classified(username string) bool {
	key := strings.ToLower(username)
	for _, r := range s.Inactive {
		if strings.ToLower(r.Username) == key {
			return true
		}
	}
	for _, u := range s.Active {
		if strings.ToLower(u) == key {
			return true
		}
	}
	for _, r := range s.Skipped {
		if strings.ToLower(r.Username) == key {
			return true
		}
	}
	return false
}

// UnfollowState is the resumable unit of work for a bulk unfollow job, with
// the same advance-only-after-durable-append invariant as ScanState.
type UnfollowState struct {
	Accounts     []Account       `json:"accounts"`
	CurrentIndex int             `json:"current_index"`
	Done         []string        `json:"done"`
	Skipped      []SkippedResult `json:"skipped"`
	Status       JobStatus       `json:"status"`
}

// IndexEntry is a cached identity for one followed account.
type IndexEntry struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// FollowingIndex is the durable username -> identity cache, populated whenever
// the full follow-list is fetched and consulted to avoid re-resolving numeric
// ids across scans. Keys are lowercase usernames.
type FollowingIndex map[string]IndexEntry

// Lookup returns the cached entry for a username, if any.
func (fi FollowingIndex) Lookup(username string) (IndexEntry, bool) {
	e, ok := fi[strings.ToLower(username)]
	return e, ok
}

// Put records an identity entry under the canonical key. Entries without a
// user id are still useful for display names, so they are kept.
func (fi FollowingIndex) Put(acc Account) {
	key := acc.Key()
	prev := fi[key]
	if acc.UserID != "" {
		prev.UserID = acc.UserID
	}
	if acc.Name != "" {
		prev.Name = acc.Name
	}
	fi[key] = prev
}

// ScanIntent is persisted before account collection begins so that a crash
// between intent and the first checkpoint can be recovered.
type ScanIntent struct {
	InactiveDays int    `json:"inactive_days"`
	MyUsername   string `json:"my_username"`
}

// DebugEntry is a single entry in the bounded unfollow debug ring.
type DebugEntry struct {
	Time     time.Time `json:"time"`
	Username string    `json:"username"`
	Message  string    `json:"message"`
}

// FormatLastActive renders a post date the way the results list shows it.
func FormatLastActive(d time.Time, now time.Time) string {
	days := int(now.Sub(d).Hours() / 24)
	switch {
	case days <= 0:
		return "Today"
	case days == 1:
		return "Yesterday"
	case days < 7:
		return strconv.Itoa(days) + " days ago"
	case days < 30:
		return strconv.Itoa(days/7) + " weeks ago"
	case days < 365:
		return strconv.Itoa(days/30) + " months ago"
	default:
		return strconv.Itoa(days/365) + " years ago"
	}
}
