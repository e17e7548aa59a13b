package engine

import (
	"sync"

	"github.com/hernaezTlon/x-following-cleaner/pkg/models"
)

// EventType identifies a progress/completion event kind.
type EventType string

const (
	EventScanProgress     EventType = "scanProgress"
	EventScanComplete     EventType = "scanComplete"
	EventUnfollowProgress EventType = "unfollowProgress"
	EventUnfollowComplete EventType = "unfollowComplete"
	EventUnfollowDebug    EventType = "unfollowDebug"
	EventError            EventType = "error"
)

// Event is a fire-and-forget notification to whoever is listening. Delivery
// is at-most-once; emitting with no listener attached is fine.
type Event struct {
	Type    EventType
	Payload any
}

// ScanProgress is the payload of scanProgress events.
type ScanProgress struct {
	Current        int    `json:"current"`
	Total          int    `json:"total"`
	Status         string `json:"status"`
	CurrentAccount string `json:"current_account,omitempty"`
	InactiveFound  int    `json:"inactive_found"`
	SkippedFound   int    `json:"skipped_found"`
}

// ScanComplete is the payload of scanComplete events.
type ScanComplete struct {
	Results []models.InactiveResult `json:"results"`
	Skipped []models.SkippedResult  `json:"skipped"`
}

// UnfollowProgress is the payload of unfollowProgress events.
type UnfollowProgress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Status  string `json:"status"`
}

// UnfollowComplete is the payload of unfollowComplete events.
type UnfollowComplete struct {
	Unfollowed int                    `json:"unfollowed"`
	Usernames  []string               `json:"usernames"`
	Skipped    []models.SkippedResult `json:"skipped"`
}

// ErrorEvent is the payload of error events.
type ErrorEvent struct {
	Message string `json:"message"`
}

// Sink receives events. Implementations must never block the engine.
type Sink interface {
	Emit(Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(Event) {}

// ChannelSink forwards events to a channel, dropping them when nobody is
// draining it.
type ChannelSink struct {
	C chan Event
}

// NewChannelSink creates a sink with a buffer of n events.
func NewChannelSink(n int) *ChannelSink {
	return &ChannelSink{C: make(chan Event, n)}
}

func (s *ChannelSink) Emit(e Event) {
	select {
	case s.C <- e:
	default:
	}
}

// CollectSink records every emitted event. Test helper.
type CollectSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *CollectSink) Emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

// Events returns a snapshot of everything emitted so far.
func (s *CollectSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// ByType returns the emitted events of one type.
func (s *CollectSink) ByType(t EventType) []Event {
	var out []Event
	for _, e := range s.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
