package activity

import (
	"sync"
	"time"
)

// Mechanism names the instrumented entry points.
const (
	MechanismFetch    = "fetch"
	MechanismXHR      = "xhr"
	MechanismObserver = "observer"
)

// State is a point-in-time copy of a tracker's counters and install flags.
type State struct {
	Installed          bool      `json:"installed"`
	Pending            int       `json:"pending"`
	LastMutation       time.Time `json:"last_mutation"`
	FetchIntercepted   bool      `json:"fetch_intercepted"`
	RequestIntercepted bool      `json:"request_intercepted"`
	ObserverActive     bool      `json:"observer_active"`
}

// Slot holds the single tracker of one page context. The zero value is an
// empty slot; Install fills it lazily and never replaces it.
type Slot struct {
	mu      sync.Mutex
	tracker *Tracker
}

// Tracker returns the installed tracker, or nil when Install never ran.
func (s *Slot) Tracker() *Tracker {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker
}

// Snapshot returns the tracker state and whether a tracker is installed.
func (s *Slot) Snapshot() (State, bool) {
	t := s.Tracker()
	if t == nil {
		return State{}, false
	}
	return t.Snapshot(), true
}

// claim returns the slot's tracker, creating it with create on first use.
// fresh reports whether this call created it.
func (s *Slot) claim(create func() *Tracker) (t *Tracker, fresh bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracker != nil {
		return s.tracker, false
	}
	s.tracker = create()
	return s.tracker, true
}
