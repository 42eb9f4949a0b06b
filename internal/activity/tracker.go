// tracker.go - In-flight request set and mutation timestamp for one page context.
package activity

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// token identifies one counted request. Ending a token twice, or ending a
// token that was never issued, is a no-op.
type token uint64

// Tracker is the per-page activity monitor. Pending is derived from the
// in-flight set, so mismatched start/end signals can never drive it negative.
type Tracker struct {
	mu       sync.Mutex
	state    State
	inflight map[token]string
	next     token

	now   func() time.Time
	log   zerolog.Logger
	debug bool
}

// Option configures Install.
type Option func(*options)

type options struct {
	debug bool
	log   zerolog.Logger
	now   func() time.Time
}

// WithDebug enables diagnostic logging. It has no effect on counters.
func WithDebug(debug bool) Option {
	return func(o *options) { o.debug = debug }
}

// WithLogger sets the logger used when debug is enabled.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{log: zerolog.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newTracker(o options) *Tracker {
	return &Tracker{
		state: State{
			Installed:    true,
			LastMutation: o.now(),
		},
		inflight: make(map[token]string),
		now:      o.now,
		log:      o.log,
		debug:    o.debug,
	}
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.state
	s.Pending = len(t.inflight)
	return s
}

// begin counts a new in-flight request of the given mechanism.
func (t *Tracker) begin(mechanism string) token {
	t.mu.Lock()
	t.next++
	tok := t.next
	t.inflight[tok] = mechanism
	pending := len(t.inflight)
	t.mu.Unlock()

	if t.debug {
		t.log.Debug().Str("mechanism", mechanism).Int("pending", pending).Msg("waiting for request")
	}
	return tok
}

// end releases tok. It reports whether tok was still in flight.
func (t *Tracker) end(tok token) bool {
	t.mu.Lock()
	mechanism, ok := t.inflight[tok]
	delete(t.inflight, tok)
	pending := len(t.inflight)
	t.mu.Unlock()

	if ok && t.debug {
		t.log.Debug().Str("mechanism", mechanism).Int("pending", pending).Msg("request ended")
	}
	return ok
}

// observe records one mutation batch. Bursts coalesce: the record count is
// only logged, the timestamp moves once per batch.
func (t *Tracker) observe(records int) {
	now := t.now()
	t.mu.Lock()
	t.state.LastMutation = now
	t.mu.Unlock()

	if t.debug {
		t.log.Debug().Int("records", records).Time("at", now).Msg("mutation batch")
	}
}

func (t *Tracker) markPatched(mechanism string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch mechanism {
	case MechanismFetch:
		t.state.FetchIntercepted = true
	case MechanismXHR:
		t.state.RequestIntercepted = true
	case MechanismObserver:
		t.state.ObserverActive = true
	}
}
