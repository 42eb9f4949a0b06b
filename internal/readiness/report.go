// Package readiness turns activity tracker state and page lifecycle signals
// into a single idle verdict.
//
// The classifier is a snapshot function: it never waits or retries. A polling
// loop outside this package samples it until idle or until its own deadline.
// Any internal fault biases the report toward ready, since a broken probe must
// not deadlock a test run.
package readiness

import (
	"context"
	"time"
)

// DefaultQuietWindow is the time without mutations after which the DOM is
// considered stable.
const DefaultQuietWindow = 400 * time.Millisecond

// ReadyStateComplete is the final stage of the document load lifecycle.
const ReadyStateComplete = "complete"

// Report is recomputed on every query and never persisted.
type Report struct {
	Idle          bool `json:"idle"`
	DocumentReady bool `json:"ready"`
	NetworkIdle   bool `json:"networkIdle"`
	DOMQuiet      bool `json:"domQuiet"`
	Pending       int  `json:"pending"`
	// ThirdPartyActive is the third-party request counter, nil when unknown.
	ThirdPartyActive *int `json:"thirdPartyActiveCount"`
}

// Signals are the page-level inputs read alongside the tracker.
type Signals struct {
	ReadyState string
	// ThirdPartyActive is nil when no request-counting library is present.
	ThirdPartyActive *int
}

// SignalSource reads page lifecycle signals.
type SignalSource interface {
	PageSignals(ctx context.Context) (Signals, error)
}

// SignalFunc adapts a function to SignalSource.
type SignalFunc func(ctx context.Context) (Signals, error)

// PageSignals calls f(ctx).
func (f SignalFunc) PageSignals(ctx context.Context) (Signals, error) {
	return f(ctx)
}
