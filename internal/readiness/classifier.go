// classifier.go - Snapshot classification of page readiness.
package readiness

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/brennhill/pagesettle/internal/activity"
	"github.com/brennhill/pagesettle/internal/util"
)

// ActivitySource exposes the installed tracker state of a page context.
// *activity.Slot implements it.
type ActivitySource interface {
	Snapshot() (activity.State, bool)
}

// Classifier combines tracker state with page signals.
type Classifier struct {
	Activity ActivitySource
	Signals  SignalSource
	Now      func() time.Time
	Logger   zerolog.Logger
}

// Classify returns the readiness report for the current instant.
//
// A missing tracker reads as zero pending requests and a mutation "now": the
// network reads idle while the DOM never reads quiet, leaving the decision to
// the caller's bounded DOM-quiet phase. A signal failure reports the document
// as not ready and the third-party counter as unknown. Classify never panics.
func (c *Classifier) Classify(ctx context.Context, quietWindow time.Duration) (r Report) {
	if quietWindow <= 0 {
		quietWindow = DefaultQuietWindow
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	at := now()

	err := util.Catch(func() error {
		r = c.classify(ctx, at, quietWindow)
		return nil
	})
	if err != nil {
		c.Logger.Debug().Err(err).Msg("readiness: classify failed, reporting defaults")
		r = Report{NetworkIdle: true}
	}
	return r
}

func (c *Classifier) classify(ctx context.Context, at time.Time, quietWindow time.Duration) Report {
	pending := 0
	lastMutation := at
	if c.Activity != nil {
		if st, ok := c.Activity.Snapshot(); ok {
			pending = st.Pending
			lastMutation = st.LastMutation
		}
	}

	var sig Signals
	if c.Signals != nil {
		s, err := c.Signals.PageSignals(ctx)
		if err != nil {
			c.Logger.Debug().Err(err).Msg("readiness: page signals unavailable")
		} else {
			sig = s
		}
	}

	r := Report{
		DocumentReady:    sig.ReadyState == ReadyStateComplete,
		Pending:          pending,
		ThirdPartyActive: sig.ThirdPartyActive,
	}
	r.NetworkIdle = pending == 0 && (sig.ThirdPartyActive == nil || *sig.ThirdPartyActive == 0)
	r.DOMQuiet = at.Sub(lastMutation) >= quietWindow
	r.Idle = r.DocumentReady && r.NetworkIdle && r.DOMQuiet
	return r
}
