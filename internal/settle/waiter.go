// waiter.go - Ordered, bounded readiness wait over a Target.
package settle

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/brennhill/pagesettle/internal/readiness"
)

// Default wait tuning.
const (
	DefaultTimeout      = 15 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
	DefaultDOMQuietMax  = 1500 * time.Millisecond

	// domQuietCapFactor scales the quiet window into the DOM-quiet phase cap.
	domQuietCapFactor = 1.5
)

// Target is a page the waiter can observe.
type Target interface {
	// Install sets up activity tracking. It is idempotent.
	Install(ctx context.Context) bool
	// Classify returns a readiness snapshot.
	Classify(ctx context.Context, quietWindow time.Duration) readiness.Report
	// Probe reports whether any selector matches a visible, topmost element.
	Probe(ctx context.Context, selectors []string) bool
}

// Outcome names how a wait ended.
type Outcome string

const (
	// OutcomeIdle: every signal agreed the page is idle.
	OutcomeIdle Outcome = "idle"
	// OutcomeDOMQuietCap: the network settled but mutations kept arriving
	// until the DOM-quiet cap ran out.
	OutcomeDOMQuietCap Outcome = "dom-quiet-cap"
	// OutcomeTimeout: the overall timeout expired first.
	OutcomeTimeout Outcome = "timeout"
)

// Config tunes a Waiter. Zero durations take the defaults.
type Config struct {
	Timeout      time.Duration `json:"timeout"`
	PollInterval time.Duration `json:"pollInterval"`
	// Quiet is the mutation-free window passed to Classify.
	Quiet time.Duration `json:"quiet"`
	// DOMQuietMax is the absolute ceiling of the DOM-quiet phase.
	DOMQuietMax time.Duration `json:"domQuietMax"`
	// SpinnerSelectors are probed after the network is idle. Empty disables
	// the spinner check.
	SpinnerSelectors []string `json:"spinnerSelectors,omitempty"`
}

func (c Config) normalized() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Quiet <= 0 {
		c.Quiet = readiness.DefaultQuietWindow
	}
	if c.DOMQuietMax <= 0 {
		c.DOMQuietMax = DefaultDOMQuietMax
	}
	return c
}

// DOMQuietCap returns the length of the DOM-quiet phase:
// min(Quiet * 1.5, DOMQuietMax).
func (c Config) DOMQuietCap() time.Duration {
	c = c.normalized()
	return min(time.Duration(float64(c.Quiet)*domQuietCapFactor), c.DOMQuietMax)
}

// Result describes a finished wait.
type Result struct {
	Outcome Outcome          `json:"outcome"`
	Polls   int              `json:"polls"`
	Elapsed time.Duration    `json:"elapsed"`
	Last    readiness.Report `json:"last"`
}

// Settled reports whether the page was considered settled.
func (r Result) Settled() bool { return r.Outcome != OutcomeTimeout }

// Waiter polls a Target until it settles or the timeout expires.
type Waiter struct {
	target Target
	cfg    Config
	log    zerolog.Logger
}

// NewWaiter returns a waiter over target.
func NewWaiter(target Target, cfg Config, log zerolog.Logger) *Waiter {
	return &Waiter{target: target, cfg: cfg.normalized(), log: log}
}

// Wait installs tracking, then polls until the page settles. The error is
// non-nil only when ctx itself ends; a timeout is reported as OutcomeTimeout.
func (w *Waiter) Wait(ctx context.Context) (Result, error) {
	start := time.Now()
	deadline := start.Add(w.cfg.Timeout)
	var res Result
	finish := func(o Outcome) (Result, error) {
		res.Outcome = o
		res.Elapsed = time.Since(start)
		return res, nil
	}

	if !w.target.Install(ctx) {
		w.log.Debug().Msg("settle: install reported failure, polling anyway")
	}

	for time.Now().Before(deadline) {
		res.Polls++
		res.Last = w.target.Classify(ctx, w.cfg.Quiet)
		st := res.Last

		switch {
		case !st.DocumentReady:
			w.log.Debug().Msg("settle: waiting for document ready")
		case !st.NetworkIdle:
			ev := w.log.Debug().Int("pending", st.Pending)
			if st.ThirdPartyActive != nil {
				ev = ev.Int("third_party_active", *st.ThirdPartyActive)
			}
			ev.Msg("settle: waiting for network idle")
		case len(w.cfg.SpinnerSelectors) > 0 && w.target.Probe(ctx, w.cfg.SpinnerSelectors):
			w.log.Debug().Strs("selectors", w.cfg.SpinnerSelectors).Msg("settle: spinner visible")
		case st.DOMQuiet:
			return finish(OutcomeIdle)
		default:
			quiet, err := w.domQuietPhase(ctx, deadline, &res)
			if err != nil {
				return res, err
			}
			if quiet {
				return finish(OutcomeIdle)
			}
			if time.Now().Before(deadline) {
				w.log.Debug().Msg("settle: DOM quiet cap reached, proceeding")
				return finish(OutcomeDOMQuietCap)
			}
			continue
		}

		if err := sleep(ctx, w.cfg.PollInterval, deadline); err != nil {
			return res, err
		}
	}

	w.log.Debug().Dur("timeout", w.cfg.Timeout).Msg("settle: page not ready before timeout, continuing")
	return finish(OutcomeTimeout)
}

// domQuietPhase polls only the DOM-quiet flag until it holds or the cap
// (never beyond the overall deadline) runs out.
func (w *Waiter) domQuietPhase(ctx context.Context, deadline time.Time, res *Result) (bool, error) {
	limit := w.cfg.DOMQuietCap()
	w.log.Debug().Dur("quiet", w.cfg.Quiet).Dur("cap", limit).Msg("settle: waiting for DOM quiet")

	phaseEnd := time.Now().Add(limit)
	if deadline.Before(phaseEnd) {
		phaseEnd = deadline
	}
	for {
		if err := sleep(ctx, w.cfg.PollInterval, phaseEnd); err != nil {
			return false, err
		}
		res.Polls++
		res.Last = w.target.Classify(ctx, w.cfg.Quiet)
		if res.Last.DOMQuiet {
			return true, nil
		}
		if !time.Now().Before(phaseEnd) {
			return false, nil
		}
	}
}

// sleep waits for d, cut short at until. It returns ctx.Err() if ctx ends.
func sleep(ctx context.Context, d time.Duration, until time.Time) error {
	if remaining := time.Until(until); remaining < d {
		d = max(remaining, 0)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
