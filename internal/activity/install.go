// install.go - Idempotent, independently guarded instrumentation of a page context.
package activity

import (
	"context"
	"errors"

	"github.com/brennhill/pagesettle/internal/util"
)

// ErrMechanismAbsent is returned by a patcher whose entry point does not
// exist in the page.
var ErrMechanismAbsent = errors.New("mechanism absent")

// Page is a page context that owns an activity slot. The optional patcher
// interfaces below describe which entry points it exposes.
type Page interface {
	ActivitySlot() *Slot
}

// FetchPatcher exposes the promise-style entry point. PatchFetch replaces
// the page's fetcher with wrap(current).
type FetchPatcher interface {
	PatchFetch(ctx context.Context, wrap func(Fetcher) Fetcher) error
}

// XHRPatcher exposes the callback-style entry point. PatchXHR replaces the
// page's request factory with wrap(current).
type XHRPatcher interface {
	PatchXHR(ctx context.Context, wrap func(XHRFactory) XHRFactory) error
}

// MutationObservable starts a subtree-wide observer on the document root and
// calls onBatch once per delivered batch of mutation records.
type MutationObservable interface {
	ObserveMutations(ctx context.Context, onBatch func(records int)) error
}

// Install instruments p. A second call on the same page is a no-op that
// keeps the existing counters. Each patch is applied independently; absence
// or failure of one never prevents the others. Install always returns true.
func Install(ctx context.Context, p Page, opts ...Option) bool {
	o := buildOptions(opts)
	t, fresh := p.ActivitySlot().claim(func() *Tracker { return newTracker(o) })
	if !fresh {
		return true
	}

	fp, ok := p.(FetchPatcher)
	t.apply(MechanismFetch, ok, func() error { return fp.PatchFetch(ctx, t.wrapFetcher) })

	xp, ok := p.(XHRPatcher)
	t.apply(MechanismXHR, ok, func() error { return xp.PatchXHR(ctx, t.wrapXHRFactory) })

	mo, ok := p.(MutationObservable)
	t.apply(MechanismObserver, ok, func() error { return mo.ObserveMutations(ctx, t.observe) })

	if t.debug {
		s := t.Snapshot()
		t.log.Debug().
			Bool("fetch", s.FetchIntercepted).
			Bool("xhr", s.RequestIntercepted).
			Bool("observer", s.ObserverActive).
			Msg("activity monitor setup complete")
	}
	return true
}

func (t *Tracker) apply(mechanism string, supported bool, patch func() error) {
	if !supported {
		if t.debug {
			t.log.Debug().Str("mechanism", mechanism).Msg("patch skipped: mechanism absent")
		}
		return
	}
	if err := util.Catch(patch); err != nil {
		if t.debug {
			t.log.Debug().Err(err).Str("mechanism", mechanism).Msg("patch failed")
		}
		return
	}
	t.markPatched(mechanism)
}
