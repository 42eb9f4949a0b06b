// page.go - One document's page context: the activity slot plus the remote
// entry points the shim reports on.
package cdp

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/brennhill/pagesettle/internal/activity"
	"github.com/brennhill/pagesettle/internal/util"
)

// installFunc installs one shim mechanism in the document tagged gen. It
// reports false when the page lacks the mechanism.
type installFunc func(ctx context.Context, mechanism, gen string) (bool, error)

// pageContext implements activity.Page and all three patcher interfaces.
// Handlers are installed by activity.Install; events arrive through dispatch.
type pageContext struct {
	gen     string
	slot    activity.Slot
	install installFunc
	log     zerolog.Logger

	mu      sync.Mutex
	fetcher activity.Fetcher
	newXHR  activity.XHRFactory
	onBatch func(records int)

	// dispatchMu serializes events. Fields below are only touched with it held.
	dispatchMu sync.Mutex
	calls      map[string]*activity.Call
	xhrs       map[string]xhrPair
	opened     []string
	created    *remoteXHR
}

// maxUnsentXHRs bounds requests that were opened but may never be sent.
const maxUnsentXHRs = 256

type xhrPair struct {
	outer activity.XHR
	inner *remoteXHR
	sent  bool
}

func newPageContext(install installFunc, log zerolog.Logger) *pageContext {
	gen := uuid.NewString()
	return &pageContext{
		gen:     gen,
		install: install,
		log:     log.With().Str("page", gen).Logger(),
		calls:   make(map[string]*activity.Call),
		xhrs:    make(map[string]xhrPair),
	}
}

// ActivitySlot implements activity.Page.
func (pc *pageContext) ActivitySlot() *activity.Slot { return &pc.slot }

func (pc *pageContext) installMechanism(ctx context.Context, mechanism string) error {
	ok, err := pc.install(ctx, mechanism, pc.gen)
	if err != nil {
		return err
	}
	if !ok {
		return activity.ErrMechanismAbsent
	}
	return nil
}

// PatchFetch implements activity.FetchPatcher. The handler is set before the
// shim hook so that no start event can arrive unhandled.
func (pc *pageContext) PatchFetch(ctx context.Context, wrap func(activity.Fetcher) activity.Fetcher) error {
	pc.mu.Lock()
	pc.fetcher = wrap(activity.FetcherFunc(pc.remoteFetch))
	pc.mu.Unlock()
	if err := pc.installMechanism(ctx, activity.MechanismFetch); err != nil {
		pc.mu.Lock()
		pc.fetcher = nil
		pc.mu.Unlock()
		return err
	}
	return nil
}

// PatchXHR implements activity.XHRPatcher.
func (pc *pageContext) PatchXHR(ctx context.Context, wrap func(activity.XHRFactory) activity.XHRFactory) error {
	pc.mu.Lock()
	pc.newXHR = wrap(pc.baseXHR)
	pc.mu.Unlock()
	if err := pc.installMechanism(ctx, activity.MechanismXHR); err != nil {
		pc.mu.Lock()
		pc.newXHR = nil
		pc.mu.Unlock()
		return err
	}
	return nil
}

// ObserveMutations implements activity.MutationObservable.
func (pc *pageContext) ObserveMutations(ctx context.Context, onBatch func(records int)) error {
	pc.mu.Lock()
	pc.onBatch = onBatch
	pc.mu.Unlock()
	if err := pc.installMechanism(ctx, activity.MechanismObserver); err != nil {
		pc.mu.Lock()
		pc.onBatch = nil
		pc.mu.Unlock()
		return err
	}
	return nil
}

// dispatch replays one binding payload. Payloads from other documents and
// undecodable payloads are dropped.
func (pc *pageContext) dispatch(payload string) {
	ev, err := decodeEvent(payload)
	if err != nil {
		pc.log.Debug().Err(err).Msg("cdp: dropping binding payload")
		return
	}
	if ev.Gen != pc.gen {
		return
	}

	pc.dispatchMu.Lock()
	defer pc.dispatchMu.Unlock()
	switch ev.Kind {
	case kindFetch:
		pc.onFetch(ev)
	case kindXHR:
		pc.onXHR(ev)
	case kindMutation:
		pc.mu.Lock()
		onBatch := pc.onBatch
		pc.mu.Unlock()
		if onBatch != nil {
			onBatch(ev.Records)
		}
	}
}

func (pc *pageContext) onFetch(ev shimEvent) {
	switch ev.Phase {
	case phaseStart:
		pc.mu.Lock()
		f := pc.fetcher
		pc.mu.Unlock()
		if f == nil {
			return
		}
		f.Fetch(&activity.Request{ID: ev.ID, Method: ev.Method, URL: ev.URL})
	case phaseSettle:
		call, ok := pc.calls[ev.ID]
		if !ok {
			return
		}
		delete(pc.calls, ev.ID)
		if ev.Error != "" {
			call.Settle(nil, errors.New(ev.Error))
			return
		}
		call.Settle(&activity.Response{Status: ev.Status}, nil)
	}
}

// remoteFetch is the undecorated fetcher: the browser performs the request,
// so the call only waits for the matching settle event.
func (pc *pageContext) remoteFetch(req *activity.Request) *activity.Call {
	call := activity.NewCall()
	pc.calls[req.ID] = call
	return call
}

func (pc *pageContext) onXHR(ev shimEvent) {
	switch ev.Phase {
	case phaseOpen:
		if ev.Prev != "" {
			pc.finishXHR(ev.Prev)
		}
		pc.mu.Lock()
		factory := pc.newXHR
		pc.mu.Unlock()
		if factory == nil {
			return
		}
		pc.created = nil
		outer := factory()
		if outer == nil || pc.created == nil {
			return
		}
		pc.xhrs[ev.ID] = xhrPair{outer: outer, inner: pc.created}
		pc.opened = append(pc.opened, ev.ID)
		pc.dropUnsent()
		if err := outer.Open(ev.Method, ev.URL); err != nil {
			pc.log.Debug().Err(err).Str("id", ev.ID).Str("url", util.LogURL(ev.URL)).Msg("cdp: xhr open failed")
		}
	case phaseSend:
		if p, ok := pc.xhrs[ev.ID]; ok {
			p.sent = true
			pc.xhrs[ev.ID] = p
			if err := p.outer.Send(ev.body()); err != nil {
				pc.log.Debug().Err(err).Str("id", ev.ID).Msg("cdp: xhr send failed")
			}
		}
	case phaseLoadEnd:
		pc.finishXHR(ev.ID)
	}
}

// finishXHR ends the request id and forgets it. Reopening an XHR object
// aborts its earlier request without a load end event, so open finishes
// the previous id too.
func (pc *pageContext) finishXHR(id string) {
	if p, ok := pc.xhrs[id]; ok {
		delete(pc.xhrs, id)
		p.inner.loadEnd()
	}
}

// dropUnsent forgets the oldest opened requests once more than
// maxUnsentXHRs are remembered, unless they were sent. Sent requests stay
// until their load end.
func (pc *pageContext) dropUnsent() {
	for len(pc.opened) > maxUnsentXHRs {
		id := pc.opened[0]
		pc.opened = pc.opened[1:]
		if p, ok := pc.xhrs[id]; ok && !p.sent {
			delete(pc.xhrs, id)
		}
	}
}

// baseXHR is the undecorated factory. The request it creates is remembered so
// the load-end event can be delivered to its callbacks.
func (pc *pageContext) baseXHR() activity.XHR {
	x := &remoteXHR{}
	pc.created = x
	return x
}

// remoteXHR mirrors a browser XMLHttpRequest. Open and Send only record; the
// browser does the work and reports load end.
type remoteXHR struct {
	method string
	url    string
	hooks  []func()
	ended  bool
}

func (x *remoteXHR) Open(method, url string) error {
	x.method, x.url = method, url
	return nil
}

func (x *remoteXHR) Send(any) error { return nil }

func (x *remoteXHR) OnLoadEnd(fn func()) { x.hooks = append(x.hooks, fn) }

func (x *remoteXHR) loadEnd() {
	if x.ended {
		return
	}
	x.ended = true
	for _, h := range x.hooks {
		h()
	}
}
