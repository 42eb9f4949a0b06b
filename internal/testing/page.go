// page.go - In-memory page context exposing all three instrumentable mechanisms.
// This file is NOT a test file (no _test.go suffix) so it can be imported by tests in other packages.
package testing

import (
	"context"
	"sync"

	"github.com/brennhill/pagesettle/internal/activity"
)

// FakePage is a page whose fetch, XHR and mutation mechanisms are driven by
// the test. Its base fetcher returns calls that stay pending until the test
// settles them; its base XHR objects finish when Finish is called.
type FakePage struct {
	slot activity.Slot

	mu        sync.Mutex
	fetch     activity.Fetcher
	newXHR    activity.XHRFactory
	observers []func(records int)
	xhrs      []*FakeXHR

	// Set to simulate a mechanism that is absent or whose patch fails.
	FetchErr    error
	XHRErr      error
	ObserverErr error
	// PanicOnPatchXHR makes PatchXHR panic, like an incompatible prototype.
	PanicOnPatchXHR bool
}

// NewFakePage returns a page with un-instrumented mechanisms.
func NewFakePage() *FakePage {
	p := &FakePage{}
	p.fetch = activity.FetcherFunc(func(*activity.Request) *activity.Call {
		return activity.NewCall()
	})
	p.newXHR = func() activity.XHR {
		x := &FakeXHR{}
		p.mu.Lock()
		p.xhrs = append(p.xhrs, x)
		p.mu.Unlock()
		return x
	}
	return p
}

// ActivitySlot implements activity.Page.
func (p *FakePage) ActivitySlot() *activity.Slot {
	return &p.slot
}

// PatchFetch implements activity.FetchPatcher.
func (p *FakePage) PatchFetch(_ context.Context, wrap func(activity.Fetcher) activity.Fetcher) error {
	if p.FetchErr != nil {
		return p.FetchErr
	}
	p.mu.Lock()
	p.fetch = wrap(p.fetch)
	p.mu.Unlock()
	return nil
}

// PatchXHR implements activity.XHRPatcher.
func (p *FakePage) PatchXHR(_ context.Context, wrap func(activity.XHRFactory) activity.XHRFactory) error {
	if p.PanicOnPatchXHR {
		panic("XMLHttpRequest.prototype is frozen")
	}
	if p.XHRErr != nil {
		return p.XHRErr
	}
	p.mu.Lock()
	p.newXHR = wrap(p.newXHR)
	p.mu.Unlock()
	return nil
}

// ObserveMutations implements activity.MutationObservable.
func (p *FakePage) ObserveMutations(_ context.Context, onBatch func(records int)) error {
	if p.ObserverErr != nil {
		return p.ObserverErr
	}
	p.mu.Lock()
	p.observers = append(p.observers, onBatch)
	p.mu.Unlock()
	return nil
}

// Fetch issues a call through the page's current (possibly decorated) fetcher.
func (p *FakePage) Fetch(req *activity.Request) *activity.Call {
	p.mu.Lock()
	f := p.fetch
	p.mu.Unlock()
	return f.Fetch(req)
}

// NewXHR creates a request through the page's current factory.
func (p *FakePage) NewXHR() activity.XHR {
	p.mu.Lock()
	factory := p.newXHR
	p.mu.Unlock()
	return factory()
}

// LastXHR returns the most recently created base request, or nil.
func (p *FakePage) LastXHR() *FakeXHR {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.xhrs) == 0 {
		return nil
	}
	return p.xhrs[len(p.xhrs)-1]
}

// Mutate delivers one batch of n mutation records to every observer.
func (p *FakePage) Mutate(n int) {
	p.mu.Lock()
	observers := append([]func(int){}, p.observers...)
	p.mu.Unlock()
	for _, fn := range observers {
		fn(n)
	}
}

// Observers returns the number of active mutation observers.
func (p *FakePage) Observers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.observers)
}

// BarePage owns a slot but exposes no instrumentable mechanism.
type BarePage struct {
	slot activity.Slot
}

// ActivitySlot implements activity.Page.
func (p *BarePage) ActivitySlot() *activity.Slot {
	return &p.slot
}

// FakeXHR is the un-instrumented request object of a FakePage.
type FakeXHR struct {
	Method  string
	URL     string
	Body    any
	Sent    bool
	SendErr error

	loadEnd []func()
}

// Open implements activity.XHR.
func (x *FakeXHR) Open(method, url string) error {
	x.Method, x.URL = method, url
	return nil
}

// Send implements activity.XHR.
func (x *FakeXHR) Send(body any) error {
	if x.SendErr != nil {
		return x.SendErr
	}
	x.Body = body
	x.Sent = true
	return nil
}

// OnLoadEnd implements activity.XHR.
func (x *FakeXHR) OnLoadEnd(fn func()) {
	x.loadEnd = append(x.loadEnd, fn)
}

// Finish fires the load-end event. Calling it more than once fires the
// listeners again, like a misbehaving transport would.
func (x *FakeXHR) Finish() {
	for _, fn := range x.loadEnd {
		fn()
	}
}
