// fetch.go - Promise-style request entry point and its counting decorator.
package activity

import "sync"

// Request describes an outbound network call.
type Request struct {
	ID     string
	Method string
	URL    string
	Body   any
}

// Response is the settled result of a successful call.
type Response struct {
	Status int
	Body   []byte
}

// Call is the pending result of a Fetcher invocation. It settles exactly
// once; hooks registered with Finally run exactly once after settlement,
// whatever the outcome.
type Call struct {
	mu      sync.Mutex
	settled bool
	resp    *Response
	err     error
	hooks   []func()
}

// NewCall returns an unsettled call.
func NewCall() *Call {
	return &Call{}
}

// Settle records the outcome and runs pending hooks. Only the first call
// has any effect; it reports whether this call settled c.
func (c *Call) Settle(resp *Response, err error) bool {
	c.mu.Lock()
	if c.settled {
		c.mu.Unlock()
		return false
	}
	c.settled = true
	c.resp, c.err = resp, err
	hooks := c.hooks
	c.hooks = nil
	c.mu.Unlock()

	for _, h := range hooks {
		h()
	}
	return true
}

// Finally registers fn to run once c settles. If c has already settled, fn
// runs immediately on the caller's goroutine.
func (c *Call) Finally(fn func()) {
	c.mu.Lock()
	if !c.settled {
		c.hooks = append(c.hooks, fn)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	fn()
}

// Fetcher is a promise-style network entry point.
type Fetcher interface {
	Fetch(req *Request) *Call
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(req *Request) *Call

// Fetch calls f(req).
func (f FetcherFunc) Fetch(req *Request) *Call {
	return f(req)
}

// wrapFetcher decorates next so that every invocation is counted from before
// delegation until the returned call settles. A nil call, or a delegate that
// panics, releases the count immediately.
func (t *Tracker) wrapFetcher(next Fetcher) Fetcher {
	return FetcherFunc(func(req *Request) (call *Call) {
		tok := t.begin(MechanismFetch)
		defer func() {
			if r := recover(); r != nil {
				t.end(tok)
				panic(r)
			}
		}()

		call = next.Fetch(req)
		if call == nil {
			t.end(tok)
			return nil
		}
		call.Finally(func() { t.end(tok) })
		return call
	})
}
