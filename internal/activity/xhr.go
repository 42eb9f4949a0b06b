// xhr.go - Callback-style request entry point and its counting decorator.
package activity

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
)

// LongPollingMarker identifies long-polling connections in a serialized
// request body. Such requests are held open by the server and are never
// counted as pending work.
const LongPollingMarker = `"connectionType":"long-polling"`

// XHR is a callback-style request: it is opened, sent, and reports its
// terminal load-end event through callbacks. An XHR is used from a single
// goroutine, like the browser object it models.
type XHR interface {
	Open(method, url string) error
	Send(body any) error
	OnLoadEnd(fn func())
}

// XHRFactory creates a new request object.
type XHRFactory func() XHR

// IsLongPolling reports whether body carries the long-polling marker.
// Strings and byte slices are searched as-is; any other value is JSON
// encoded first. Bodies that fail to encode are not long-polling.
func IsLongPolling(body any) bool {
	switch b := body.(type) {
	case nil:
		return false
	case string:
		return strings.Contains(b, LongPollingMarker)
	case []byte:
		return bytes.Contains(b, []byte(LongPollingMarker))
	case json.RawMessage:
		return bytes.Contains(b, []byte(LongPollingMarker))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return false
		}
		return bytes.Contains(data, []byte(LongPollingMarker))
	}
}

type trackedXHR struct {
	XHR
	t       *Tracker
	tracked bool
}

// Open marks the request as tracked before delegating.
func (x *trackedXHR) Open(method, url string) error {
	x.tracked = true
	return x.XHR.Open(method, url)
}

// Send counts the request until load end, unless it was never opened through
// the decorator or its body is a long-polling marker.
func (x *trackedXHR) Send(body any) error {
	if !x.tracked {
		return x.XHR.Send(body)
	}
	if IsLongPolling(body) {
		if x.t.debug {
			x.t.log.Debug().Msg("long-polling request excluded from pending count")
		}
		return x.XHR.Send(body)
	}

	tok := x.t.begin(MechanismXHR)
	var once sync.Once
	release := func() { once.Do(func() { x.t.end(tok) }) }
	x.XHR.OnLoadEnd(release)

	if err := x.XHR.Send(body); err != nil {
		// A request that fails to send never reaches load end.
		release()
		return err
	}
	return nil
}

// wrapXHRFactory decorates every request created by next.
func (t *Tracker) wrapXHRFactory(next XHRFactory) XHRFactory {
	return func() XHR {
		inner := next()
		if inner == nil {
			return nil
		}
		return &trackedXHR{XHR: inner, t: t}
	}
}
