// events.go - Binding payloads sent by the page shim.
package cdp

import (
	"encoding/json"
	"fmt"
)

// bindingName is the runtime binding the shim reports through.
const bindingName = "__settleEmit"

// Event kinds and phases emitted by shim.js.
const (
	kindFetch    = "fetch"
	kindXHR      = "xhr"
	kindMutation = "mutation"

	phaseStart   = "start"
	phaseSettle  = "settle"
	phaseOpen    = "open"
	phaseSend    = "send"
	phaseLoadEnd = "loadend"
)

// shimEvent is one binding call. Fields not used by a kind stay zero.
type shimEvent struct {
	Gen    string `json:"gen"`
	Kind   string `json:"kind"`
	Phase  string `json:"phase"`
	ID     string `json:"id"`
	Method string `json:"method"`
	URL    string `json:"url"`
	Status int    `json:"status"`
	Error  string `json:"error"`
	// Body is the serialized XHR body, nil when the request had none.
	Body    *string `json:"body"`
	Records int     `json:"records"`
	Prev    string  `json:"prev"`
}

func decodeEvent(payload string) (shimEvent, error) {
	var ev shimEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return shimEvent{}, fmt.Errorf("decode binding payload: %w", err)
	}
	if ev.Kind == "" {
		return shimEvent{}, fmt.Errorf("decode binding payload: missing kind")
	}
	return ev, nil
}

// body returns the XHR body in the form activity.IsLongPolling expects.
func (ev shimEvent) body() any {
	if ev.Body == nil {
		return nil
	}
	return *ev.Body
}
