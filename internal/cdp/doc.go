// Package cdp binds the activity tracker, readiness classifier and occlusion
// prober to a live Chrome tab over the DevTools protocol.
//
// Request and mutation tracking stays in Go. A small page-side shim forwards
// fetch, XMLHttpRequest and MutationObserver events through a runtime
// binding; each event is replayed through the decorators that
// activity.Install wired into the current page context. A main-frame
// navigation starts a fresh page context, so no counters survive a document.
package cdp
