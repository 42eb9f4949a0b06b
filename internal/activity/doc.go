// Package activity makes asynchronous page work observable without altering
// its outcome.
//
// A Tracker counts outbound network calls that are in flight and records the
// time of the most recent document mutation. It is installed once per page
// context through Install, which decorates the page's request-issuing entry
// points instead of replacing them:
//   - promise-style calls (Fetcher) are counted from invocation until the
//     returned Call settles, success or failure
//   - callback-style requests (XHR) are counted from Send until their load-end
//     callback, unless the body carries the long-polling marker
//   - mutation batches move the last-mutation timestamp, one update per batch
//
// Every patch is applied independently. A missing or failing mechanism leaves
// its flag false and never aborts the others, and Install always reports
// success. The tracker is never uninstalled; a new page context gets a new Slot.
//
// All Tracker methods are safe for concurrent use.
package activity
