// Package settle waits for a page to stop doing work.
//
// A Waiter polls a Target in a fixed order: document ready, network idle,
// spinner gone, then a DOM-quiet phase that is capped so constant background
// churn cannot stall a run. Running out of time is an outcome, not an error:
// callers log it and carry on.
package settle
