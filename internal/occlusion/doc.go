// Package occlusion decides whether a configured busy indicator (spinner,
// overlay) is painted and topmost over the page, as opposed to merely being
// present in the DOM.
//
// For each selector, in order, every matching host is searched for its
// deepest painting node: the subtree and any attached shadow tree are walked
// iteratively, and among the nodes that paint the most nested one wins. The
// winner is then hit-tested at three points (center, top-left and
// bottom-right insets); one point landing on the candidate, the host, or
// anything the host contains or is contained by is enough. The first topmost
// match short-circuits the probe.
//
// The prober is fail-open: any error or panic while probing reports not busy,
// since a probe crash read as "busy forever" would hang the caller.
package occlusion
