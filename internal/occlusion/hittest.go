// hittest.go - Topmost check by sampling points on a candidate's rectangle.
package occlusion

import (
	"context"
	"errors"
)

// sampleInset keeps corner samples off anti-aliased or rounded edges.
const sampleInset = 2

// samplePoints returns the center, the top-left inset and the bottom-right
// inset of r, each clamped inside the viewport.
func samplePoints(r, viewport Rect) []Point {
	pts := []Point{
		{X: r.X + r.Width/2, Y: r.Y + r.Height/2},
		{X: r.X + sampleInset, Y: r.Y + sampleInset},
		{X: r.Right() - sampleInset, Y: r.Bottom() - sampleInset},
	}
	for i := range pts {
		pts[i] = clamp(pts[i], viewport)
	}
	return pts
}

func clamp(p Point, viewport Rect) Point {
	maxX := max(viewport.X, viewport.Right()-1)
	maxY := max(viewport.Y, viewport.Bottom()-1)
	p.X = min(max(p.X, viewport.X), maxX)
	p.Y = min(max(p.Y, viewport.Y), maxY)
	return p
}

// hitTest returns the frontmost node at pt, falling back to the
// single-element query when the stacking-order query is unsupported.
func hitTest(ctx context.Context, doc Document, pt Point) (Node, error) {
	nodes, err := doc.ElementsFromPoint(ctx, pt.X, pt.Y)
	if err == nil {
		if len(nodes) == 0 {
			return nil, nil
		}
		return nodes[0], nil
	}
	if !errors.Is(err, ErrHitTestUnsupported) {
		return nil, err
	}
	return doc.ElementFromPoint(ctx, pt.X, pt.Y)
}

// related reports whether a hit counts as landing on the candidate.
func related(hit, cand, host Node) bool {
	switch {
	case hit.ID() == cand.ID(), hit.ID() == host.ID():
		return true
	case host.Contains(hit), hit.Contains(host):
		return true
	}
	return false
}

// topmost reports whether any sample point of c lands on it.
func (p *Prober) topmost(ctx context.Context, doc Document, c candidate, host Node, viewport Rect) (bool, error) {
	for _, pt := range samplePoints(c.rect, viewport) {
		hit, err := hitTest(ctx, doc, pt)
		if err != nil {
			return false, err
		}
		if hit == nil {
			continue
		}
		if related(hit, c.node, host) {
			return true, nil
		}
		if p.cfg.Debug {
			p.log.Debug().
				Float64("x", pt.X).Float64("y", pt.Y).
				Int64("hit", int64(hit.ID())).Int64("candidate", int64(c.node.ID())).
				Msg("occlusion: sample point covered")
		}
	}
	return false, nil
}
