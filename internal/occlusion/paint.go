// paint.go - Deepest-paint search over a host's composed subtree.
package occlusion

import "context"

// candidate is a node that paints, tagged with its depth below the host.
type candidate struct {
	node  Node
	depth int
	rect  Rect
}

// paints reports whether p is drawn with at least minArea pixels inside the
// viewport.
func paints(p Paint, viewport Rect, minArea float64) bool {
	if p.Hidden() {
		return false
	}
	if p.Rect.Width <= 0 || p.Rect.Height <= 0 {
		return false
	}
	return p.Rect.Intersect(viewport).Area() >= minArea
}

// paintCandidates walks host, its descendants and attached shadow trees in
// document order with an explicit stack, returning every node that paints.
// Subtrees under a display:none or fully transparent node are not entered.
// Nodes are visited at most once, keyed by ID; the walk stops after maxNodes
// visits.
func (p *Prober) paintCandidates(ctx context.Context, host Node, viewport Rect) ([]candidate, error) {
	type frame struct {
		node  Node
		depth int
	}
	stack := []frame{{node: host}}
	seen := make(map[NodeID]struct{})
	var out []candidate

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, ok := seen[f.node.ID()]; ok {
			continue
		}
		seen[f.node.ID()] = struct{}{}
		if len(seen) > p.cfg.MaxNodes {
			if p.cfg.Debug {
				p.log.Debug().Int("max_nodes", p.cfg.MaxNodes).Msg("occlusion: traversal limit reached")
			}
			break
		}

		paint, err := f.node.Paint(ctx)
		if err != nil {
			return nil, err
		}
		if paints(paint, viewport, p.cfg.MinPaintAreaPx) {
			out = append(out, candidate{node: f.node, depth: f.depth, rect: paint.Rect})
		}
		if paint.HidesSubtree() {
			continue
		}

		kids, err := f.node.Children(ctx)
		if err != nil {
			return nil, err
		}
		shadow, err := f.node.ShadowChildren(ctx)
		if err != nil {
			return nil, err
		}
		next := make([]Node, 0, len(kids)+len(shadow))
		next = append(next, kids...)
		next = append(next, shadow...)
		for i := len(next) - 1; i >= 0; i-- {
			if next[i] != nil {
				stack = append(stack, frame{node: next[i], depth: f.depth + 1})
			}
		}
	}
	return out, nil
}

// deepest returns the most nested candidate; on ties the first visited wins.
func deepest(cands []candidate) (candidate, bool) {
	if len(cands) == 0 {
		return candidate{}, false
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if c.depth > best.depth {
			best = c
		}
	}
	return best, true
}
