// document.go - occlusion.Document over a pierced DOM snapshot.
package cdp

import (
	"context"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/brennhill/pagesettle/internal/occlusion"
)

// paintFunc runs with the element as this. The reported opacity is the
// product along the composed ancestor chain, which is what the element
// paints with.
const paintFunc = `function () {
	const cs = getComputedStyle(this);
	const r = this.getBoundingClientRect();
	let opacity = 1;
	for (let n = this; n && opacity > 0; ) {
		if (n.nodeType === Node.ELEMENT_NODE) {
			const v = parseFloat(getComputedStyle(n).opacity);
			if (!isNaN(v)) opacity *= v;
		}
		n = n.parentNode instanceof ShadowRoot ? n.parentNode.host : n.parentNode;
	}
	return {
		display: cs.display,
		visibility: cs.visibility,
		opacity: String(opacity),
		rect: {x: r.x, y: r.y, width: r.width, height: r.height},
	};
}`

const viewportExpr = `({x: 0, y: 0, width: window.innerWidth, height: window.innerHeight})`

// domBackend is the set of protocol calls a snapshot needs after it is built.
type domBackend interface {
	QuerySelectorAll(ctx context.Context, root cdp.NodeID, selector string) ([]cdp.NodeID, error)
	Paint(ctx context.Context, id cdp.NodeID) (occlusion.Paint, error)
	Viewport(ctx context.Context) (occlusion.Rect, error)
	NodeForLocation(ctx context.Context, x, y int64) (cdp.NodeID, cdp.BackendNodeID, error)
}

// protocolBackend issues the calls against the tab in ctx.
type protocolBackend struct{}

func (protocolBackend) QuerySelectorAll(ctx context.Context, root cdp.NodeID, selector string) ([]cdp.NodeID, error) {
	return dom.QuerySelectorAll(root, selector).Do(ctx)
}

func (protocolBackend) Paint(ctx context.Context, id cdp.NodeID) (occlusion.Paint, error) {
	obj, err := dom.ResolveNode().WithNodeID(id).Do(ctx)
	if err != nil {
		return occlusion.Paint{}, err
	}
	defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(ctx) }()

	var p occlusion.Paint
	onNode := func(p *runtime.CallFunctionOnParams) *runtime.CallFunctionOnParams {
		return p.WithObjectID(obj.ObjectID)
	}
	if err := chromedp.CallFunctionOn(paintFunc, &p, onNode).Do(ctx); err != nil {
		return occlusion.Paint{}, err
	}
	return p, nil
}

func (protocolBackend) Viewport(ctx context.Context) (occlusion.Rect, error) {
	var r occlusion.Rect
	err := chromedp.Evaluate(viewportExpr, &r).Do(ctx)
	return r, err
}

func (protocolBackend) NodeForLocation(ctx context.Context, x, y int64) (cdp.NodeID, cdp.BackendNodeID, error) {
	backendID, _, nodeID, err := dom.GetNodeForLocation(x, y).Do(ctx)
	return nodeID, backendID, err
}

// snapshot indexes a document tree fetched with pierce enabled. Containment
// follows the composed tree: a shadow root's parent is its host and a frame
// document's parent is its frame element, since protocol hit tests return
// the innermost node rather than the retargeted host.
type snapshot struct {
	root      *snapNode
	byID      map[cdp.NodeID]*snapNode
	byBackend map[cdp.BackendNodeID]*snapNode
	be        domBackend
}

type snapNode struct {
	id      cdp.NodeID
	backend cdp.BackendNodeID
	doc     *snapshot
	parent  *snapNode
	kids    []occlusion.Node
	shadow  []occlusion.Node
}

func newSnapshot(root *cdp.Node, be domBackend) *snapshot {
	s := &snapshot{
		byID:      make(map[cdp.NodeID]*snapNode),
		byBackend: make(map[cdp.BackendNodeID]*snapNode),
		be:        be,
	}
	type item struct {
		raw    *cdp.Node
		parent *snapNode
	}
	wrapped := make(map[*cdp.Node]*snapNode)
	stack := []item{{raw: root}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if it.raw == nil {
			continue
		}
		n := s.add(it.raw.NodeID, it.raw.BackendNodeID)
		n.parent = it.parent
		wrapped[it.raw] = n
		if s.root == nil {
			s.root = n
		}

		for _, c := range it.raw.Children {
			stack = append(stack, item{raw: c, parent: n})
		}
		for _, sr := range it.raw.ShadowRoots {
			stack = append(stack, item{raw: sr, parent: n})
		}
		if it.raw.ContentDocument != nil {
			stack = append(stack, item{raw: it.raw.ContentDocument, parent: n})
		}
	}

	// Element children, in document order, once every node is wrapped.
	for raw, n := range wrapped {
		n.kids = elementChildren(raw.Children, wrapped)
		for _, sr := range raw.ShadowRoots {
			if sr.ShadowRootType == cdp.ShadowRootTypeUserAgent {
				continue
			}
			n.shadow = append(n.shadow, elementChildren(sr.Children, wrapped)...)
		}
	}
	return s
}

func elementChildren(raw []*cdp.Node, wrapped map[*cdp.Node]*snapNode) []occlusion.Node {
	var out []occlusion.Node
	for _, c := range raw {
		if c != nil && c.NodeType == cdp.NodeTypeElement {
			out = append(out, wrapped[c])
		}
	}
	return out
}

func (s *snapshot) add(id cdp.NodeID, backend cdp.BackendNodeID) *snapNode {
	n := &snapNode{id: id, backend: backend, doc: s}
	if id != 0 {
		s.byID[id] = n
	}
	if backend != 0 {
		s.byBackend[backend] = n
	}
	return n
}

// lookup returns the indexed node, or a detached leaf for nodes the protocol
// pushed after the snapshot was taken.
func (s *snapshot) lookup(id cdp.NodeID, backend cdp.BackendNodeID) *snapNode {
	if n, ok := s.byID[id]; ok && id != 0 {
		return n
	}
	if n, ok := s.byBackend[backend]; ok && backend != 0 {
		return n
	}
	return &snapNode{id: id, backend: backend, doc: s}
}

// QuerySelectorAll implements occlusion.Document.
func (s *snapshot) QuerySelectorAll(ctx context.Context, selector string) ([]occlusion.Node, error) {
	ids, err := s.be.QuerySelectorAll(ctx, s.root.id, selector)
	if err != nil {
		return nil, err
	}
	out := make([]occlusion.Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.lookup(id, 0))
	}
	return out, nil
}

// Viewport implements occlusion.Document.
func (s *snapshot) Viewport(ctx context.Context) (occlusion.Rect, error) {
	return s.be.Viewport(ctx)
}

// ElementsFromPoint implements occlusion.Document. The protocol only offers
// the frontmost node, so the prober falls back to ElementFromPoint.
func (s *snapshot) ElementsFromPoint(context.Context, float64, float64) ([]occlusion.Node, error) {
	return nil, occlusion.ErrHitTestUnsupported
}

// ElementFromPoint implements occlusion.Document.
func (s *snapshot) ElementFromPoint(ctx context.Context, x, y float64) (occlusion.Node, error) {
	id, backend, err := s.be.NodeForLocation(ctx, int64(x), int64(y))
	if err != nil {
		return nil, err
	}
	if id == 0 && backend == 0 {
		return nil, nil
	}
	return s.lookup(id, backend), nil
}

// ID implements occlusion.Node.
func (n *snapNode) ID() occlusion.NodeID {
	if n.id != 0 {
		return occlusion.NodeID(n.id)
	}
	return -occlusion.NodeID(n.backend)
}

// Children implements occlusion.Node.
func (n *snapNode) Children(context.Context) ([]occlusion.Node, error) { return n.kids, nil }

// ShadowChildren implements occlusion.Node.
func (n *snapNode) ShadowChildren(context.Context) ([]occlusion.Node, error) { return n.shadow, nil }

// Paint implements occlusion.Node.
func (n *snapNode) Paint(ctx context.Context) (occlusion.Paint, error) {
	return n.doc.be.Paint(ctx, n.id)
}

// Contains implements occlusion.Node over the composed tree.
func (n *snapNode) Contains(other occlusion.Node) bool {
	o, ok := other.(*snapNode)
	if !ok {
		return false
	}
	for p := o; p != nil; p = p.parent {
		if p == n || (p.doc == n.doc && p.ID() == n.ID()) {
			return true
		}
	}
	return false
}
