// dom.go - In-memory rendered document for occlusion tests.
// Supports tag/#id/.class selectors (comma lists allowed), computed display,
// visibility and opacity, shadow roots, and a z-index + document-order
// stacking model for hit testing.
package testing

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/brennhill/pagesettle/internal/occlusion"
)

// Element is a node of a FakeDOM. Build trees with NewElement and the With*
// helpers, then hand the root elements to NewFakeDOM.
type Element struct {
	Tag     string
	HTMLID  string
	Classes []string

	Display    string
	Visibility string
	Opacity    string
	Box        occlusion.Rect
	// Z is the z-index; zero inherits the parent's stacking level.
	Z int

	Kids   []*Element
	Shadow []*Element
	// Detached makes Paint fail, like a node removed mid-probe.
	Detached bool

	id     occlusion.NodeID
	order  int
	parent *Element // light-tree parent
	host   *Element // set on top-level shadow children
}

var compoundRe = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9-]*|\*)?((#[A-Za-z_][\w-]*)|(\.[A-Za-z_][\w-]*))*$`)

// NewElement creates an element from a compound selector such as
// "div#overlay.spinner.big" and a border box.
func NewElement(sel string, box occlusion.Rect, kids ...*Element) *Element {
	e := &Element{Box: box, Kids: kids}
	rest := sel
	if i := strings.IndexAny(rest, "#."); i >= 0 {
		e.Tag, rest = rest[:i], rest[i:]
	} else {
		e.Tag, rest = rest, ""
	}
	if e.Tag == "" {
		e.Tag = "div"
	}
	for rest != "" {
		kind := rest[0]
		rest = rest[1:]
		end := strings.IndexAny(rest, "#.")
		if end < 0 {
			end = len(rest)
		}
		name := rest[:end]
		rest = rest[end:]
		if kind == '#' {
			e.HTMLID = name
		} else {
			e.Classes = append(e.Classes, name)
		}
	}
	return e
}

// WithStyle sets display, visibility and opacity. Empty strings keep defaults.
func (e *Element) WithStyle(display, visibility, opacity string) *Element {
	e.Display, e.Visibility, e.Opacity = display, visibility, opacity
	return e
}

// WithZ sets the z-index.
func (e *Element) WithZ(z int) *Element {
	e.Z = z
	return e
}

// WithShadow attaches a shadow root holding kids.
func (e *Element) WithShadow(kids ...*Element) *Element {
	e.Shadow = append(e.Shadow, kids...)
	return e
}

// ID implements occlusion.Node.
func (e *Element) ID() occlusion.NodeID { return e.id }

// Children implements occlusion.Node.
func (e *Element) Children(context.Context) ([]occlusion.Node, error) {
	return asNodes(e.Kids), nil
}

// ShadowChildren implements occlusion.Node.
func (e *Element) ShadowChildren(context.Context) ([]occlusion.Node, error) {
	return asNodes(e.Shadow), nil
}

// Paint implements occlusion.Node. Descendants of a display:none element get
// an empty rectangle; visibility is inherited. Under a fully transparent
// ancestor the reported opacity is "0", the effective opacity it paints with.
func (e *Element) Paint(context.Context) (occlusion.Paint, error) {
	if e.Detached {
		return occlusion.Paint{}, fmt.Errorf("node %d is detached", e.id)
	}
	p := occlusion.Paint{
		Display:    e.Display,
		Visibility: e.computedVisibility(),
		Opacity:    e.Opacity,
		Rect:       e.Box,
	}
	if p.Display == "" {
		p.Display = "block"
	}
	if p.Opacity == "" {
		p.Opacity = "1"
	}
	if e.underTransparent() {
		p.Opacity = "0"
	}
	if !e.rendered() {
		p.Rect = occlusion.Rect{}
	}
	return p, nil
}

// Contains implements occlusion.Node with light-tree semantics: it does not
// cross into or out of shadow trees.
func (e *Element) Contains(other occlusion.Node) bool {
	o, ok := other.(*Element)
	if !ok || o == nil {
		return false
	}
	for n := o; n != nil; n = n.parent {
		if n == e {
			return true
		}
	}
	return false
}

func (e *Element) composedParent() *Element {
	if e.parent != nil {
		return e.parent
	}
	return e.host
}

// rendered reports whether no composed ancestor (or e itself) is display:none.
func (e *Element) rendered() bool {
	for n := e; n != nil; n = n.composedParent() {
		if n.Display == "none" {
			return false
		}
	}
	return true
}

func (e *Element) underTransparent() bool {
	for n := e.composedParent(); n != nil; n = n.composedParent() {
		if v, err := strconv.ParseFloat(strings.TrimSpace(n.Opacity), 64); err == nil && v <= 0 {
			return true
		}
	}
	return false
}

func (e *Element) computedVisibility() string {
	for n := e; n != nil; n = n.composedParent() {
		if n.Visibility != "" {
			return n.Visibility
		}
	}
	return "visible"
}

// stackLevel is the nearest explicit z-index on the composed ancestor chain.
func (e *Element) stackLevel() int {
	for n := e; n != nil; n = n.composedParent() {
		if n.Z != 0 {
			return n.Z
		}
	}
	return 0
}

// retarget maps a node inside shadow trees to its outermost light-tree host,
// as document-level hit testing does.
func (e *Element) retarget() *Element {
	out := e
	for n := e; n != nil; n = n.composedParent() {
		if n.parent == nil && n.host != nil {
			out = n.host
		}
	}
	return out
}

func (e *Element) matches(c compound) bool {
	if c.tag != "" && c.tag != "*" && !strings.EqualFold(c.tag, e.Tag) {
		return false
	}
	if c.id != "" && c.id != e.HTMLID {
		return false
	}
	for _, cls := range c.classes {
		if !slices.Contains(e.Classes, cls) {
			return false
		}
	}
	return true
}

func asNodes(els []*Element) []occlusion.Node {
	out := make([]occlusion.Node, len(els))
	for i, el := range els {
		out[i] = el
	}
	return out
}

// FakeDOM implements occlusion.Document over an Element tree rooted at an
// <html> element that covers the viewport.
type FakeDOM struct {
	Root   *Element
	Width  float64
	Height float64

	// SingleHitOnly makes ElementsFromPoint return ErrHitTestUnsupported.
	SingleHitOnly bool
	// ViewportErr simulates a missing viewport API.
	ViewportErr error
	// PanicOnQuery simulates a host binding that throws unexpectedly.
	PanicOnQuery bool

	all       []*Element // composed pre-order
	HitProbes int
}

// NewFakeDOM builds a document whose body holds the given elements.
func NewFakeDOM(width, height float64, body ...*Element) *FakeDOM {
	vp := occlusion.Rect{Width: width, Height: height}
	root := NewElement("html", vp, NewElement("body", vp, body...))
	d := &FakeDOM{Root: root, Width: width, Height: height}
	d.Reindex()
	return d
}

// Reindex assigns IDs and parent links. Call it after mutating the tree.
func (d *FakeDOM) Reindex() {
	d.all = d.all[:0]
	var walk func(e, parent, host *Element)
	walk = func(e, parent, host *Element) {
		e.parent, e.host = parent, host
		e.order = len(d.all)
		e.id = occlusion.NodeID(len(d.all) + 1)
		d.all = append(d.all, e)
		for _, s := range e.Shadow {
			walk(s, nil, e)
		}
		for _, k := range e.Kids {
			walk(k, e, nil)
		}
	}
	walk(d.Root, nil, nil)
}

type compound struct {
	tag     string
	id      string
	classes []string
}

func parseSelector(sel string) ([]compound, error) {
	var out []compound
	for _, part := range strings.Split(sel, ",") {
		part = strings.TrimSpace(part)
		if part == "" || !compoundRe.MatchString(part) {
			return nil, fmt.Errorf("SyntaxError: %q is not a valid selector", sel)
		}
		el := NewElement(part, occlusion.Rect{})
		c := compound{id: el.HTMLID, classes: el.Classes}
		if i := strings.IndexAny(part, "#."); i != 0 {
			c.tag = el.Tag
		}
		out = append(out, c)
	}
	return out, nil
}

// QuerySelectorAll implements occlusion.Document. Like the browser's
// document-level query it does not match inside shadow trees.
func (d *FakeDOM) QuerySelectorAll(_ context.Context, selector string) ([]occlusion.Node, error) {
	if d.PanicOnQuery {
		panic("host binding exploded")
	}
	compounds, err := parseSelector(selector)
	if err != nil {
		return nil, err
	}
	var out []occlusion.Node
	for _, e := range d.all {
		if e.retarget() != e {
			continue
		}
		for _, c := range compounds {
			if e.matches(c) {
				out = append(out, e)
				break
			}
		}
	}
	return out, nil
}

// Viewport implements occlusion.Document.
func (d *FakeDOM) Viewport(context.Context) (occlusion.Rect, error) {
	if d.ViewportErr != nil {
		return occlusion.Rect{}, d.ViewportErr
	}
	return occlusion.Rect{Width: d.Width, Height: d.Height}, nil
}

// ElementsFromPoint implements occlusion.Document.
func (d *FakeDOM) ElementsFromPoint(_ context.Context, x, y float64) ([]occlusion.Node, error) {
	if d.SingleHitOnly {
		return nil, occlusion.ErrHitTestUnsupported
	}
	d.HitProbes++
	return asNodes(d.stackAt(x, y)), nil
}

// ElementFromPoint implements occlusion.Document.
func (d *FakeDOM) ElementFromPoint(_ context.Context, x, y float64) (occlusion.Node, error) {
	d.HitProbes++
	stack := d.stackAt(x, y)
	if len(stack) == 0 {
		return nil, nil
	}
	return stack[0], nil
}

// stackAt returns hit-testable elements at (x, y), frontmost first, with
// shadow-tree nodes retargeted to their hosts.
func (d *FakeDOM) stackAt(x, y float64) []*Element {
	pt := occlusion.Point{X: x, Y: y}
	var hits []*Element
	for _, e := range d.all {
		if e.Detached || !e.rendered() || e.computedVisibility() != "visible" {
			continue
		}
		if e.Box.Contains(pt) {
			hits = append(hits, e)
		}
	}
	slices.SortStableFunc(hits, func(a, b *Element) int {
		if la, lb := a.stackLevel(), b.stackLevel(); la != lb {
			return lb - la
		}
		return b.order - a.order
	})

	out := make([]*Element, 0, len(hits))
	seen := make(map[*Element]bool)
	for _, h := range hits {
		t := h.retarget()
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
