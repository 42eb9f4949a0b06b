// dom.go - The page model the prober runs against.
package occlusion

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

// ErrHitTestUnsupported is returned by Document.ElementsFromPoint when a full
// stacking-order query is unavailable. The prober then falls back to
// ElementFromPoint.
var ErrHitTestUnsupported = errors.New("elementsFromPoint unsupported")

// NodeID identifies a node within one Document.
type NodeID int64

// Node is an element of the composed tree.
type Node interface {
	ID() NodeID
	// Children returns element children in document order.
	Children(ctx context.Context) ([]Node, error)
	// ShadowChildren returns the element children of an attached shadow
	// root, or nothing when there is none.
	ShadowChildren(ctx context.Context) ([]Node, error)
	// Paint returns computed visibility styles and the on-screen rectangle.
	Paint(ctx context.Context) (Paint, error)
	// Contains reports whether other is this node or one of its descendants.
	Contains(other Node) bool
}

// Document is a rendered page.
type Document interface {
	// QuerySelectorAll returns matching elements in document order.
	QuerySelectorAll(ctx context.Context, selector string) ([]Node, error)
	// Viewport returns the visible area in CSS pixels.
	Viewport(ctx context.Context) (Rect, error)
	// ElementsFromPoint returns the elements at a point, frontmost first.
	ElementsFromPoint(ctx context.Context, x, y float64) ([]Node, error)
	// ElementFromPoint returns the frontmost element at a point, or nil.
	ElementFromPoint(ctx context.Context, x, y float64) (Node, error)
}

// Paint holds the computed values that decide whether a node is drawn.
type Paint struct {
	Display    string `json:"display"`
	Visibility string `json:"visibility"`
	Opacity    string `json:"opacity"`
	Rect       Rect   `json:"rect"`
}

// Hidden reports whether styling alone hides the node.
func (p Paint) Hidden() bool {
	if p.Display == "none" {
		return true
	}
	if p.Visibility == "hidden" || p.Visibility == "collapse" {
		return true
	}
	return p.transparent()
}

// HidesSubtree reports whether nothing below the node can be drawn either.
// Opacity composes down the tree, so a fully transparent node hides its
// descendants whatever their own computed opacity. Visibility does not:
// a child may set visibility:visible again.
func (p Paint) HidesSubtree() bool {
	return p.Display == "none" || p.transparent()
}

func (p Paint) transparent() bool {
	op := strings.TrimSpace(p.Opacity)
	if op == "" {
		return false
	}
	v, err := strconv.ParseFloat(op, 64)
	return err == nil && v <= 0
}

// Rect is an axis-aligned rectangle in CSS pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Right returns the x coordinate of the right edge.
func (r Rect) Right() float64 { return r.X + r.Width }

// Bottom returns the y coordinate of the bottom edge.
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Area returns width times height, zero for degenerate rectangles.
func (r Rect) Area() float64 {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}
	return r.Width * r.Height
}

// Intersect returns the overlap of r and o, zero-sized when disjoint.
func (r Rect) Intersect(o Rect) Rect {
	x0, y0 := max(r.X, o.X), max(r.Y, o.Y)
	x1, y1 := min(r.Right(), o.Right()), min(r.Bottom(), o.Bottom())
	if x1 <= x0 || y1 <= y0 {
		return Rect{X: x0, Y: y0}
	}
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Contains reports whether the point lies inside r (right/bottom exclusive).
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.Right() && p.Y >= r.Y && p.Y < r.Bottom()
}

// Point is a viewport coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}
