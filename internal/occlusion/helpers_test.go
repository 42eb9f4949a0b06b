package occlusion

import (
	"context"

	"github.com/rs/zerolog"
)

func nopLogger() zerolog.Logger { return zerolog.Nop() }

type stubNode NodeID

func (s stubNode) ID() NodeID                                    { return NodeID(s) }
func (stubNode) Children(context.Context) ([]Node, error)       { return nil, nil }
func (stubNode) ShadowChildren(context.Context) ([]Node, error) { return nil, nil }
func (stubNode) Paint(context.Context) (Paint, error)           { return Paint{}, nil }
func (stubNode) Contains(Node) bool                             { return false }

// graphNode allows arbitrary (even cyclic) child links.
type graphNode struct {
	id     NodeID
	rect   Rect
	style  Paint
	kids   []Node
	shadow []Node
}

func (g *graphNode) ID() NodeID                                      { return g.id }
func (g *graphNode) Children(context.Context) ([]Node, error)       { return g.kids, nil }
func (g *graphNode) ShadowChildren(context.Context) ([]Node, error) { return g.shadow, nil }
func (g *graphNode) Paint(context.Context) (Paint, error) {
	p := g.style
	p.Rect = g.rect
	return p, nil
}
func (g *graphNode) Contains(Node) bool                             { return false }
