// Package placement finds free canvas space for new nodes and picks the
// sides the connecting edge attaches to.
package placement

import (
	"fmt"

	"github.com/codefionn/canvaschat/internal/canvas"
	"github.com/codefionn/canvaschat/internal/consts"
)

// BoxIndex answers which existing boxes overlap a rectangle.
type BoxIndex interface {
	Intersecting(rect canvas.Rect) []canvas.Rect
}

// Boxes is a BoxIndex over a fixed list.
type Boxes []canvas.Rect

func (b Boxes) Intersecting(rect canvas.Rect) []canvas.Rect {
	var out []canvas.Rect
	for _, box := range b {
		if box.Intersects(rect) {
			out = append(out, box)
		}
	}
	return out
}

// StoreIndex adapts a GraphStore to BoxIndex.
type StoreIndex struct {
	Store canvas.GraphStore
}

func (s StoreIndex) Intersecting(rect canvas.Rect) []canvas.Rect {
	nodes := s.Store.IntersectingNodes(rect)
	out := make([]canvas.Rect, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Rect())
	}
	return out
}

// Request describes where a new node should go.
type Request struct {
	// Anchor is the node the edge starts from; sides are computed against it.
	Anchor canvas.Rect
	// Reference is the box the position is measured from. Nil means Anchor.
	Reference *canvas.Rect
	// Offset, when set, positions the node at Reference + Offset instead of
	// below Reference.
	Offset *canvas.Point
	// Size of the new node.
	Size canvas.Size
	Gap  float64
}

// Result is the chosen position and the edge sides.
type Result struct {
	Position canvas.Point
	FromSide canvas.Side
	ToSide   canvas.Side
}

// Place finds the first position, moving right, whose candidate rectangle
// (the node size extended downwards by the lookahead) overlaps nothing.
func Place(index BoxIndex, req Request) Result {
	ref := req.Anchor
	if req.Reference != nil {
		ref = *req.Reference
	}

	pos := canvas.Point{X: ref.X, Y: ref.Y + ref.Height + req.Gap}
	if req.Offset != nil {
		pos = canvas.Point{X: ref.X + req.Offset.X, Y: ref.Y + req.Offset.Y}
	}

	for {
		candidate := canvas.Rect{
			X:      pos.X,
			Y:      pos.Y,
			Width:  req.Size.Width,
			Height: req.Size.Height + consts.PlacementLookahead,
		}
		hits := index.Intersecting(candidate)
		if len(hits) == 0 {
			break
		}
		right := hits[0].Right()
		for _, hit := range hits[1:] {
			if hit.Right() > right {
				right = hit.Right()
			}
		}
		pos.X = right + consts.HorizontalGap
	}

	from, to := Sides(req.Anchor, canvas.Rect{X: pos.X, Y: pos.Y, Width: req.Size.Width, Height: req.Size.Height})
	return Result{Position: pos, FromSide: from, ToSide: to}
}

// Sides picks the edge sides between anchor and a node at placed.
func Sides(anchor, placed canvas.Rect) (from, to canvas.Side) {
	switch {
	case placed.X > anchor.Right():
		from = canvas.SideRight
	case placed.Right() < anchor.X:
		from = canvas.SideLeft
	default:
		from = canvas.SideBottom
	}

	to = opposite(from)
	midY := anchor.Y + anchor.Height/2
	midX := anchor.X + anchor.Width/2
	if placed.Y > midY && placed.X >= midX {
		to = canvas.SideTop
	}
	return from, to
}

func opposite(side canvas.Side) canvas.Side {
	switch side {
	case canvas.SideRight:
		return canvas.SideLeft
	case canvas.SideLeft:
		return canvas.SideRight
	case canvas.SideTop:
		return canvas.SideBottom
	default:
		return canvas.SideTop
	}
}

// NeighbourOptions tune AddNeighbour.
type NeighbourOptions struct {
	// Reference is the node measured from instead of the anchor.
	Reference *canvas.Node
	Offset    *canvas.Point
	EdgeColor string
	// Size of the new node. Zero means the reference node's width and gap
	// as height, which callers resize later.
	Size canvas.Size
	Text string
	Data canvas.NodeData
}

// AddNeighbour creates a node next to anchor in free space and links it
// from anchor with an edge "<anchor>-><new>".
func AddNeighbour(store canvas.GraphStore, anchor *canvas.Node, gap float64, opts NeighbourOptions) (*canvas.Node, error) {
	if anchor == nil {
		return nil, fmt.Errorf("add neighbour: %w", canvas.ErrNodeNotFound)
	}

	relevant := anchor
	if opts.Reference != nil {
		relevant = opts.Reference
	}

	size := opts.Size
	if size.Width == 0 {
		size.Width = relevant.Width
	}
	if size.Height == 0 {
		size.Height = gap
	}

	req := Request{Anchor: anchor.Rect(), Offset: opts.Offset, Size: size, Gap: gap}
	if opts.Reference != nil {
		ref := opts.Reference.Rect()
		req.Reference = &ref
	}
	res := Place(StoreIndex{Store: store}, req)

	node, err := store.CreateNode(canvas.NodeSpec{
		Text:   opts.Text,
		X:      res.Position.X,
		Y:      res.Position.Y,
		Width:  size.Width,
		Height: size.Height,
		Data:   opts.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("add neighbour: %w", err)
	}

	edge := canvas.Edge{
		ID:       anchor.ID + "->" + node.ID,
		FromNode: anchor.ID,
		FromSide: res.FromSide,
		ToNode:   node.ID,
		ToSide:   res.ToSide,
		Color:    opts.EdgeColor,
	}
	if err := store.AddEdge(edge); err != nil {
		return nil, fmt.Errorf("add neighbour edge: %w", err)
	}
	return node, nil
}
