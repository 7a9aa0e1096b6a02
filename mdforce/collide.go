package mdforce

import (
	"context"

	"cdr.dev/slog"

	"github.com/eivindml/marker-dispersion/lib/geo"
	"github.com/eivindml/marker-dispersion/lib/log"
	"github.com/eivindml/marker-dispersion/lib/quadtree"
	"github.com/eivindml/marker-dispersion/mdgraph"
)

type CollideConfig struct {
	// Sweeps is the maximum number of resolution passes per step. A step stops
	// early after a pass that corrected nothing. Zero scales the cap with the
	// number of nodes, see MaxSweeps.
	Sweeps int
	// Padding is extra space kept to the right of and below every label.
	Padding float64
	// Epsilon is the overlap extent at or below which two labels count as touching.
	Epsilon float64
}

// Collide separates overlapping label rectangles. Each overlapping pair is
// pushed apart along a single axis by equal and opposite amounts.
type Collide struct {
	sweeps  int
	padding float64
	epsilon float64

	nodes []*mdgraph.Node
	tree  *quadtree.Tree[*mdgraph.Node]

	// last is the outcome of the previous Apply, replayed when the next one
	// starts from the same positions.
	last *collideResult

	// unresolved counts steps that used every sweep and still corrected something.
	unresolved int
}

type collideResult struct {
	from    []geo.Point
	to      []geo.Point
	settled bool
}

func NewCollide(cfg CollideConfig) *Collide {
	c := &Collide{
		sweeps:  cfg.Sweeps,
		padding: cfg.Padding,
		epsilon: cfg.Epsilon,
	}
	if c.sweeps < 0 {
		c.sweeps = 0
	}
	if c.padding < 0 {
		c.padding = 0
	}
	if c.epsilon <= 0 {
		c.epsilon = DefaultCollideEpsilon
	}
	c.tree = quadtree.New(
		func(n *mdgraph.Node) float64 { return n.X },
		func(n *mdgraph.Node) float64 { return n.Y },
		func(n *mdgraph.Node) (float64, float64) {
			return n.Size.Width + c.padding, n.Size.Height + c.padding
		},
	)
	return c
}

func (c *Collide) Initialize(nodes []*mdgraph.Node) {
	c.nodes = nodes
	c.last = nil
	c.unresolved = 0
}

// MaxSweeps returns the sweep cap of a step. Without a configured cap it grows
// with the square of the node count, which lets a row of coincident labels
// spread out fully, and never drops below DefaultCollideSweeps.
func (c *Collide) MaxSweeps() int {
	if c.sweeps > 0 {
		return c.sweeps
	}
	n := len(c.nodes)
	if m := CollideSweepsPerNodeSquared * n * n; m > DefaultCollideSweeps {
		return m
	}
	return DefaultCollideSweeps
}

// Apply sweeps until a sweep corrects nothing or the cap is reached.
//
// A step is a function of the positions it starts from. At full anchor
// strength every step starts from the anchors, so the previous outcome is
// replayed instead of swept again.
func (c *Collide) Apply(ctx context.Context) {
	if c.last != nil && samePositions(c.nodes, c.last.from) {
		for i, n := range c.nodes {
			n.X, n.Y = c.last.to[i].X, c.last.to[i].Y
		}
		if !c.last.settled {
			c.unresolved++
		}
		return
	}

	from := positions(c.nodes)
	settled := c.resolve(ctx)
	if ctx.Err() != nil {
		c.last = nil
		return
	}
	if !settled {
		c.unresolved++
		log.Debug(ctx, "collisions left after final sweep", slog.F("sweeps", c.MaxSweeps()))
	}
	c.last = &collideResult{
		from:    from,
		to:      positions(c.nodes),
		settled: settled,
	}
}

func (c *Collide) resolve(ctx context.Context) bool {
	limit := c.MaxSweeps()
	for i := 0; i < limit; i++ {
		if c.Sweep() == 0 {
			return true
		}
		if i%64 == 63 && ctx.Err() != nil {
			return false
		}
	}
	return false
}

// Unresolved returns how many steps since Initialize ran out of sweeps.
func (c *Collide) Unresolved() int {
	return c.unresolved
}

// Sweep runs one resolution pass over every unordered pair of nodes that may
// overlap and returns the number of corrections applied.
func (c *Collide) Sweep() int {
	c.tree.Build(c.nodes)

	corrected := 0
	for _, a := range c.nodes {
		a := a
		c.tree.Visit(func(q quadtree.Quad[*mdgraph.Node]) bool {
			if q.Leaf() {
				for _, b := range q.Items {
					if b.ID <= a.ID {
						continue
					}
					if _, _, ok := Separate(a, b, c.padding, c.epsilon); ok {
						corrected++
					}
				}
				return false
			}
			ab := paddedBox(a, c.padding)
			// Tree sizes already include padding.
			return q.X0 >= ab.Right() || q.X1+q.MaxWidth <= ab.Left() ||
				q.Y0 >= ab.Bottom() || q.Y1+q.MaxHeight <= ab.Top()
		})
	}
	return corrected
}

// Separate pushes a and b apart if their rectangles overlap. It returns the
// axis moved along and the signed delta d applied as a -= d, b += d.
//
// When one rectangle spans the other on an axis, moving along that axis cannot
// reduce the overlap, so only the other axis is considered; when both axes are
// spanned nothing moves. Otherwise the axis with the smaller overlap is used.
func Separate(a, b *mdgraph.Node, padding, epsilon float64) (geo.Axis, float64, bool) {
	ab := paddedBox(a, padding)
	bb := paddedBox(b, padding)
	in := ab.Intersection(bb)
	if in == nil {
		return geo.AxisX, 0, false
	}

	spanX := ab.Spans(bb, geo.AxisX)
	spanY := ab.Spans(bb, geo.AxisY)

	var axis geo.Axis
	var overlap float64
	switch {
	case spanX && spanY:
		return geo.AxisX, 0, false
	case spanX:
		axis, overlap = geo.AxisY, in.Height
	case spanY:
		axis, overlap = geo.AxisX, in.Width
	case in.Width <= in.Height:
		axis, overlap = geo.AxisX, in.Width
	default:
		axis, overlap = geo.AxisY, in.Height
	}
	if overlap <= epsilon {
		return axis, 0, false
	}

	d := overlap / 2
	aMin, _ := ab.Span(axis)
	bMin, _ := bb.Span(axis)
	if aMin > bMin {
		d = -d
	}

	if axis == geo.AxisX {
		a.X -= d
		b.X += d
	} else {
		a.Y -= d
		b.Y += d
	}
	return axis, d, true
}

func positions(nodes []*mdgraph.Node) []geo.Point {
	out := make([]geo.Point, len(nodes))
	for i, n := range nodes {
		out[i] = geo.Point{X: n.X, Y: n.Y}
	}
	return out
}

func samePositions(nodes []*mdgraph.Node, ps []geo.Point) bool {
	if len(nodes) != len(ps) {
		return false
	}
	for i, n := range nodes {
		if n.X != ps[i].X || n.Y != ps[i].Y {
			return false
		}
	}
	return true
}

func paddedBox(n *mdgraph.Node, padding float64) *geo.Box {
	return geo.NewBox(geo.NewPoint(n.X, n.Y), n.Size.Width+padding, n.Size.Height+padding)
}
