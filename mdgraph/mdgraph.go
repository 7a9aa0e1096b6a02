// Package mdgraph holds the label model shared by the declutter engine: the
// input snapshot, the simulated nodes and the rules for carrying positions from
// one resolution pass to the next.
package mdgraph

import (
	"context"
	"math"

	"cdr.dev/slog"

	"github.com/eivindml/marker-dispersion/lib/geo"
	"github.com/eivindml/marker-dispersion/lib/log"
)

// Label is one visible label as reported by the map host, already projected to
// screen coordinates.
type Label struct {
	ID      int     `json:"id" yaml:"id"`
	Title   string  `json:"title" yaml:"title"`
	AnchorX float64 `json:"anchorX" yaml:"anchorX"`
	AnchorY float64 `json:"anchorY" yaml:"anchorY"`
}

type Snapshot []Label

type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Measurer sizes a label rectangle from its title.
type Measurer interface {
	Measure(title string) Size
}

// MeasureFunc adapts a plain function to Measurer.
type MeasureFunc func(title string) Size

func (f MeasureFunc) Measure(title string) Size {
	return f(title)
}

// FixedSize measures every label as the same rectangle.
func FixedSize(width, height float64) Measurer {
	return MeasureFunc(func(string) Size {
		return Size{Width: width, Height: height}
	})
}

type Node struct {
	ID    int    `json:"id"`
	Title string `json:"title"`

	AnchorX float64 `json:"anchorX"`
	AnchorY float64 `json:"anchorY"`

	// X and Y are the simulated top-left corner of the label rectangle.
	X float64 `json:"x"`
	Y float64 `json:"y"`

	// PreviousX and PreviousY are where the label was drawn before this pass.
	PreviousX float64 `json:"previousX"`
	PreviousY float64 `json:"previousY"`

	Size Size `json:"size"`
}

// NewNode places a label at its anchor. Negative or NaN sizes are clamped to 0.
func NewNode(l Label, size Size) *Node {
	return &Node{
		ID:        l.ID,
		Title:     l.Title,
		AnchorX:   l.AnchorX,
		AnchorY:   l.AnchorY,
		X:         l.AnchorX,
		Y:         l.AnchorY,
		PreviousX: l.AnchorX,
		PreviousY: l.AnchorY,
		Size:      clampSize(size),
	}
}

func (n *Node) Anchor() *geo.Point {
	return geo.NewPoint(n.AnchorX, n.AnchorY)
}

func (n *Node) Position() *geo.Point {
	return geo.NewPoint(n.X, n.Y)
}

func (n *Node) Box() *geo.Box {
	return geo.NewBox(n.Position(), n.Size.Width, n.Size.Height)
}

// Offset is the current position relative to the anchor.
func (n *Node) Offset() *geo.Point {
	return n.Position().Sub(n.Anchor())
}

// PreviousOffset is the previous position relative to the anchor.
func (n *Node) PreviousOffset() *geo.Point {
	return geo.NewPoint(n.PreviousX-n.AnchorX, n.PreviousY-n.AnchorY)
}

// NewNodes validates labels and builds one node per label, sized by m.
// A nil m yields zero sized nodes.
func NewNodes(ctx context.Context, labels []Label, m Measurer) ([]*Node, error) {
	err := Validate(labels)
	if err != nil {
		return nil, err
	}

	nodes := make([]*Node, 0, len(labels))
	for _, l := range labels {
		var size Size
		if m != nil {
			size = m.Measure(l.Title)
		}
		if !validSize(size) {
			log.Warn(ctx, "clamping malformed label size",
				slog.F("id", l.ID),
				slog.F("width", size.Width),
				slog.F("height", size.Height),
			)
		}
		nodes = append(nodes, NewNode(l, size))
	}
	return nodes, nil
}

// Carry seeds next with the positions resolved in prev, matched by ID: the
// previous x, y become both the animation start and the simulation start.
// Nodes without a match keep their anchor.
func Carry(prev, next []*Node) int {
	return carry(prev, next, func(n, p *Node) (float64, float64) {
		return p.X, p.Y
	})
}

// CarryOffsets is Carry for a map that moved between passes. The previous
// offset is re-applied to the new anchor, so a label keeps its displacement
// instead of starting from a screen position that now belongs elsewhere.
func CarryOffsets(prev, next []*Node) int {
	return carry(prev, next, func(n, p *Node) (float64, float64) {
		return n.AnchorX + (p.X - p.AnchorX), n.AnchorY + (p.Y - p.AnchorY)
	})
}

func carry(prev, next []*Node, start func(n, p *Node) (float64, float64)) int {
	byID := make(map[int]*Node, len(prev))
	for _, n := range prev {
		byID[n.ID] = n
	}

	carried := 0
	for _, n := range next {
		p, ok := byID[n.ID]
		if !ok {
			continue
		}
		n.PreviousX, n.PreviousY = start(n, p)
		n.X, n.Y = n.PreviousX, n.PreviousY
		carried++
	}
	return carried
}

// Copy returns deep copies of nodes.
func Copy(nodes []*Node) []*Node {
	out := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		c := *n
		out = append(out, &c)
	}
	return out
}

func validSize(s Size) bool {
	return s.Width >= 0 && s.Height >= 0
}

func clampSize(s Size) Size {
	return Size{
		Width:  clampDimension(s.Width),
		Height: clampDimension(s.Height),
	}
}

func clampDimension(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if math.IsInf(v, 1) {
		return math.MaxFloat64
	}
	return v
}
