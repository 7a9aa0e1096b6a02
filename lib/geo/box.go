package geo

import (
	"fmt"
	"math"
)

// Axis selects one dimension of the plane.
type Axis int

const (
	AxisX Axis = iota
	AxisY
)

func (a Axis) String() string {
	if a == AxisY {
		return "y"
	}
	return "x"
}

// Box is an axis-aligned rectangle anchored at its top-left corner.
type Box struct {
	TopLeft *Point
	Width   float64
	Height  float64
}

func NewBox(tl *Point, width, height float64) *Box {
	return &Box{
		TopLeft: tl,
		Width:   width,
		Height:  height,
	}
}

func (b *Box) Copy() *Box {
	if b == nil {
		return nil
	}
	return NewBox(b.TopLeft.Copy(), b.Width, b.Height)
}

func (b *Box) Left() float64 {
	return b.TopLeft.X
}

func (b *Box) Right() float64 {
	return b.TopLeft.X + b.Width
}

func (b *Box) Top() float64 {
	return b.TopLeft.Y
}

func (b *Box) Bottom() float64 {
	return b.TopLeft.Y + b.Height
}

func (b *Box) Center() *Point {
	return NewPoint(b.TopLeft.X+b.Width/2, b.TopLeft.Y+b.Height/2)
}

// Span returns the [min, max] interval of b along axis.
func (b *Box) Span(axis Axis) (float64, float64) {
	if axis == AxisY {
		return b.Top(), b.Bottom()
	}
	return b.Left(), b.Right()
}

// Overlaps reports whether the interiors of b and other intersect.
// Boxes that only share an edge do not overlap. A box without area has no
// interior and only overlaps a box it coincides with.
func (b *Box) Overlaps(other *Box) bool {
	if b.empty() || other.empty() {
		return b.coincides(other)
	}
	return other.Left() < b.Right() && b.Left() < other.Right() &&
		other.Top() < b.Bottom() && b.Top() < other.Bottom()
}

func (b *Box) empty() bool {
	return !(b.Width > 0) || !(b.Height > 0)
}

func (b *Box) coincides(other *Box) bool {
	return b.TopLeft.X == other.TopLeft.X && b.TopLeft.Y == other.TopLeft.Y &&
		b.Width == other.Width && b.Height == other.Height
}

// Intersection returns the rectangle common to b and other, or nil when they do not overlap.
func (b *Box) Intersection(other *Box) *Box {
	if !b.Overlaps(other) {
		return nil
	}
	left := math.Max(b.Left(), other.Left())
	top := math.Max(b.Top(), other.Top())
	right := math.Min(b.Right(), other.Right())
	bottom := math.Min(b.Bottom(), other.Bottom())
	return NewBox(NewPoint(left, top), right-left, bottom-top)
}

// Spans reports whether one of b and other fully contains the other along axis.
func (b *Box) Spans(other *Box, axis Axis) bool {
	min1, max1 := b.Span(axis)
	min2, max2 := other.Span(axis)
	return (min1 <= min2 && max1 >= max2) || (min2 <= min1 && max2 >= max1)
}

func (b *Box) String() string {
	if b == nil {
		return ""
	}
	return fmt.Sprintf("{TopLeft: %s, Width: %.0f, Height: %.0f}", b.TopLeft, b.Width, b.Height)
}
