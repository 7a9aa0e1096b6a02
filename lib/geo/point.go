package geo

import "fmt"

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func NewPoint(x, y float64) *Point {
	return &Point{X: x, Y: y}
}

func (p *Point) Copy() *Point {
	return &Point{X: p.X, Y: p.Y}
}

// Sub returns p - other.
func (p *Point) Sub(other *Point) *Point {
	return NewPoint(p.X-other.X, p.Y-other.Y)
}

// InUnits expresses p in multiples of unit, dividing both coordinates by it.
// A zero unit returns a copy of p.
func (p *Point) InUnits(unit float64) *Point {
	if unit == 0 {
		return p.Copy()
	}
	return NewPoint(p.X/unit, p.Y/unit)
}

func (p1 *Point) DistanceTo(p2 *Point) float64 {
	return EuclideanDistance(p1.X, p1.Y, p2.X, p2.Y)
}

func (p *Point) IsFinite() bool {
	return IsFinite(p.X) && IsFinite(p.Y)
}

func (p *Point) String() string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf("(%v, %v)", p.X, p.Y)
}
