// Package quadtree implements a point quadtree keyed by item reference points.
//
// Every quadrant also records the largest item width and height stored beneath
// it. Items are keyed by a point but occupy a rectangle extending right and down
// from it, so a rectangle query can still prune a quadrant safely by growing the
// quadrant's bounds by those maxima.
package quadtree

import (
	"math"
)

// maxDepth bounds subdivision when two distinct points are closer than the
// float resolution of their quadrant. Past it they share a leaf.
const maxDepth = 128

// Quad is what a visitor sees of one quadrant.
type Quad[T any] struct {
	X0, Y0, X1, Y1 float64

	// MaxWidth and MaxHeight are the largest item sizes in the quadrant's subtree.
	MaxWidth  float64
	MaxHeight float64

	// Items is set only for leaves. All items of a leaf share one reference point
	// unless maxDepth was reached.
	Items []T
}

func (q Quad[T]) Leaf() bool {
	return q.Items != nil
}

// node is either *leaf[T] or *internal[T].
type node[T any] interface {
	extent() (float64, float64)
}

type leaf[T any] struct {
	x, y  float64
	items []T
	w, h  float64
}

func (l *leaf[T]) extent() (float64, float64) {
	return l.w, l.h
}

type internal[T any] struct {
	// children are indexed by quadrant: 0 top-left, 1 top-right, 2 bottom-left, 3 bottom-right.
	children [4]node[T]
	w, h     float64
}

func (in *internal[T]) extent() (float64, float64) {
	return in.w, in.h
}

type Tree[T any] struct {
	x    func(T) float64
	y    func(T) float64
	size func(T) (float64, float64)

	x0, y0, x1, y1 float64
	root           node[T]
	n              int
}

// New returns an empty tree. x and y give an item's reference point and size its
// width and height.
func New[T any](x, y func(T) float64, size func(T) (float64, float64)) *Tree[T] {
	return &Tree[T]{
		x:    x,
		y:    y,
		size: size,
	}
}

// Build replaces the tree's contents with items. Items whose reference point is
// not finite are skipped.
func (t *Tree[T]) Build(items []T) {
	t.root = nil
	t.n = 0
	t.x0, t.y0, t.x1, t.y1 = 0, 0, 0, 0

	first := true
	for _, it := range items {
		x, y := t.x(it), t.y(it)
		if !finite(x) || !finite(y) {
			continue
		}
		if first {
			t.x0, t.x1, t.y0, t.y1 = x, x, y, y
			first = false
			continue
		}
		t.x0 = math.Min(t.x0, x)
		t.x1 = math.Max(t.x1, x)
		t.y0 = math.Min(t.y0, y)
		t.y1 = math.Max(t.y1, y)
	}
	if first {
		return
	}

	side := math.Max(t.x1-t.x0, t.y1-t.y0)
	if side <= 0 {
		side = 1
	}
	t.x1 = t.x0 + side
	t.y1 = t.y0 + side

	for _, it := range items {
		x, y := t.x(it), t.y(it)
		if !finite(x) || !finite(y) {
			continue
		}
		t.insert(it, x, y)
		t.n++
	}

	if t.root != nil {
		t.aggregate(t.root)
	}
}

func (t *Tree[T]) Len() int {
	return t.n
}

// Extent returns the square covered by the root quadrant.
func (t *Tree[T]) Extent() (x0, y0, x1, y1 float64) {
	return t.x0, t.y0, t.x1, t.y1
}

func (t *Tree[T]) insert(it T, x, y float64) {
	if t.root == nil {
		t.root = &leaf[T]{x: x, y: y, items: []T{it}}
		return
	}

	x0, y0, x1, y1 := t.x0, t.y0, t.x1, t.y1
	var parent *internal[T]
	var pi int
	n := t.root
	depth := 0

	for {
		switch v := n.(type) {
		case *internal[T]:
			var i int
			i, x0, y0, x1, y1 = quadrant(x, y, x0, y0, x1, y1)
			if v.children[i] == nil {
				v.children[i] = &leaf[T]{x: x, y: y, items: []T{it}}
				return
			}
			parent, pi = v, i
			n = v.children[i]
			depth++
		case *leaf[T]:
			if (v.x == x && v.y == y) || depth >= maxDepth {
				v.items = append(v.items, it)
				return
			}
			// Split until the existing leaf and the new point land in different quadrants.
			for {
				in := &internal[T]{}
				if parent == nil {
					t.root = in
				} else {
					parent.children[pi] = in
				}
				i, nx0, ny0, nx1, ny1 := quadrant(x, y, x0, y0, x1, y1)
				j, _, _, _, _ := quadrant(v.x, v.y, x0, y0, x1, y1)
				depth++
				if i != j || depth >= maxDepth {
					if i == j {
						v.items = append(v.items, it)
						in.children[i] = v
						return
					}
					in.children[i] = &leaf[T]{x: x, y: y, items: []T{it}}
					in.children[j] = v
					return
				}
				parent, pi = in, i
				x0, y0, x1, y1 = nx0, ny0, nx1, ny1
			}
		}
	}
}

// quadrant returns the child index of (x, y) within the given bounds along with
// that child's bounds.
func quadrant(x, y, x0, y0, x1, y1 float64) (int, float64, float64, float64, float64) {
	xm := (x0 + x1) / 2
	ym := (y0 + y1) / 2
	i := 0
	if x >= xm {
		i |= 1
		x0 = xm
	} else {
		x1 = xm
	}
	if y >= ym {
		i |= 2
		y0 = ym
	} else {
		y1 = ym
	}
	return i, x0, y0, x1, y1
}

func (t *Tree[T]) aggregate(n node[T]) (float64, float64) {
	switch v := n.(type) {
	case *leaf[T]:
		v.w, v.h = 0, 0
		for _, it := range v.items {
			w, h := t.size(it)
			v.w = math.Max(v.w, nonNegative(w))
			v.h = math.Max(v.h, nonNegative(h))
		}
		return v.w, v.h
	case *internal[T]:
		v.w, v.h = 0, 0
		for _, c := range v.children {
			if c == nil {
				continue
			}
			w, h := t.aggregate(c)
			v.w = math.Max(v.w, w)
			v.h = math.Max(v.h, h)
		}
		return v.w, v.h
	}
	return 0, 0
}

// Visit walks the tree top-down, calling fn on each quadrant. When fn returns
// true for an internal quadrant its children are skipped.
func (t *Tree[T]) Visit(fn func(q Quad[T]) bool) {
	if t.root == nil {
		return
	}
	visit(t.root, t.x0, t.y0, t.x1, t.y1, fn)
}

func visit[T any](n node[T], x0, y0, x1, y1 float64, fn func(Quad[T]) bool) {
	w, h := n.extent()
	q := Quad[T]{
		X0:        x0,
		Y0:        y0,
		X1:        x1,
		Y1:        y1,
		MaxWidth:  w,
		MaxHeight: h,
	}
	switch v := n.(type) {
	case *leaf[T]:
		q.Items = v.items
		fn(q)
	case *internal[T]:
		if fn(q) {
			return
		}
		xm := (x0 + x1) / 2
		ym := (y0 + y1) / 2
		for i, c := range v.children {
			if c == nil {
				continue
			}
			cx0, cy0, cx1, cy1 := x0, y0, xm, ym
			if i&1 != 0 {
				cx0, cx1 = xm, x1
			}
			if i&2 != 0 {
				cy0, cy1 = ym, y1
			}
			visit(c, cx0, cy0, cx1, cy1, fn)
		}
	}
}

// Data returns every item in visiting order.
func (t *Tree[T]) Data() []T {
	out := make([]T, 0, t.n)
	t.Visit(func(q Quad[T]) bool {
		out = append(out, q.Items...)
		return false
	})
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}
