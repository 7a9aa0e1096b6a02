// Package mdproject turns geographic label locations into the screen space
// snapshot the declutter engine works on.
package mdproject

import (
	"context"
	"fmt"
	"math"
	"sort"

	"cdr.dev/slog"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"github.com/eivindml/marker-dispersion/lib/geo"
	"github.com/eivindml/marker-dispersion/lib/log"
	"github.com/eivindml/marker-dispersion/mdgraph"
)

const (
	DefaultTileSize = 512

	// MaxLatitude is where Web Mercator is cut off to keep the world square.
	MaxLatitude = 85.05112877980659

	earthCircumference = 2 * math.Pi * 6378137

	latSlack = 1e-9
)

// Location is a labelled point on the map.
type Location struct {
	ID    int     `json:"id" yaml:"id"`
	Title string  `json:"title" yaml:"title"`
	Lng   float64 `json:"lng" yaml:"lng"`
	Lat   float64 `json:"lat" yaml:"lat"`
}

func (l Location) Point() orb.Point {
	return orb.Point{l.Lng, l.Lat}
}

// Viewport is the visible part of a Web Mercator map.
type Viewport struct {
	Center   orb.Point `json:"center" yaml:"center"`
	Zoom     float64   `json:"zoom" yaml:"zoom"`
	Width    float64   `json:"width" yaml:"width"`
	Height   float64   `json:"height" yaml:"height"`
	TileSize float64   `json:"tileSize,omitempty" yaml:"tileSize,omitempty"`
}

func (v Viewport) Validate() error {
	if !geo.IsFinite(v.Center.Lon()) || !geo.IsFinite(v.Center.Lat()) {
		return fmt.Errorf("invalid viewport center %v", v.Center)
	}
	if !geo.IsFinite(v.Zoom) || v.Zoom < 0 {
		return fmt.Errorf("invalid viewport zoom %v", v.Zoom)
	}
	if !(v.Width > 0) || !(v.Height > 0) || math.IsInf(v.Width, 0) || math.IsInf(v.Height, 0) {
		return fmt.Errorf("invalid viewport size %vx%v", v.Width, v.Height)
	}
	if v.TileSize < 0 || !geo.IsFinite(v.TileSize) {
		return fmt.Errorf("invalid tile size %v", v.TileSize)
	}
	return nil
}

func (v Viewport) tileSize() float64 {
	if v.TileSize == 0 {
		return DefaultTileSize
	}
	return v.TileSize
}

// WorldWidth is the width in pixels of one copy of the world at the viewport zoom.
func (v Viewport) WorldWidth() float64 {
	return v.tileSize() * math.Pow(2, v.Zoom)
}

func (v Viewport) pixelsPerMeter() float64 {
	return v.WorldWidth() / earthCircumference
}

func mercator(ll orb.Point) orb.Point {
	lat := geo.Clamp(ll.Lat(), -MaxLatitude, MaxLatitude)
	return project.WGS84.ToMercator(orb.Point{ll.Lon(), lat})
}

// Project maps ll to screen pixels, origin at the top-left corner of the viewport.
// The primary world copy is used; see Locate for wrapping.
func (v Viewport) Project(ll orb.Point) *geo.Point {
	p := mercator(ll)
	c := mercator(v.Center)
	s := v.pixelsPerMeter()
	return geo.NewPoint(
		v.Width/2+(p.X()-c.X())*s,
		v.Height/2-(p.Y()-c.Y())*s,
	)
}

// Bound is the geographic extent of the viewport, without world wrapping.
func (v Viewport) Bound() orb.Bound {
	c := mercator(v.Center)
	s := v.pixelsPerMeter()
	dx, dy := v.Width/2/s, v.Height/2/s
	return orb.Bound{
		Min: project.Mercator.ToWGS84(orb.Point{c.X() - dx, c.Y() - dy}),
		Max: project.Mercator.ToWGS84(orb.Point{c.X() + dx, c.Y() + dy}),
	}
}

func (v Viewport) visible(p *geo.Point) bool {
	return p.IsFinite() && p.X >= 0 && p.X <= v.Width && p.Y >= 0 && p.Y <= v.Height
}

// copies returns the world copy shifts to try, nearest first.
func (v Viewport) copies() []int {
	n := int(math.Ceil(v.Width/v.WorldWidth())) + 1
	ks := make([]int, 0, 2*n+1)
	for k := -n; k <= n; k++ {
		ks = append(ks, k)
	}
	sort.SliceStable(ks, func(i, j int) bool {
		return abs(ks[i]) < abs(ks[j])
	})
	return ks
}

// Locate returns where l is drawn on screen: the world copy nearest the viewport
// center that is visible. ok is false when no copy is visible.
func (v Viewport) Locate(ll orb.Point) (p *geo.Point, ok bool) {
	base := v.Project(ll)
	if !base.IsFinite() {
		return nil, false
	}
	w := v.WorldWidth()
	for _, k := range v.copies() {
		q := geo.NewPoint(base.X+float64(k)*w, base.Y)
		if v.visible(q) {
			return q, true
		}
	}
	return nil, false
}

// Labels projects locations into a snapshot of the labels visible in v. A
// location visible in several world copies is reported once, and only the first
// location with a given ID is kept.
func Labels(ctx context.Context, v Viewport, locs []Location) (mdgraph.Snapshot, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}

	// World copies only repeat horizontally, so latitude alone can rule a location out.
	bound := v.Bound()
	minLat, maxLat := bound.Min.Lat()-latSlack, bound.Max.Lat()+latSlack

	seen := make(map[int]struct{}, len(locs))
	out := make(mdgraph.Snapshot, 0, len(locs))
	var hidden int
	for _, l := range locs {
		if _, ok := seen[l.ID]; ok {
			continue
		}
		if lat := geo.Clamp(l.Lat, -MaxLatitude, MaxLatitude); lat < minLat || lat > maxLat {
			hidden++
			continue
		}
		p, ok := v.Locate(l.Point())
		if !ok {
			hidden++
			continue
		}
		seen[l.ID] = struct{}{}
		out = append(out, mdgraph.Label{
			ID:      l.ID,
			Title:   l.Title,
			AnchorX: p.X,
			AnchorY: p.Y,
		})
	}

	log.Debug(ctx, "projected labels",
		slog.F("visible", len(out)),
		slog.F("hidden", hidden),
		slog.F("zoom", v.Zoom),
		slog.F("bound", bound),
	)
	return out, nil
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
