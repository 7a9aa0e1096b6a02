package mdforce

import (
	"context"

	"github.com/eivindml/marker-dispersion/lib/geo"
	"github.com/eivindml/marker-dispersion/mdgraph"
)

type AnchorConfig struct {
	// Strength in [0, 1] is the fraction of the distance to the anchor covered per
	// step. nil means DefaultAnchorStrength.
	Strength *float64
}

// Anchor pulls every node toward its anchor point.
type Anchor struct {
	strength float64
	nodes    []*mdgraph.Node
}

func NewAnchor(cfg AnchorConfig) *Anchor {
	s := DefaultAnchorStrength
	if cfg.Strength != nil {
		s = geo.Clamp(*cfg.Strength, 0, 1)
	}
	return &Anchor{strength: s}
}

func (a *Anchor) Strength() float64 {
	return a.strength
}

func (a *Anchor) Initialize(nodes []*mdgraph.Node) {
	a.nodes = nodes
}

func (a *Anchor) Apply(ctx context.Context) {
	for _, n := range a.nodes {
		n.X += (n.AnchorX - n.X) * a.strength
		n.Y += (n.AnchorY - n.Y) * a.strength
	}
}
