// Package mdforce moves label nodes apart. A Simulation advances a fixed number
// of discrete steps; each step applies its forces in registration order, by
// default an Anchor pull followed by Collide separation, so a label ends each
// step at the closest permissible point to its anchor.
package mdforce

import (
	"context"

	"github.com/eivindml/marker-dispersion/mdgraph"
)

const (
	DefaultIterations     = 120
	DefaultAnchorStrength = 1.
	DefaultCollideSweeps  = 128
	DefaultCollideEpsilon = 1e-6

	// CollideSweepsPerNodeSquared scales the default sweep cap of a step.
	CollideSweepsPerNodeSquared = 4
)

// Force mutates node positions once per simulation step.
type Force interface {
	Initialize(nodes []*mdgraph.Node)
	Apply(ctx context.Context)
}

type Config struct {
	// Iterations is the number of steps Run takes when passed a non-positive count.
	Iterations int
	Anchor     AnchorConfig
	Collide    CollideConfig
}

func (c Config) iterations() int {
	if c.Iterations <= 0 {
		return DefaultIterations
	}
	return c.Iterations
}
