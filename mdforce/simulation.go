package mdforce

import (
	"context"
	"time"

	"cdr.dev/slog"

	"github.com/eivindml/marker-dispersion/lib/log"
	"github.com/eivindml/marker-dispersion/mdgraph"
)

// Simulation owns the node array of one resolution pass.
type Simulation struct {
	iterations int
	forces     []Force

	nodes     []*mdgraph.Node
	iteration int
}

// New returns a simulation that applies an Anchor pull then Collide separation.
func New(cfg Config) *Simulation {
	return NewSimulation(cfg, NewAnchor(cfg.Anchor), NewCollide(cfg.Collide))
}

// NewSimulation returns a simulation applying forces in the given order.
func NewSimulation(cfg Config, forces ...Force) *Simulation {
	return &Simulation{
		iterations: cfg.iterations(),
		forces:     forces,
	}
}

// Initialize hands nodes to the simulation and every force, and resets the
// iteration counter. Nothing from a previous pass is retained.
func (s *Simulation) Initialize(nodes []*mdgraph.Node) {
	s.nodes = nodes
	s.iteration = 0
	for _, f := range s.forces {
		f.Initialize(nodes)
	}
}

func (s *Simulation) Nodes() []*mdgraph.Node {
	return s.nodes
}

func (s *Simulation) Iteration() int {
	return s.iteration
}

// Step runs exactly one iteration.
func (s *Simulation) Step(ctx context.Context) {
	for _, f := range s.forces {
		f.Apply(ctx)
	}
	s.iteration++
}

// Run takes n steps, or the configured iteration count when n <= 0, and returns
// the resolved nodes. An empty simulation returns immediately.
func (s *Simulation) Run(ctx context.Context, n int) ([]*mdgraph.Node, error) {
	if len(s.nodes) == 0 {
		return []*mdgraph.Node{}, nil
	}
	if n <= 0 {
		n = s.iterations
	}

	start := time.Now()
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return s.nodes, err
		}
		s.Step(ctx)
	}

	fields := []slog.Field{
		slog.F("nodes", len(s.nodes)),
		slog.F("steps", n),
		slog.F("elapsed", time.Since(start)),
	}
	for _, f := range s.forces {
		if c, ok := f.(*Collide); ok {
			fields = append(fields, slog.F("unresolved_steps", c.Unresolved()))
		}
	}
	log.Debug(ctx, "simulation finished", fields...)
	return s.nodes, nil
}
