// Package mdlib wires measurement, simulation and animation into one engine
// that resolves label snapshots pushed by a map host.
package mdlib

import (
	"context"
	"time"

	"cdr.dev/slog"

	"oss.terrastruct.com/util-go/xdefer"

	"github.com/eivindml/marker-dispersion/lib/env"
	"github.com/eivindml/marker-dispersion/lib/geo"
	"github.com/eivindml/marker-dispersion/lib/log"
	"github.com/eivindml/marker-dispersion/lib/textmeasure"
	"github.com/eivindml/marker-dispersion/mdanimate"
	"github.com/eivindml/marker-dispersion/mdforce"
	"github.com/eivindml/marker-dispersion/mdgraph"
)

type Options struct {
	Force mdforce.Config

	// Measurer sizes labels. Defaults to the Go Medium 14px face.
	Measurer mdgraph.Measurer
	// Units converts pixel offsets to style units. Defaults to mdanimate.DefaultUnits.
	Units mdanimate.Units
	// Duration of the offset animation. Defaults to mdanimate.DefaultDuration.
	Duration time.Duration
	// CarryOffsets starts labels that were already on screen at their previous
	// offset from the new anchor rather than at their previous position. Hosts
	// whose anchors move between passes, like a panned map, want this.
	CarryOffsets bool
}

// Result is one resolved snapshot.
type Result struct {
	Nodes []*mdgraph.Node `json:"nodes"`
	// Carried counts nodes that started from the previous resolution.
	Carried int `json:"carried"`
	Steps   int `json:"steps"`
}

// Engine resolves snapshots one at a time, remembering the last result so that
// labels still on screen animate from where they were drawn.
// It is not safe for concurrent use.
type Engine struct {
	measurer mdgraph.Measurer
	units    mdanimate.Units
	sim      *mdforce.Simulation
	animator *mdanimate.Animator
	carry    func(prev, next []*mdgraph.Node) int

	previous []*mdgraph.Node
}

// NewEngine builds an engine. animator may be nil, in which case Update does not animate.
func NewEngine(opts *Options, animator *mdanimate.Animator) (*Engine, error) {
	if opts == nil {
		opts = &Options{}
	}

	cfg := opts.Force
	if cfg.Iterations <= 0 {
		if n, ok := env.Iterations(); ok {
			cfg.Iterations = n
		}
	}

	m := opts.Measurer
	if m == nil {
		ruler, err := textmeasure.NewRuler()
		if err != nil {
			return nil, err
		}
		m, err = NewLabelMeasurer(ruler, textmeasure.DefaultFont, 0)
		if err != nil {
			return nil, err
		}
	}

	units := opts.Units
	if units == nil {
		units = mdanimate.DefaultUnits
	}

	if animator != nil && opts.Duration > 0 {
		animator.Duration = opts.Duration
	}

	carry := mdgraph.Carry
	if opts.CarryOffsets {
		carry = mdgraph.CarryOffsets
	}

	return &Engine{
		measurer: m,
		units:    units,
		sim:      mdforce.New(cfg),
		animator: animator,
		carry:    carry,
	}, nil
}

// Resolve measures the snapshot, carries positions over from the previous
// resolution and runs the simulation to completion.
func (e *Engine) Resolve(ctx context.Context, snap mdgraph.Snapshot) (_ *Result, err error) {
	defer xdefer.Errorf(&err, "failed to resolve labels")
	ctx = log.Named(ctx, "engine")

	nodes, err := mdgraph.NewNodes(ctx, snap, e.measurer)
	if err != nil {
		return nil, err
	}
	carried := e.carry(e.previous, nodes)

	start := time.Now()
	e.sim.Initialize(nodes)
	nodes, err = e.sim.Run(ctx, 0)
	if err != nil {
		return nil, err
	}
	e.previous = mdgraph.Copy(nodes)

	log.Debug(ctx, "resolved",
		slog.F("labels", len(nodes)),
		slog.F("carried", carried),
		slog.F("elapsed", time.Since(start)),
	)
	return &Result{
		Nodes:   nodes,
		Carried: carried,
		Steps:   e.sim.Iteration(),
	}, nil
}

// Update resolves snap and animates labels to their new offsets, superseding any
// animation still running.
func (e *Engine) Update(ctx context.Context, snap mdgraph.Snapshot) (*Result, error) {
	r, err := e.Resolve(ctx, snap)
	if err != nil {
		return nil, err
	}
	if e.animator != nil {
		e.animator.Animate(ctx, r.Nodes, e.units)
	}
	return r, nil
}

// Reset forgets the previous resolution.
func (e *Engine) Reset() {
	e.previous = nil
}

func (e *Engine) Units() mdanimate.Units {
	return e.units
}

// SetUnits changes the unit scales used by later Updates. A nil u restores
// mdanimate.DefaultUnits.
func (e *Engine) SetUnits(u mdanimate.Units) {
	if u == nil {
		u = mdanimate.DefaultUnits
	}
	e.units = u
}

// Offsets returns the final offsets of nodes per kind, in style units.
func Offsets(nodes []*mdgraph.Node, units mdanimate.Units) map[mdanimate.Kind]map[int]geo.Point {
	out := make(map[mdanimate.Kind]map[int]geo.Point, len(mdanimate.Kinds))
	for _, k := range mdanimate.Kinds {
		scale := units.UnitScale(k)
		if scale == 0 || !geo.IsFinite(scale) {
			scale = 1
		}
		out[k] = make(map[int]geo.Point, len(nodes))
		for _, n := range nodes {
			out[k][n.ID] = *n.Offset().InUnits(scale)
		}
	}
	return out
}
