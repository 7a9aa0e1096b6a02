// Package mdanimate tweens label offsets from where labels were drawn to where
// the last resolution put them.
//
// An Animator is driven by a Scheduler that hands it frame callbacks. Each call
// to Animate supersedes the animation in flight: frames scheduled for an older
// resolution observe a stale generation and do nothing.
package mdanimate

import (
	"context"
	"fmt"
	"time"

	"cdr.dev/slog"

	"github.com/eivindml/marker-dispersion/lib/geo"
	"github.com/eivindml/marker-dispersion/lib/log"
	"github.com/eivindml/marker-dispersion/mdgraph"
)

const DefaultDuration = 200 * time.Millisecond

// Kind is the style property an offset is written to.
type Kind int

const (
	KindText Kind = iota
	KindIcon
)

var Kinds = []Kind{KindText, KindIcon}

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindIcon:
		return "icon"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Units converts pixel offsets into the unit a Kind is expressed in.
// Text offsets are in ems of the text size, icon offsets in multiples of the icon size.
type Units interface {
	UnitScale(Kind) float64
}

// StaticUnits is a Units with fixed text and icon sizes.
type StaticUnits struct {
	Text float64 `json:"text" yaml:"text"`
	Icon float64 `json:"icon" yaml:"icon"`
}

// DefaultUnits matches a 14px label with an unscaled icon.
var DefaultUnits = StaticUnits{Text: 14, Icon: 1}

func (u StaticUnits) UnitScale(k Kind) float64 {
	if k == KindIcon {
		return u.Icon
	}
	return u.Text
}

// Sink receives the animated output.
type Sink interface {
	// SetOffsets replaces the offsets of kind, keyed by label ID.
	SetOffsets(kind Kind, offsets map[int]geo.Point)
	SetOpacity(opacity float64)
}

type Handle uint64

// Scheduler delivers frame callbacks.
type Scheduler interface {
	RequestFrame(fn func(now time.Time)) Handle
	Cancel(Handle)
}

// Tween linearly interpolates from from to to. elapsed is clamped to [0, duration].
// A non-positive duration jumps straight to to.
func Tween(from, to float64, elapsed, duration time.Duration) float64 {
	if duration <= 0 || elapsed >= duration {
		return to
	}
	if elapsed < 0 {
		elapsed = 0
	}
	return from + float64(elapsed)/float64(duration)*(to-from)
}

type State int

const (
	Idle State = iota
	Animating
)

func (s State) String() string {
	if s == Animating {
		return "animating"
	}
	return "idle"
}

type offsets map[Kind]map[int]geo.Point

type track struct {
	generation uint64
	from, to   offsets
	start      time.Time
	started    bool
}

// Animator runs at most one offset animation at a time.
// It must be used from the goroutine the Scheduler delivers frames on.
type Animator struct {
	Duration time.Duration

	scheduler Scheduler
	sink      Sink

	generation uint64
	handle     Handle
	scheduled  bool
	state      State
	track      *track
}

func NewAnimator(scheduler Scheduler, sink Sink) *Animator {
	return &Animator{
		Duration:  DefaultDuration,
		scheduler: scheduler,
		sink:      sink,
	}
}

func (a *Animator) State() State {
	return a.state
}

func (a *Animator) Generation() uint64 {
	return a.generation
}

// Animate starts a tween of every node from its previous offset to its current
// offset, superseding any animation in flight.
func (a *Animator) Animate(ctx context.Context, nodes []*mdgraph.Node, units Units) {
	ctx = log.Named(ctx, "animate")

	a.generation++
	if a.scheduled {
		a.scheduler.Cancel(a.handle)
		a.scheduled = false
	}

	t := &track{
		generation: a.generation,
		from:       make(offsets, len(Kinds)),
		to:         make(offsets, len(Kinds)),
	}
	for _, k := range Kinds {
		scale := unitScale(ctx, units, k)
		t.from[k] = make(map[int]geo.Point, len(nodes))
		t.to[k] = make(map[int]geo.Point, len(nodes))
		for _, n := range nodes {
			t.from[k][n.ID] = *n.PreviousOffset().InUnits(scale)
			t.to[k][n.ID] = *n.Offset().InUnits(scale)
		}
	}
	a.track = t
	a.state = Animating

	log.Debug(ctx, "animation requested",
		slog.F("generation", a.generation),
		slog.F("nodes", len(nodes)),
	)
	a.request(ctx, t.generation)
}

func (a *Animator) request(ctx context.Context, generation uint64) {
	a.handle = a.scheduler.RequestFrame(func(now time.Time) {
		a.frame(ctx, generation, now)
	})
	a.scheduled = true
}

func (a *Animator) frame(ctx context.Context, generation uint64, now time.Time) {
	if generation != a.generation || a.track == nil {
		log.Debug(ctx, "dropped stale frame", slog.F("generation", generation), slog.F("current", a.generation))
		return
	}
	a.scheduled = false

	t := a.track
	if !t.started {
		t.start = now
		t.started = true
		a.sink.SetOpacity(1)
	}

	elapsed := now.Sub(t.start)
	for _, k := range Kinds {
		out := make(map[int]geo.Point, len(t.to[k]))
		for id, to := range t.to[k] {
			from := t.from[k][id]
			out[id] = geo.Point{
				X: Tween(from.X, to.X, elapsed, a.Duration),
				Y: Tween(from.Y, to.Y, elapsed, a.Duration),
			}
		}
		a.sink.SetOffsets(k, out)
	}

	if elapsed < a.Duration {
		a.request(ctx, generation)
		return
	}
	a.state = Idle
	a.track = nil
	log.Debug(ctx, "animation done", slog.F("generation", generation))
}

func unitScale(ctx context.Context, units Units, k Kind) float64 {
	if units == nil {
		return 1
	}
	s := units.UnitScale(k)
	if s == 0 || !geo.IsFinite(s) {
		log.Warn(ctx, "invalid unit scale, using 1", slog.F("kind", k.String()), slog.F("scale", s))
		return 1
	}
	return s
}
