package mdcli

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"oss.terrastruct.com/util-go/go2"
	"oss.terrastruct.com/util-go/xdefer"
	"oss.terrastruct.com/util-go/xmain"

	"github.com/eivindml/marker-dispersion/lib/geo"
	"github.com/eivindml/marker-dispersion/lib/textmeasure"
	"github.com/eivindml/marker-dispersion/mdanimate"
	"github.com/eivindml/marker-dispersion/mdforce"
	"github.com/eivindml/marker-dispersion/mdlib"
	"github.com/eivindml/marker-dispersion/mdsvg"
)

type outputLabel struct {
	ID         int       `json:"id"`
	Title      string    `json:"title"`
	AnchorX    float64   `json:"anchorX"`
	AnchorY    float64   `json:"anchorY"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	Width      float64   `json:"width"`
	Height     float64   `json:"height"`
	TextOffset geo.Point `json:"textOffset"`
	IconOffset geo.Point `json:"iconOffset"`
}

type outputFrame struct {
	ElapsedMS int64             `json:"elapsedMs"`
	Opacity   *float64          `json:"opacity,omitempty"`
	Text      map[int]geo.Point `json:"text"`
	Icon      map[int]geo.Point `json:"icon"`
}

type output struct {
	Passes  int            `json:"passes"`
	Steps   int            `json:"steps"`
	Carried int            `json:"carried"`
	Labels  []outputLabel  `json:"labels"`
	Frames  []*outputFrame `json:"frames,omitempty"`
}

// recorder is the animation sink of the CLI. It keeps every frame, timed from
// the first one by the manual clock driving the animation.
type recorder struct {
	clock  *mdanimate.ManualScheduler
	start  time.Time
	frames []*outputFrame
}

func (r *recorder) frame() *outputFrame {
	if len(r.frames) == 0 {
		r.start = r.clock.Now()
	}
	ms := r.clock.Now().Sub(r.start).Milliseconds()
	if n := len(r.frames); n > 0 && r.frames[n-1].ElapsedMS == ms {
		return r.frames[n-1]
	}
	f := &outputFrame{ElapsedMS: ms}
	r.frames = append(r.frames, f)
	return f
}

func (r *recorder) reset() {
	r.frames = nil
}

func (r *recorder) SetOffsets(kind mdanimate.Kind, offsets map[int]geo.Point) {
	f := r.frame()
	switch kind {
	case mdanimate.KindText:
		f.Text = offsets
	case mdanimate.KindIcon:
		f.Icon = offsets
	}
}

func (r *recorder) SetOpacity(opacity float64) {
	r.frame().Opacity = go2.Pointer(opacity)
}

// resolver resolves input documents with one engine, so that a document read
// again in watch mode carries positions over from the previous run.
type resolver struct {
	ms   *xmain.State
	opts runOpts
	font textmeasure.Font

	clock    *mdanimate.ManualScheduler
	rec      *recorder
	animator *mdanimate.Animator
	engine   *mdlib.Engine
}

func newResolver(ms *xmain.State, opts runOpts) (*resolver, error) {
	ruler, err := textmeasure.NewRuler()
	if err != nil {
		return nil, err
	}
	font := textmeasure.Go.Font(int(opts.fontSize), textmeasure.FontStyle(opts.fontStyle))
	measurer, err := mdlib.NewLabelMeasurer(ruler, font, opts.labelPad)
	if err != nil {
		return nil, xmain.UsageErrorf("%v", err)
	}

	clock := mdanimate.NewManualScheduler(time.Unix(0, 0))
	rec := &recorder{clock: clock}
	animator := mdanimate.NewAnimator(clock, rec)

	engine, err := mdlib.NewEngine(&mdlib.Options{
		Force: mdforce.Config{
			Iterations: int(opts.iterations),
			Anchor:     mdforce.AnchorConfig{Strength: go2.Pointer(opts.strength)},
			Collide: mdforce.CollideConfig{
				Sweeps:  int(opts.sweeps),
				Padding: opts.padding,
			},
		},
		Measurer:     measurer,
		Units:        opts.units,
		Duration:     opts.duration,
		CarryOffsets: opts.carry,
	}, animator)
	if err != nil {
		return nil, err
	}
	// NewEngine keeps the default for a zero duration, which on the CLI means no tween.
	if opts.duration == 0 {
		animator.Duration = 0
	}

	return &resolver{
		ms:       ms,
		opts:     opts,
		font:     font,
		clock:    clock,
		rec:      rec,
		animator: animator,
		engine:   engine,
	}, nil
}

func resolveCmd(ctx context.Context, ms *xmain.State, opts runOpts, inputPath, outputPath string) error {
	r, err := newResolver(ms, opts)
	if err != nil {
		return err
	}
	_, err = r.resolve(ctx, inputPath, outputPath)
	return err
}

// resolve runs every pass of inputPath and writes the result to outputPath. It
// returns the paths read, which watch mode keeps an eye on, even on error.
func (r *resolver) resolve(ctx context.Context, inputPath, outputPath string) (paths []string, err error) {
	defer xdefer.Errorf(&err, "failed to resolve %s", r.ms.HumanPath(inputPath))

	doc, paths, err := loadDocument(r.ms, inputPath)
	if err != nil {
		return paths, err
	}

	units := r.opts.units
	if doc.Units != nil {
		units = *doc.Units
	}
	r.engine.SetUnits(units)
	r.rec.reset()

	var result *mdlib.Result
	passes := doc.Passes()
	for i, p := range passes {
		snap, err := p.Snapshot(ctx, r.opts.dedupe)
		if err != nil {
			return paths, fmt.Errorf("pass %d: %w", i, err)
		}
		result, err = r.engine.Update(ctx, snap)
		if err != nil {
			return paths, fmt.Errorf("pass %d: %w", i, err)
		}
		r.ms.Log.Debug.Printf("pass %d: %d labels, %d carried over", i, len(result.Nodes), result.Carried)
	}

	// Only the last pass animates: each Update superseded the one before it.
	frameInterval := time.Second / time.Duration(r.opts.fps)
	r.clock.Drain(frameInterval, int(r.opts.duration/frameInterval)+3)

	var out []byte
	if filepath.Ext(outputPath) == ".svg" {
		out, err = mdsvg.Render(ctx, result.Nodes, &mdsvg.RenderOpts{
			Pad:        go2.Pointer(r.opts.svgPad),
			Title:      filepath.Base(inputPath),
			FontFamily: string(r.font.Family),
			FontSize:   r.font.Size,
		})
	} else {
		o := newOutput(result, len(passes), units)
		if r.opts.frames {
			o.Frames = r.rec.frames
		}
		out, err = json.MarshalIndent(o, "", "  ")
	}
	if err != nil {
		return paths, err
	}
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	return paths, r.ms.WritePath(outputPath, out)
}

func newOutput(r *mdlib.Result, passes int, units mdanimate.Units) *output {
	offsets := mdlib.Offsets(r.Nodes, units)
	labels := make([]outputLabel, 0, len(r.Nodes))
	for _, n := range r.Nodes {
		labels = append(labels, outputLabel{
			ID:         n.ID,
			Title:      n.Title,
			AnchorX:    n.AnchorX,
			AnchorY:    n.AnchorY,
			X:          n.X,
			Y:          n.Y,
			Width:      n.Size.Width,
			Height:     n.Size.Height,
			TextOffset: offsets[mdanimate.KindText][n.ID],
			IconOffset: offsets[mdanimate.KindIcon][n.ID],
		})
	}
	return &output{
		Passes:  passes,
		Steps:   r.Steps,
		Carried: r.Carried,
		Labels:  labels,
	}
}

var _ mdanimate.Sink = (*recorder)(nil)
