// Package mdsvg draws resolved labels as an SVG for debugging layouts: anchors,
// label rectangles and the leader lines between them.
package mdsvg

import (
	"bytes"
	"context"
	"fmt"
	"math"

	"cdr.dev/slog"
	svg "github.com/ajstarks/svgo"

	"oss.terrastruct.com/util-go/xdefer"

	"github.com/eivindml/marker-dispersion/lib/color"
	"github.com/eivindml/marker-dispersion/lib/log"
	"github.com/eivindml/marker-dispersion/mdgraph"
)

const DEFAULT_PADDING = 20

type RenderOpts struct {
	Pad   *int64
	Title string
	// FontFamily is the CSS font family of label titles.
	FontFamily string
	FontSize   int
}

func (opts *RenderOpts) pad() int {
	if opts.Pad == nil {
		return DEFAULT_PADDING
	}
	return int(*opts.Pad)
}

// Render draws nodes at their current positions.
func Render(ctx context.Context, nodes []*mdgraph.Node, opts *RenderOpts) (_ []byte, err error) {
	defer xdefer.Errorf(&err, "failed to render svg")
	if opts == nil {
		opts = &RenderOpts{}
	}
	fontFamily := opts.FontFamily
	if fontFamily == "" {
		fontFamily = "Go, sans-serif"
	}
	fontSize := opts.FontSize
	if fontSize <= 0 {
		fontSize = 14
	}

	tl, br := bounds(nodes)
	pad := opts.pad()
	minX, minY := tl[0]-pad, tl[1]-pad
	w, h := br[0]-tl[0]+2*pad, br[1]-tl[1]+2*pad

	var buf bytes.Buffer
	canvas := svg.New(&buf)
	canvas.Startview(w, h, minX, minY, w, h)
	if opts.Title != "" {
		canvas.Title(opts.Title)
	}
	canvas.Rect(minX, minY, w, h, "fill:"+color.White)

	for _, n := range nodes {
		fill := color.ForID(n.ID)
		stroke, err := color.Darken(fill)
		if err != nil {
			return nil, err
		}
		text, err := color.TextOn(fill)
		if err != nil {
			return nil, err
		}

		b := n.Box()
		c := b.Center()
		canvas.Gid(fmt.Sprintf("label-%d", n.ID))
		if off := n.Offset(); off.X != 0 || off.Y != 0 {
			canvas.Line(px(n.AnchorX), px(n.AnchorY), px(c.X), px(c.Y),
				fmt.Sprintf("stroke:%s;stroke-width:1;stroke-dasharray:2,2", color.Leader))
		}
		canvas.Rect(px(b.Left()), px(b.Top()), px(b.Width), px(b.Height),
			fmt.Sprintf("fill:%s;stroke:%s;stroke-width:1", fill, stroke))
		if n.Title != "" {
			canvas.Text(px(c.X), px(c.Y), n.Title,
				fmt.Sprintf("text-anchor:middle;dominant-baseline:central;font-family:%s;font-size:%dpx;fill:%s", fontFamily, fontSize, text))
		}
		canvas.Circle(px(n.AnchorX), px(n.AnchorY), 2, "fill:"+color.Anchor)
		canvas.Gend()
	}
	canvas.End()

	log.Debug(ctx, "rendered svg", slog.F("labels", len(nodes)), slog.F("bytes", buf.Len()))
	return buf.Bytes(), nil
}

// bounds returns the integer box around every label rectangle and anchor.
func bounds(nodes []*mdgraph.Node) (tl, br [2]int) {
	if len(nodes) == 0 {
		return tl, br
	}
	x0, y0 := math.Inf(1), math.Inf(1)
	x1, y1 := math.Inf(-1), math.Inf(-1)
	for _, n := range nodes {
		b := n.Box()
		x0 = math.Min(x0, math.Min(b.Left(), n.AnchorX))
		y0 = math.Min(y0, math.Min(b.Top(), n.AnchorY))
		x1 = math.Max(x1, math.Max(b.Right(), n.AnchorX))
		y1 = math.Max(y1, math.Max(b.Bottom(), n.AnchorY))
	}
	return [2]int{int(math.Floor(x0)), int(math.Floor(y0))}, [2]int{int(math.Ceil(x1)), int(math.Ceil(y1))}
}

func px(v float64) int {
	return int(math.Round(v))
}
