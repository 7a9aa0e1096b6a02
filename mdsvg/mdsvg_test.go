package mdsvg_test

import (
	"context"
	"strings"
	"testing"

	tassert "github.com/stretchr/testify/assert"

	"oss.terrastruct.com/util-go/assert"
	"oss.terrastruct.com/util-go/go2"

	"github.com/eivindml/marker-dispersion/lib/log"
	"github.com/eivindml/marker-dispersion/mdgraph"
	"github.com/eivindml/marker-dispersion/mdsvg"
)

func TestRender(t *testing.T) {
	ctx := log.WithTB(context.Background(), t, nil)

	moss := mdgraph.NewNode(mdgraph.Label{ID: 1, Title: "Moss", AnchorX: 10, AnchorY: 10}, mdgraph.Size{Width: 40, Height: 14})
	rygge := mdgraph.NewNode(mdgraph.Label{ID: 2, Title: "Rygge", AnchorX: 20, AnchorY: 12}, mdgraph.Size{Width: 44, Height: 14})
	rygge.X = 50

	out, err := mdsvg.Render(ctx, []*mdgraph.Node{moss, rygge}, &mdsvg.RenderOpts{
		Pad:   go2.Pointer(int64(0)),
		Title: "labels",
	})
	assert.Success(t, err)

	s := string(out)
	tassert.True(t, strings.HasPrefix(s, "<?xml"))
	tassert.Contains(t, s, `viewBox="10 10 84 16"`)
	tassert.Contains(t, s, `id="label-1"`)
	tassert.Contains(t, s, `id="label-2"`)
	tassert.Contains(t, s, "Moss")
	tassert.Contains(t, s, "<title>labels</title>")

	// Only the displaced label gets a leader line.
	assert.Equal(t, 1, strings.Count(s, "<line"))
	assert.Equal(t, 2, strings.Count(s, "<circle"))
	tassert.True(t, strings.HasSuffix(strings.TrimSpace(s), "</svg>"))
}

func TestRenderEmpty(t *testing.T) {
	ctx := log.WithTB(context.Background(), t, nil)

	out, err := mdsvg.Render(ctx, nil, nil)
	assert.Success(t, err)
	tassert.Contains(t, string(out), `viewBox="-20 -20 40 40"`)
	assert.Equal(t, 0, strings.Count(string(out), "<g "))
}
