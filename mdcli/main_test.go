package mdcli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tassert "github.com/stretchr/testify/assert"

	"oss.terrastruct.com/util-go/assert"
	"oss.terrastruct.com/util-go/xmain"
	"oss.terrastruct.com/util-go/xos"

	"github.com/eivindml/marker-dispersion/lib/version"
	"github.com/eivindml/marker-dispersion/mdcli"
)

type label struct {
	ID         int     `json:"id"`
	AnchorX    float64 `json:"anchorX"`
	AnchorY    float64 `json:"anchorY"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	TextOffset struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	} `json:"textOffset"`
}

type frame struct {
	ElapsedMS int64                      `json:"elapsedMs"`
	Opacity   *float64                   `json:"opacity"`
	Text      map[string]json.RawMessage `json:"text"`
}

type output struct {
	Passes  int     `json:"passes"`
	Steps   int     `json:"steps"`
	Carried int     `json:"carried"`
	Labels  []label `json:"labels"`
	Frames  []frame `json:"frames"`
}

const row = `labels:
  - {id: 1, title: Moss, anchorX: 0, anchorY: 0}
  - {id: 2, title: Rygge, anchorX: 5, anchorY: 0}
  - {id: 3, title: Råde, anchorX: 10, anchorY: 0}
`

func TestCLI_E2E(t *testing.T) {
	t.Parallel()

	tca := []struct {
		name string
		run  func(t *testing.T, ctx context.Context, dir string, env *xos.Env)
	}{
		{
			name: "stdin",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				stdout := &bytes.Buffer{}
				tms := testMain(dir, env, "-")
				tms.Stdin = bytes.NewBufferString(row)
				tms.Stdout = stdout
				tms.Start(t, ctx)
				defer tms.Cleanup(t)
				err := tms.Wait(ctx)
				assert.Success(t, err)

				out := decode(t, stdout.Bytes())
				assert.Equal(t, 1, out.Passes)
				assert.Equal(t, 120, out.Steps)
				assert.Equal(t, 3, len(out.Labels))
				assert.Equal(t, 0, len(out.Frames))
				assertSeparated(t, out.Labels)
				for _, l := range out.Labels {
					tassert.Greater(t, l.Width, 0.)
					tassert.InDelta(t, 0, l.Y, 1e-9)
					tassert.InDelta(t, (l.X-l.AnchorX)/14, l.TextOffset.X, 1e-9)
				}
			},
		},
		{
			name: "json_file",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "in.yml", row)
				err := runTestMain(t, ctx, dir, env, "--iterations=10", "--text-size=28", "in.yml", "out.json")
				assert.Success(t, err)

				out := decode(t, readFile(t, dir, "out.json"))
				assert.Equal(t, 10, out.Steps)
				for _, l := range out.Labels {
					tassert.InDelta(t, (l.X-l.AnchorX)/28, l.TextOffset.X, 1e-9)
				}
			},
		},
		{
			name: "document_units",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "in.yml", "units: {text: 2, icon: 1}\n"+row)
				err := runTestMain(t, ctx, dir, env, "--text-size=28", "in.yml", "out.json")
				assert.Success(t, err)

				out := decode(t, readFile(t, dir, "out.json"))
				for _, l := range out.Labels {
					tassert.InDelta(t, (l.X-l.AnchorX)/2, l.TextOffset.X, 1e-9)
				}
			},
		},
		{
			name: "svg",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "in.yml", row)
				err := runTestMain(t, ctx, dir, env, "--pad=0", "in.yml", "out.svg")
				assert.Success(t, err)

				svg := string(readFile(t, dir, "out.svg"))
				tassert.Contains(t, svg, "<svg")
				tassert.Contains(t, svg, `id="label-2"`)
				assert.Equal(t, 3, strings.Count(svg, "<circle"))
			},
		},
		{
			name: "moves",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "in.yml", row+`moves:
  - labels:
      - {id: 1, title: Moss, anchorX: 100, anchorY: 50}
      - {id: 2, title: Rygge, anchorX: 105, anchorY: 50}
      - {id: 9, title: Jeløy, anchorX: 400, anchorY: 400}
`)
				err := runTestMain(t, ctx, dir, env, "in.yml", "out.json")
				assert.Success(t, err)

				out := decode(t, readFile(t, dir, "out.json"))
				assert.Equal(t, 2, out.Passes)
				assert.Equal(t, 2, out.Carried)
				assert.Equal(t, 3, len(out.Labels))
				assertSeparated(t, out.Labels)
			},
		},
		{
			name: "carry_offsets",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "in.yml", row+`moves:
  - labels:
      - {id: 1, title: Moss, anchorX: 100, anchorY: 0}
      - {id: 2, title: Rygge, anchorX: 105, anchorY: 0}
      - {id: 3, title: Råde, anchorX: 110, anchorY: 0}
`)
				err := runTestMain(t, ctx, dir, env, "--frames", "in.yml", "kept.json")
				assert.Success(t, err)
				err = runTestMain(t, ctx, dir, env, "--frames", "--carry-offsets", "in.yml", "carried.json")
				assert.Success(t, err)

				kept := decode(t, readFile(t, dir, "kept.json"))
				carried := decode(t, readFile(t, dir, "carried.json"))
				tassert.Equal(t, kept.Labels, carried.Labels)
				for _, id := range []string{"1", "2", "3"} {
					// The map moved 100px, so a label left at its old position starts 100px off.
					tassert.InDelta(t, frameOffset(t, carried.Frames[0], id).X-100./14, frameOffset(t, kept.Frames[0], id).X, 1e-9)
				}
			},
		},
		{
			name: "frames",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "in.yml", row)
				err := runTestMain(t, ctx, dir, env, "--frames", "--fps=10", "--duration=200", "in.yml", "out.json")
				assert.Success(t, err)

				out := decode(t, readFile(t, dir, "out.json"))
				assert.Equal(t, 3, len(out.Frames))
				for i, f := range out.Frames {
					assert.Equal(t, int64(i*100), f.ElapsedMS)
					assert.Equal(t, 3, len(f.Text))
				}
				assert.True(t, out.Frames[0].Opacity != nil)
				assert.Equal(t, 1., *out.Frames[0].Opacity)
				assert.True(t, out.Frames[1].Opacity == nil)
			},
		},
		{
			name: "frames_no_duration",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "in.yml", row)
				err := runTestMain(t, ctx, dir, env, "-f", "--duration=0", "in.yml", "out.json")
				assert.Success(t, err)

				out := decode(t, readFile(t, dir, "out.json"))
				assert.Equal(t, 1, len(out.Frames))
			},
		},
		{
			name: "locations",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "in.yml", `viewport: {center: [10.66, 59.43], zoom: 10, width: 800, height: 600}
locations:
  - {id: 1, title: Moss, lng: 10.66, lat: 59.43}
  - {id: 2, title: Jeløy, lng: 10.661, lat: 59.431}
  - {id: 3, title: Tokyo, lng: 139.69, lat: 35.68}
`)
				err := runTestMain(t, ctx, dir, env, "in.yml", "out.json")
				assert.Success(t, err)

				out := decode(t, readFile(t, dir, "out.json"))
				assert.Equal(t, 2, len(out.Labels))
				tassert.InDelta(t, 400, out.Labels[0].AnchorX, 1e-6)
				tassert.InDelta(t, 300, out.Labels[0].AnchorY, 1e-6)
				assertSeparated(t, out.Labels)
			},
		},
		{
			name: "geojson",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "data/places.geojson", `{"type": "FeatureCollection", "features": [
  {"type": "Feature", "id": 1, "geometry": {"type": "Point", "coordinates": [10.66, 59.43]}, "properties": {"name": "Moss"}},
  {"type": "Feature", "id": 2, "geometry": {"type": "Point", "coordinates": [10.661, 59.431]}, "properties": {"name": "Jeløy"}}
]}`)
				writeFile(t, dir, "in.yml", `viewport: {center: [10.66, 59.43], zoom: 10, width: 800, height: 600}
geojson: data/places.geojson
`)
				err := runTestMain(t, ctx, dir, env, "in.yml", "out.json")
				assert.Success(t, err)

				out := decode(t, readFile(t, dir, "out.json"))
				assert.Equal(t, 2, len(out.Labels))
				assertSeparated(t, out.Labels)

				err = runTestMain(t, ctx, dir, env, "validate", "in.yml")
				assert.Success(t, err)
			},
		},
		{
			name: "geojson_missing",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "in.yml", `viewport: {center: [0, 0], zoom: 1, width: 800, height: 600}
moves:
  - geojson: nowhere.geojson
`)
				err := runTestMain(t, ctx, dir, env, "in.yml")
				tassert.ErrorContains(t, err, "pass 1: ")
				tassert.ErrorContains(t, err, "nowhere.geojson")
			},
		},
		{
			name: "locations_without_viewport",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "in.yml", "locations: [{id: 1, lng: 1, lat: 1}]\n")
				err := runTestMain(t, ctx, dir, env, "in.yml")
				tassert.ErrorContains(t, err, "pass 0: locations require a viewport")
			},
		},
		{
			name: "duplicate_ids",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "in.yml", row+"  - {id: 2, title: Rygge, anchorX: 6, anchorY: 0}\n")
				err := runTestMain(t, ctx, dir, env, "in.yml")
				tassert.ErrorContains(t, err, "invalid label 2: duplicate id")
			},
		},
		{
			name: "dedupe",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "in.yml", row+"  - {id: 2, title: Rygge, anchorX: 6, anchorY: 0}\n")
				err := runTestMain(t, ctx, dir, env, "--dedupe", "in.yml", "out.json")
				assert.Success(t, err)

				out := decode(t, readFile(t, dir, "out.json"))
				assert.Equal(t, 3, len(out.Labels))
				assert.Equal(t, 5., out.Labels[1].AnchorX)
			},
		},
		{
			name: "unknown_field",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "in.yml", "lables: []\n")
				err := runTestMain(t, ctx, dir, env, "in.yml")
				tassert.ErrorContains(t, err, "failed to parse input")
			},
		},
		{
			name: "empty",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "in.yml", "")
				err := runTestMain(t, ctx, dir, env, "in.yml", "out.json")
				assert.Success(t, err)

				out := decode(t, readFile(t, dir, "out.json"))
				assert.Equal(t, 0, len(out.Labels))
				assert.Equal(t, 0, out.Steps)
			},
		},
		{
			name: "bad_extension",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "in.yml", row)
				err := runTestMain(t, ctx, dir, env, "in.yml", "out.png")
				tassert.ErrorContains(t, err, `unsupported output extension ".png"`)
			},
		},
		{
			name: "open_json",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "in.yml", row)
				err := runTestMain(t, ctx, dir, env, "--open", "in.yml", "out.json")
				tassert.ErrorContains(t, err, "--open requires an .svg output file")
			},
		},
		{
			name: "open_no_browser",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "in.yml", row)
				err := runTestMain(t, ctx, dir, env, "--open", "--browser=0", "in.yml", "out.svg")
				assert.Success(t, err)
				tassert.Contains(t, string(readFile(t, dir, "out.svg")), "<svg")
			},
		},
		{
			name: "watch_stdin",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				err := runTestMain(t, ctx, dir, env, "--watch", "-")
				tassert.ErrorContains(t, err, "-w[atch] cannot be combined with reading input from stdin")
			},
		},
		{
			name: "watch",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "in.yml", row)

				wctx, cancel := context.WithCancel(ctx)
				defer cancel()
				tms := testMain(dir, env, "--watch", "in.yml", "out.json")
				tms.Start(t, wctx)
				defer tms.Cleanup(t)

				first := waitOutput(t, ctx, dir, "out.json", func(o *output) bool {
					return len(o.Labels) == 3
				})
				assert.Equal(t, 0, first.Carried)

				// Moving the map between saves carries the labels still on screen.
				writeFile(t, dir, "in.yml", `labels:
  - {id: 1, title: Moss, anchorX: 40, anchorY: 20}
  - {id: 2, title: Rygge, anchorX: 45, anchorY: 20}
`)
				second := waitOutput(t, ctx, dir, "out.json", func(o *output) bool {
					return len(o.Labels) == 2
				})
				assert.Equal(t, 2, second.Carried)
				assertSeparated(t, second.Labels)

				cancel()
				_ = tms.Wait(ctx)
			},
		},
		{
			name: "bad_iterations",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "in.yml", row)
				err := runTestMain(t, ctx, dir, env, "--iterations=0", "in.yml")
				tassert.ErrorContains(t, err, "-i[terations] must be positive, got 0")
			},
		},
		{
			name: "bad_font_style",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "in.yml", row)
				err := runTestMain(t, ctx, dir, env, "--font-style=wavy", "in.yml")
				tassert.ErrorContains(t, err, `unknown --font-style "wavy"`)
			},
		},
		{
			name: "iterations_env",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "in.yml", row)
				env.Setenv("MD_ITERATIONS", "4")
				err := runTestMain(t, ctx, dir, env, "in.yml", "out.json")
				assert.Success(t, err)

				out := decode(t, readFile(t, dir, "out.json"))
				assert.Equal(t, 4, out.Steps)
			},
		},
		{
			name: "validate",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "in.yml", row)
				err := runTestMain(t, ctx, dir, env, "validate", "in.yml")
				assert.Success(t, err)
			},
		},
		{
			name: "validate_errors",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				writeFile(t, dir, "in.yml", `labels: [{id: 1}, {id: 1}]
moves:
  - labels: [{id: 1}]
  - labels: [{id: 4}, {id: 4}]
`)
				err := runTestMain(t, ctx, dir, env, "validate", "in.yml")
				tassert.ErrorContains(t, err, "pass 0: invalid label 1: duplicate id")
				tassert.ErrorContains(t, err, "pass 2: invalid label 4: duplicate id")
				tassert.NotContains(t, err.Error(), "pass 1:")
			},
		},
		{
			name: "validate_no_input",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				err := runTestMain(t, ctx, dir, env, "validate")
				tassert.ErrorContains(t, err, "validate must be passed an input file")
			},
		},
		{
			name: "version",
			run: func(t *testing.T, ctx context.Context, dir string, env *xos.Env) {
				stdout := &bytes.Buffer{}
				tms := testMain(dir, env, "version")
				tms.Stdout = stdout
				tms.Start(t, ctx)
				defer tms.Cleanup(t)
				err := tms.Wait(ctx)
				assert.Success(t, err)
				assert.Equal(t, version.Version+"\n", stdout.String())
			},
		},
	}

	ctx := context.Background()
	for _, tc := range tca {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithTimeout(ctx, time.Minute)
			defer cancel()

			dir, cleanup := assert.TempDir(t)
			defer cleanup()

			env := xos.NewEnv(nil)

			tc.run(t, ctx, dir, env)
		})
	}
}

func testMain(dir string, env *xos.Env, args ...string) *xmain.TestState {
	return &xmain.TestState{
		Run:  mdcli.Run,
		Env:  env,
		Args: append([]string{"e2etests-cli/md"}, args...),
		PWD:  dir,
	}
}

func runTestMain(tb testing.TB, ctx context.Context, dir string, env *xos.Env, args ...string) error {
	tms := testMain(dir, env, args...)
	tms.Start(tb, ctx)
	defer tms.Cleanup(tb)
	return tms.Wait(ctx)
}

func writeFile(tb testing.TB, dir, fp, data string) {
	tb.Helper()
	err := os.MkdirAll(filepath.Dir(filepath.Join(dir, fp)), 0755)
	assert.Success(tb, err)
	assert.WriteFile(tb, filepath.Join(dir, fp), []byte(data), 0644)
}

func readFile(tb testing.TB, dir, fp string) []byte {
	tb.Helper()
	return assert.ReadFile(tb, filepath.Join(dir, fp))
}

func decode(tb testing.TB, b []byte) *output {
	tb.Helper()
	out := &output{}
	err := json.Unmarshal(b, out)
	assert.Success(tb, err)
	return out
}

func frameOffset(tb testing.TB, f frame, id string) (p struct{ X, Y float64 }) {
	tb.Helper()
	err := json.Unmarshal(f.Text[id], &p)
	assert.Success(tb, err)
	return p
}

// waitOutput polls fp until it decodes to an output accepted by done.
func waitOutput(tb testing.TB, ctx context.Context, dir, fp string, done func(*output) bool) *output {
	tb.Helper()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		b, err := os.ReadFile(filepath.Join(dir, fp))
		if err == nil {
			out := &output{}
			if json.Unmarshal(b, out) == nil && done(out) {
				return out
			}
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			tb.Fatalf("timed out waiting for %s: %v", fp, ctx.Err())
		}
	}
}

// assertSeparated checks that no two label rectangles overlap by more than the
// collision tolerance.
func assertSeparated(tb testing.TB, labels []label) {
	tb.Helper()
	for i, a := range labels {
		for _, b := range labels[i+1:] {
			dx := minf(a.X+a.Width, b.X+b.Width) - maxf(a.X, b.X)
			dy := minf(a.Y+a.Height, b.Y+b.Height) - maxf(a.Y, b.Y)
			if dx > 1e-6 && dy > 1e-6 {
				tb.Fatalf("labels %d and %d overlap by %v x %v", a.ID, b.ID, dx, dy)
			}
		}
	}
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
