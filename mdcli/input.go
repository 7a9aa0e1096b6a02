package mdcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"oss.terrastruct.com/util-go/xmain"

	"github.com/eivindml/marker-dispersion/mdanimate"
	"github.com/eivindml/marker-dispersion/mdgraph"
	"github.com/eivindml/marker-dispersion/mdproject"
)

// Pass is one snapshot the map host would push, either already in screen
// space (Labels) or as geographic Locations projected through Viewport.
// GeoJSON names a FeatureCollection file, relative to the input, whose point
// features are appended to Locations.
type Pass struct {
	Labels    []mdgraph.Label      `yaml:"labels"`
	Locations []mdproject.Location `yaml:"locations"`
	GeoJSON   string               `yaml:"geojson"`
	Viewport  *mdproject.Viewport  `yaml:"viewport"`
}

// Document is the CLI input. The top level fields form the first pass; Moves
// are resolved after it in order, each carrying positions over from the last.
type Document struct {
	Pass  `yaml:",inline"`
	Units *mdanimate.StaticUnits `yaml:"units"`
	Moves []Pass                 `yaml:"moves"`
}

func (d *Document) Passes() []Pass {
	return append([]Pass{d.Pass}, d.Moves...)
}

// parseDocument decodes YAML (or JSON) input. Unknown fields are rejected.
func parseDocument(b []byte) (*Document, error) {
	doc := &Document{}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	err := dec.Decode(doc)
	if errors.Is(err, io.EOF) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse input: %w", err)
	}
	return doc, nil
}

// loadDocument reads and parses inputPath and the GeoJSON files its passes
// reference. It returns every path read, the input first.
func loadDocument(ms *xmain.State, inputPath string) (*Document, []string, error) {
	input, err := ms.ReadPath(inputPath)
	if err != nil {
		return nil, nil, err
	}
	doc, err := parseDocument(input)
	if err != nil {
		return nil, nil, err
	}

	paths := []string{inputPath}
	if err := doc.loadSources(ms, inputPath, &paths); err != nil {
		return nil, paths, err
	}
	return doc, paths, nil
}

func (d *Document) loadSources(ms *xmain.State, inputPath string, paths *[]string) error {
	load := func(p *Pass) error {
		if p.GeoJSON == "" {
			return nil
		}
		path := p.GeoJSON
		if !filepath.IsAbs(path) {
			if inputPath == "-" {
				path = ms.AbsPath(path)
			} else {
				path = filepath.Join(filepath.Dir(inputPath), path)
			}
		}
		*paths = append(*paths, path)
		b, err := ms.ReadPath(path)
		if err != nil {
			return err
		}
		locs, err := mdproject.ParseGeoJSON(b)
		if err != nil {
			return fmt.Errorf("%s: %w", ms.HumanPath(path), err)
		}
		p.Locations = append(p.Locations, locs...)
		p.GeoJSON = ""
		return nil
	}

	if err := load(&d.Pass); err != nil {
		return fmt.Errorf("pass 0: %w", err)
	}
	for i := range d.Moves {
		if err := load(&d.Moves[i]); err != nil {
			return fmt.Errorf("pass %d: %w", i+1, err)
		}
	}
	return nil
}

// Snapshot builds the labels of p visible on screen. Projected locations follow
// the explicit labels.
func (p Pass) Snapshot(ctx context.Context, dedupe bool) (mdgraph.Snapshot, error) {
	snap := append(mdgraph.Snapshot{}, p.Labels...)
	if len(p.Locations) > 0 {
		if p.Viewport == nil {
			return nil, errors.New("locations require a viewport")
		}
		projected, err := mdproject.Labels(ctx, *p.Viewport, p.Locations)
		if err != nil {
			return nil, err
		}
		snap = append(snap, projected...)
	}
	if dedupe {
		snap = mdgraph.Dedupe(snap)
	}
	return snap, nil
}

// validate checks every pass without resolving any of them.
func (d *Document) validate(ctx context.Context, dedupe bool) error {
	var errs error
	for i, p := range d.Passes() {
		snap, err := p.Snapshot(ctx, dedupe)
		if err == nil {
			err = mdgraph.Validate(snap)
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("pass %d: %w", i, err))
		}
	}
	return errs
}
