package mdlib

import (
	"fmt"

	"github.com/eivindml/marker-dispersion/lib/textmeasure"
	"github.com/eivindml/marker-dispersion/mdgraph"
)

// LabelMeasurer sizes label rectangles from their titles.
type LabelMeasurer struct {
	ruler   *textmeasure.Ruler
	font    textmeasure.Font
	padding float64
}

// NewLabelMeasurer returns a measurer drawing titles in f, with padding added on
// every side of the text.
func NewLabelMeasurer(ruler *textmeasure.Ruler, f textmeasure.Font, padding float64) (*LabelMeasurer, error) {
	if !ruler.HasFont(f) {
		return nil, fmt.Errorf("font %s not loaded", f)
	}
	if f.Size <= 0 {
		return nil, fmt.Errorf("invalid font size %d", f.Size)
	}
	if padding < 0 {
		padding = 0
	}
	return &LabelMeasurer{
		ruler:   ruler,
		font:    f,
		padding: padding,
	}, nil
}

func (m *LabelMeasurer) Measure(title string) mdgraph.Size {
	if title == "" {
		return mdgraph.Size{}
	}
	w, h, err := m.ruler.MeasurePrecise(m.font, title)
	if err != nil {
		// Unreachable once the font was checked in NewLabelMeasurer.
		return mdgraph.Size{}
	}
	return mdgraph.Size{
		Width:  w + 2*m.padding,
		Height: h + 2*m.padding,
	}
}

var _ mdgraph.Measurer = (*LabelMeasurer)(nil)
