// Package textmeasure sizes label titles with the embedded Go fonts.
package textmeasure

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/golang/freetype/truetype"
	"github.com/rivo/uniseg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"

	"github.com/eivindml/marker-dispersion/lib/geo"
)

const TAB_SIZE = 4

type FontFamily string

const (
	Go     FontFamily = "Go"
	GoMono FontFamily = "Go Mono"
)

type FontStyle string

const (
	FONT_STYLE_REGULAR FontStyle = "regular"
	FONT_STYLE_MEDIUM  FontStyle = "medium"
	FONT_STYLE_BOLD    FontStyle = "bold"
	FONT_STYLE_ITALIC  FontStyle = "italic"
)

const DEFAULT_FONT_SIZE = 14

type Font struct {
	Family FontFamily
	Style  FontStyle
	Size   int
}

func (f FontFamily) Font(size int, style FontStyle) Font {
	return Font{
		Family: f,
		Style:  style,
		Size:   size,
	}
}

// DefaultFont is the semibold label face maps draw place names with.
var DefaultFont = Go.Font(DEFAULT_FONT_SIZE, FONT_STYLE_MEDIUM)

func (f Font) sizeless() Font {
	f.Size = 0
	return f
}

// Valid reports whether f names an embedded face at a positive size.
func (f Font) Valid() bool {
	_, ok := fontFaces[f.sizeless()]
	return ok && f.Size > 0
}

func (f Font) String() string {
	return fmt.Sprintf("%s %s %dpx", f.Family, f.Style, f.Size)
}

var fontFaces = map[Font][]byte{
	{Family: Go, Style: FONT_STYLE_REGULAR}:     goregular.TTF,
	{Family: Go, Style: FONT_STYLE_MEDIUM}:      gomedium.TTF,
	{Family: Go, Style: FONT_STYLE_BOLD}:        gobold.TTF,
	{Family: Go, Style: FONT_STYLE_ITALIC}:      goitalic.TTF,
	{Family: GoMono, Style: FONT_STYLE_REGULAR}: gomono.TTF,
}

// Ruler measures strings in the embedded fonts. Faces are created lazily per
// font size and cached, so a Ruler must not be shared between goroutines.
type Ruler struct {
	// LineHeightFactor scales the distance between two lines of text.
	LineHeightFactor float64

	ttfs  map[Font]*truetype.Font
	faces map[Font]font.Face
}

func NewRuler() (*Ruler, error) {
	r := &Ruler{
		LineHeightFactor: 1.,
		ttfs:             make(map[Font]*truetype.Font, len(fontFaces)),
		faces:            make(map[Font]font.Face),
	}
	for f, b := range fontFaces {
		ttf, err := truetype.Parse(b)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s %s: %w", f.Family, f.Style, err)
		}
		r.ttfs[f] = ttf
	}
	return r, nil
}

func (r *Ruler) HasFont(f Font) bool {
	_, ok := r.ttfs[f.sizeless()]
	return ok
}

func (r *Ruler) face(f Font) (font.Face, error) {
	if face, ok := r.faces[f]; ok {
		return face, nil
	}
	ttf, ok := r.ttfs[f.sizeless()]
	if !ok {
		return nil, fmt.Errorf("font %s not loaded", f)
	}
	if f.Size <= 0 {
		return nil, fmt.Errorf("invalid font size %d", f.Size)
	}
	face := truetype.NewFace(ttf, &truetype.Options{
		Size: float64(f.Size),
	})
	r.faces[f] = face
	return face, nil
}

// Measure returns the pixel size of s rounded up to whole pixels.
func (r *Ruler) Measure(f Font, s string) (width, height int, err error) {
	w, h, err := r.MeasurePrecise(f, s)
	if err != nil {
		return 0, 0, err
	}
	return int(math.Ceil(w)), int(math.Ceil(h)), nil
}

// MeasurePrecise returns the size of s. Lines are split on '\n'; the width is the
// widest line and the height is one line height per line.
func (r *Ruler) MeasurePrecise(f Font, s string) (width, height float64, err error) {
	if s == "" {
		return 0, 0, nil
	}
	face, err := r.face(f)
	if err != nil {
		return 0, 0, err
	}
	w, h := r.measure(face, s)
	w, err = r.scaleUnicode(w, face, f, s)
	if err != nil {
		return 0, 0, err
	}
	return w, h, nil
}

func (r *Ruler) measure(face font.Face, s string) (width, height float64) {
	lineHeight := r.LineHeightFactor * toFloat(face.Metrics().Height)
	b := newRect()
	dot := geo.NewPoint(0, 0)
	prev := rune(-1)
	for _, c := range s {
		switch c {
		case '\n':
			dot.X = 0
			dot.Y += lineHeight
			prev = -1
			continue
		case '\r':
			dot.X = 0
			continue
		case '\t':
			tab := TAB_SIZE * r.advance(face, ' ')
			dot.X = (math.Floor(dot.X/tab) + 1) * tab
			continue
		}
		if prev >= 0 {
			dot.X += toFloat(face.Kern(prev, c))
		}
		dot.X += r.advance(face, c)
		prev = c
		b = b.union(&rect{tl: geo.NewPoint(0, dot.Y), br: geo.NewPoint(dot.X, dot.Y+lineHeight)})
	}
	b = b.union(&rect{tl: geo.NewPoint(0, 0), br: geo.NewPoint(0, dot.Y+lineHeight)})
	return b.w(), b.h()
}

func (r *Ruler) advance(face font.Face, c rune) float64 {
	adv, ok := face.GlyphAdvance(c)
	if !ok {
		adv, _ = face.GlyphAdvance(utf8.RuneError)
	}
	return toFloat(adv)
}

// scaleUnicode corrects lines containing grapheme clusters that are not one cell
// wide, such as CJK or emoji, which the Go fonts have no glyphs for. Each such
// cluster is remeasured as its cell width in monospace spaces.
func (r *Ruler) scaleUnicode(w float64, face font.Face, f Font, s string) (float64, error) {
	if !needsScaling(s) {
		return w, nil
	}
	mono, err := r.face(GoMono.Font(f.Size, FONT_STYLE_REGULAR))
	if err != nil {
		return 0, err
	}
	space := r.advance(mono, ' ')

	w = 0
	for _, line := range strings.Split(s, "\n") {
		lineW, _ := r.measure(face, line)
		gr := uniseg.NewGraphemes(line)
		for gr.Next() {
			if gr.Width() == 1 || isControl(gr.Str()) {
				continue
			}
			for _, c := range gr.Runes() {
				lineW -= r.advance(face, c)
			}
			lineW += space * float64(gr.Width())
		}
		w = math.Max(w, lineW)
	}
	return w, nil
}

func needsScaling(s string) bool {
	gr := uniseg.NewGraphemes(s)
	for gr.Next() {
		if gr.Width() != 1 && !isControl(gr.Str()) {
			return true
		}
	}
	return false
}

func isControl(s string) bool {
	return s == "\n" || s == "\r" || s == "\t" || s == "\r\n"
}

func toFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}
