package color

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/mazznoer/csscolorparser"
)

const (
	Black = "#000000"
	White = "#ffffff"

	// Anchor marks the point a label belongs to.
	Anchor = "#e53935"
	// Leader is the line from an anchor to a displaced label.
	Leader = "#9e9e9e"
)

// goldenAngle spreads consecutive hues as far apart as possible.
const goldenAngle = 137.50776405003785

// ForID returns a stable pastel fill for a label ID.
func ForID(id int) string {
	h := math.Mod(float64(id)*goldenAngle, 360)
	if h < 0 {
		h += 360
	}
	return colorful.Hsv(h, .35, .95).Clamped().Hex()
}

// Darken decreases the lightness of a CSS color by 10%.
func Darken(colorString string) (string, error) {
	c, err := csscolorparser.Parse(colorString)
	if err != nil {
		return "", err
	}
	h, s, l := colorful.Color{R: c.R, G: c.G, B: c.B}.Hsl()
	return colorful.Hsl(h, s, l-.1).Clamped().Hex(), nil
}

func LuminanceCategory(colorString string) (string, error) {
	l, err := Luminance(colorString)
	if err != nil {
		return "", err
	}

	switch {
	case l >= .88:
		return "bright", nil
	case l >= .55:
		return "normal", nil
	case l >= .30:
		return "dark", nil
	default:
		return "darker", nil
	}
}

func Luminance(colorString string) (float64, error) {
	c, err := csscolorparser.Parse(colorString)
	if err != nil {
		return 0, err
	}

	l := float64(
		float64(0.299)*float64(c.R) +
			float64(0.587)*float64(c.G) +
			float64(0.114)*float64(c.B),
	)
	return l, nil
}

// TextOn picks black or white text for legibility on a background color.
func TextOn(background string) (string, error) {
	cat, err := LuminanceCategory(background)
	if err != nil {
		return "", err
	}
	switch cat {
	case "bright", "normal":
		return Black, nil
	default:
		return White, nil
	}
}
