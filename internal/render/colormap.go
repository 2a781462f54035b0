// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package render

import (
	"fmt"
	"image/color"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Maps normalized values in [0,1] to display colors
type Colormap struct {
	Name  string
	stops []colorful.Color
	lut   [256]color.NRGBA
}

// Creates a colormap interpolating linearly in RGB between equidistant stops
func NewColormap(name string, stops ...colorful.Color) *Colormap {
	cm := &Colormap{Name: name, stops: stops}
	for i := range cm.lut {
		c := cm.interpolate(float64(i) / 255)
		r, g, b := c.Clamped().RGB255()
		cm.lut[i] = color.NRGBA{R: r, G: g, B: b, A: 255}
	}
	return cm
}

func (cm *Colormap) interpolate(v float64) colorful.Color {
	n := len(cm.stops) - 1
	if n == 0 {
		return cm.stops[0]
	}
	pos := v * float64(n)
	i := int(pos)
	if i >= n {
		return cm.stops[n]
	}
	return cm.stops[i].BlendRgb(cm.stops[i+1], pos-float64(i))
}

// Returns the color for normalized value v. Values outside [0,1] are clamped, NaN is transparent
func (cm *Colormap) At(v float32) color.NRGBA {
	if v != v {
		return color.NRGBA{}
	}
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	return cm.lut[int(v*255+0.5)]
}

func hex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

var colormaps = map[string]*Colormap{
	"gray": NewColormap("gray", colorful.Color{R: 0, G: 0, B: 0}, colorful.Color{R: 1, G: 1, B: 1}),
	"turbo": NewColormap("turbo",
		hex("#30123b"), hex("#4662d7"), hex("#36aaf9"), hex("#1ae4b6"), hex("#72fe5e"),
		hex("#c8ef34"), hex("#faba39"), hex("#f66b19"), hex("#ca2a04"), hex("#7a0403")),
	"red-green": NewColormap("red-green",
		colorful.Color{R: 0, G: 1, B: 0}, colorful.Color{R: 0, G: 0.9, B: 0}, colorful.Color{R: 0, G: 0.85, B: 0},
		colorful.Color{R: 0, G: 0, B: 0},
		colorful.Color{R: 0.85, G: 0, B: 0}, colorful.Color{R: 0.9, G: 0, B: 0}, colorful.Color{R: 1, G: 0, B: 0}),
}

// Returns the named colormap
func LookupColormap(name string) (*Colormap, error) {
	if name == "" {
		name = "gray"
	}
	cm, ok := colormaps[name]
	if !ok {
		return nil, fmt.Errorf("unknown colormap '%s'", name)
	}
	return cm, nil
}

// Golden angle in degrees, spreads consecutive label hues evenly
const goldenAngle = 137.50776405003785

// Returns a distinct color for a label value. Background 0 is transparent
func LabelColor(label int32) color.NRGBA {
	if label <= 0 {
		return color.NRGBA{}
	}
	hue := math.Mod(float64(label)*goldenAngle, 360)
	r, g, b := colorful.Hsv(hue, 0.75, 0.95).Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}
