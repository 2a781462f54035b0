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

// Package plot renders line and error-bar figures of intensity profiles, and
// hosts them in named dock panels
package plot

import (
	"bytes"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	gplot "gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// One curve of a figure. YErr is optional and draws symmetric error bars
type Series struct {
	Label  string
	X, Y   []float64
	YErr   []float64
	Color  color.Color // nil picks from the default palette
	Alpha  float64     // 0 is opaque
	Marker bool
}

// A figure of several series, e.g. per-ROI traces or summary statistics
type Figure struct {
	Title  string
	XLabel string
	YLabel string
	Series []Series
}

// Default figure size in pixels
const (
	DefaultWidth  = 800
	DefaultHeight = 500
)

func (s *Series) color(i int) color.Color {
	c := s.Color
	if c == nil {
		c = plotutil.Color(i)
	}
	if s.Alpha <= 0 || s.Alpha >= 1 {
		return c
	}
	r, g, b, _ := c.RGBA()
	return color.NRGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(math.Round(s.Alpha * 255))}
}

// Points with symmetric y errors, as needed for plotter.NewYErrorBars
type errorPoints struct {
	plotter.XYs
	plotter.YErrors
}

func (e errorPoints) Len() int { return len(e.XYs) }

// Builds the gonum plot for the figure
func (f *Figure) Plot() (*gplot.Plot, error) {
	p := gplot.New()
	p.Title.Text = f.Title
	p.X.Label.Text = f.XLabel
	p.Y.Label.Text = f.YLabel
	p.Add(plotter.NewGrid())

	for i := range f.Series {
		s := &f.Series[i]
		if len(s.X) != len(s.Y) {
			return nil, fmt.Errorf("series %s: %d x values but %d y values", s.Label, len(s.X), len(s.Y))
		}
		xys := make(plotter.XYs, len(s.X))
		for j := range s.X {
			xys[j].X, xys[j].Y = s.X[j], s.Y[j]
		}
		c := s.color(i)

		line, err := plotter.NewLine(xys)
		if err != nil {
			return nil, err
		}
		line.LineStyle.Color = c
		line.LineStyle.Width = vg.Points(1.5)
		p.Add(line)
		if s.Label != "" {
			p.Legend.Add(s.Label, line)
		}

		if s.Marker {
			scatter, err := plotter.NewScatter(xys)
			if err != nil {
				return nil, err
			}
			scatter.GlyphStyle.Color = c
			scatter.GlyphStyle.Radius = vg.Points(2)
			scatter.GlyphStyle.Shape = draw.CircleGlyph{}
			p.Add(scatter)
		}

		if s.YErr != nil {
			if len(s.YErr) != len(s.Y) {
				return nil, fmt.Errorf("series %s: %d y values but %d errors", s.Label, len(s.Y), len(s.YErr))
			}
			errs := make(plotter.YErrors, len(s.YErr))
			for j, e := range s.YErr {
				errs[j].Low, errs[j].High = e, e
			}
			bars, err := plotter.NewYErrorBars(errorPoints{xys, errs})
			if err != nil {
				return nil, err
			}
			bars.LineStyle.Color = c
			p.Add(bars)
		}
	}
	p.Legend.Top = true
	return p, nil
}

// Renders the figure into a PNG image of the given size in pixels
func Render(f *Figure, width, height int) ([]byte, error) {
	p, err := f.Plot()
	if err != nil {
		return nil, err
	}
	c := vgimg.NewWith(vgimg.UseWH(vg.Length(width), vg.Length(height)), vgimg.UseDPI(72))
	p.Draw(draw.New(c))
	buf := bytes.Buffer{}
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// A plot host displays figures in named dock panels. Showing a figure in an existing
// panel replaces its content
type Host interface {
	Show(panel string, f *Figure) error
}

// Converts a panel name into a file name, e.g. "ROIs Prof." into "ROIs_Prof.png"
func PanelFileName(panel string) string {
	s := strings.TrimSpace(strings.TrimRight(panel, ". "))
	s = strings.Map(func(r rune) rune {
		switch {
		case r == ' ' || r == '/' || r == '\\' || r == ':':
			return '_'
		case r == '.':
			return -1
		}
		return r
	}, s)
	return s + ".png"
}

// Host writing each panel as PNG file into a directory
type DirHost struct {
	Dir    string
	Width  int
	Height int
}

func (h *DirHost) Show(panel string, f *Figure) error {
	w, ht := h.Width, h.Height
	if w <= 0 || ht <= 0 {
		w, ht = DefaultWidth, DefaultHeight
	}
	png, err := Render(f, w, ht)
	if err != nil {
		return err
	}
	fileName := filepath.Join(h.Dir, PanelFileName(panel))
	if err := os.WriteFile(fileName, png, 0644); err != nil {
		return errors.Wrapf(err, "writing plot %s", fileName)
	}
	return nil
}

// Host keeping the latest figure per panel in memory
type MemHost struct {
	mutex   sync.RWMutex
	figures map[string]*Figure
}

func NewMemHost() *MemHost {
	return &MemHost{figures: map[string]*Figure{}}
}

func (h *MemHost) Show(panel string, f *Figure) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.figures[panel] = f
	return nil
}

// Returns the figure shown in the given panel, or nil
func (h *MemHost) Get(panel string) *Figure {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.figures[panel]
}

// Returns the sorted panel names
func (h *MemHost) Panels() []string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	names := make([]string, 0, len(h.figures))
	for n := range h.figures {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
