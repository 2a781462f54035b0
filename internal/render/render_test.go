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
	"bytes"
	"image/color"
	"image/png"
	"testing"

	"github.com/mlnoga/fluolight/internal/fits"
)

func TestColormapEnds(t *testing.T) {
	rg, err := LookupColormap("red-green")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got := rg.At(0); got != (color.NRGBA{0, 255, 0, 255}) {
		t.Errorf("red-green at 0=%v; want green", got)
	}
	if got := rg.At(0.5); got.R > 8 || got.G != 0 || got.B != 0 {
		t.Errorf("red-green at 0.5=%v; want near black", got)
	}
	if got := rg.At(2); got != (color.NRGBA{255, 0, 0, 255}) {
		t.Errorf("red-green at 2=%v; want red clamped", got)
	}
	gray, _ := LookupColormap("")
	if got := gray.At(1); got != (color.NRGBA{255, 255, 255, 255}) {
		t.Errorf("gray at 1=%v; want white", got)
	}
	if _, err := LookupColormap("viridis"); err == nil {
		t.Errorf("unknown colormap found")
	}
}

func TestLabelColor(t *testing.T) {
	if got := LabelColor(0); got.A != 0 {
		t.Errorf("background color=%v; want transparent", got)
	}
	seen := map[color.NRGBA]bool{}
	for l := int32(1); l <= 20; l++ {
		c := LabelColor(l)
		if c.A != 255 || seen[c] {
			t.Errorf("label %d color %v is transparent or repeated", l, c)
		}
		seen[c] = true
	}
}

func TestPreview(t *testing.T) {
	img := fits.NewImageFromNaxisn([]int32{40, 20, 2, 3}, nil)
	for i := range img.Data {
		img.Data[i] = float32(i % 40)
	}
	if _, err := Plane(img, 3, 0); err == nil {
		t.Errorf("frame 3 of 3 accepted")
	}
	if _, err := Plane(img, 0, 2); err == nil {
		t.Errorf("channel 2 of 2 accepted")
	}

	p, err := Preview(img, Options{Frame: 1, Channel: 1, Colormap: "gray", MaxSize: 20})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if b := p.Bounds(); b.Dx() != 20 || b.Dy() != 10 {
		t.Errorf("preview size %v; want 20x10", b)
	}

	buf := bytes.Buffer{}
	if err := WritePNG(&buf, img, Options{Labels: true}); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}
	decoded, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 40 || b.Dy() != 20 {
		t.Errorf("png size %v; want 40x20", b)
	}
}
