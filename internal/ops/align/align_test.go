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

package align

import (
	"context"
	"io"
	"math"
	"testing"

	"github.com/mlnoga/fluolight/internal/coord"
	"github.com/mlnoga/fluolight/internal/fits"
	"github.com/mlnoga/fluolight/internal/ops"
)

// Smooth test scene of three gaussian blobs on a constant background
func scene(x, y float64) float32 {
	blob := func(cx, cy, amp float64) float64 {
		dx, dy := x-cx, y-cy
		return amp * math.Exp(-(dx*dx+dy*dy)/(2*5*5))
	}
	return float32(10 + blob(20, 24, 100) + blob(40, 30, 70) + blob(30, 45, 50))
}

// Renders the scene shifted by (dx,dy) into a new 2D image
func render(w, h int32, dx, dy float64) *fits.Image {
	img := fits.NewImageFromNaxisn([]int32{w, h}, nil)
	for y := int32(0); y < h; y++ {
		for x := int32(0); x < w; x++ {
			img.Data[y*w+x] = scene(float64(x)-dx, float64(y)-dy)
		}
	}
	return img
}

func TestRegisterNCC(t *testing.T) {
	fixed, moving := render(64, 64, 0, 0), render(64, 64, 2.5, -1.5)
	trans, err := Register(fixed, moving, MetricNCC, io.Discard)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	// a feature at (30,30) in the moving image lies at (27.5,31.5) in the fixed image
	p := trans.Apply(coord.Point2D{X: 30, Y: 30})
	if math.Abs(float64(p.X)-27.5) > 0.3 || math.Abs(float64(p.Y)-31.5) > 0.3 {
		t.Errorf("transformed (30,30) to %v; want (27.5,31.5), transform %s", p, trans.String())
	}
}

func TestRegisterMI(t *testing.T) {
	fixed, moving := render(64, 64, 0, 0), render(64, 64, -2, 1)
	trans, err := Register(fixed, moving, MetricMI, io.Discard)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	p := trans.Apply(coord.Point2D{X: 30, Y: 30})
	if math.Abs(float64(p.X)-32) > 1 || math.Abs(float64(p.Y)-29) > 1 {
		t.Errorf("transformed (30,30) to %v; want about (32,29), transform %s", p, trans.String())
	}
}

func TestRegisterErrors(t *testing.T) {
	if _, err := Register(render(32, 32, 0, 0), render(32, 30, 0, 0), MetricNCC, io.Discard); err == nil {
		t.Errorf("size mismatch accepted")
	}
	if _, err := Register(render(32, 32, 0, 0), render(32, 32, 0, 0), "ssd", io.Discard); err == nil {
		t.Errorf("unknown metric accepted")
	}
}

func TestMutualInformation(t *testing.T) {
	xs := []float64{0, 0.3, 0.6, 0.9, 0, 0.3, 0.6, 0.9}
	same := MutualInformation(xs, xs, 4)
	if same < 0.9 || same > math.Log(4) {
		t.Errorf("MI of identical samples=%v; want in [0.9, log 4]", same)
	}
	ys := []float64{0.1, 0.1, 0.1, 0.1, 0.9, 0.9, 0.9, 0.9}
	if got := MutualInformation(xs, ys, 4); math.Abs(got) > 1e-12 {
		t.Errorf("MI of independent samples=%v; want 0", got)
	}
}

// Builds a 4D frame-major stack where channels 1 and 3 show the scene and
// channels 0 and 2 show it shifted by (dx,dy)
func newOffsetStack(w, h, numT int32, dx, dy float64) *fits.Image {
	ref, shifted := render(w, h, 0, 0), render(w, h, dx, dy)
	chans := make([]*fits.Image, 4)
	for ch := range chans {
		src := ref
		if ch%2 == 0 {
			src = shifted
		}
		planes := make([]*fits.Image, numT)
		for t := range planes {
			planes[t] = src
		}
		chans[ch] = fits.NewImageFromPlanes(planes)
	}
	res, _ := fits.NewImageFromChannels(chans)
	res.Name = "cell"
	return res
}

func TestAlignStack(t *testing.T) {
	img := newOffsetStack(70, 70, 2, 2, 1)
	op := NewOpAlignStackDefault()
	op.InputCrop, op.OutputCrop, op.Metric = 3, 5, MetricNCC
	c := ops.NewContext(io.Discard, nil)
	results, err := ops.RunSync(context.Background(), op, &ops.Inputs{Images: []*fits.Image{img}}, c)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(results) != 1 || results[0].Name != "cell_xform" {
		t.Fatalf("results=%v; want one cell_xform", results)
	}
	res := results[0].Image
	if !fits.EqualInt32Slice(res.Naxisn, []int32{54, 54, 4, 2}) {
		t.Fatalf("naxisn=%v; want [54 54 4 2]", res.Naxisn)
	}
	ch0, _ := res.Channel(0, false)
	ch1, _ := res.Channel(1, false)
	ch3, _ := res.Channel(3, false)
	// channel 1 passes through, shifted by the total crop of 8 pixels
	if got, want := ch1.Data[10*54+10], scene(18, 18); got != want {
		t.Errorf("channel 1 at (10,10)=%v; want %v", got, want)
	}
	// after alignment, channel 0 matches channel 3 around the blobs
	for _, p := range [][2]int{{12, 16}, {32, 22}, {22, 37}} {
		idx := p[1]*54 + p[0]
		if math.Abs(float64(ch0.Data[idx]-ch3.Data[idx])) > 3 {
			t.Errorf("aligned channel 0 at %v=%v; channel 3=%v", p, ch0.Data[idx], ch3.Data[idx])
		}
	}
}

func TestAlignValidate(t *testing.T) {
	op := NewOpAlignStackDefault()
	threeD := fits.NewImageFromNaxisn([]int32{80, 80, 4}, nil)
	if err := op.Validate(&ops.Inputs{Images: []*fits.Image{threeD}}); err == nil {
		t.Errorf("3D offset image accepted")
	}
	threeCh := fits.NewImageFromNaxisn([]int32{80, 80, 3, 2}, nil)
	if err := op.Validate(&ops.Inputs{Images: []*fits.Image{threeCh}}); err == nil {
		t.Errorf("3 channel offset image accepted")
	}
	small := fits.NewImageFromNaxisn([]int32{60, 60, 4, 2}, nil)
	if err := op.Validate(&ops.Inputs{Images: []*fits.Image{small}}); err == nil {
		t.Errorf("input crop 25 of 60 pixels accepted")
	}
	op.UseReferenceImage = true
	ok := fits.NewImageFromNaxisn([]int32{120, 120, 4, 2}, nil)
	if err := op.Validate(&ops.Inputs{Images: []*fits.Image{ok}}); err == nil {
		t.Errorf("missing reference accepted")
	}
}
