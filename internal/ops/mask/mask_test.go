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

package mask

import (
	"context"
	"io"
	"math"
	"testing"

	"github.com/mlnoga/fluolight/internal/fits"
	"github.com/mlnoga/fluolight/internal/morph"
	"github.com/mlnoga/fluolight/internal/ops"
)

// Creates a 3D stack of numT frames, with the given frame painted by paint
func newStack(w, h, numT int32, frame int32, paint func(x, y int) float32) *fits.Image {
	img := fits.NewImageFromNaxisn([]int32{w, h, numT}, nil)
	img.Name = "img"
	plane := img.PlaneData(frame)
	for y := 0; y < int(h); y++ {
		for x := 0; x < int(w); x++ {
			plane[y*int(w)+x] = paint(x, y)
		}
	}
	return img
}

func inBox(x, y, x0, y0, x1, y1 int) bool { return x >= x0 && x < x1 && y >= y0 && y < y1 }

// Two blocks of the given value: 5x5 at (3,3) and 6x6 at (12,12)
func twoBlocks(v float32) func(x, y int) float32 {
	return func(x, y int) float32 {
		if inBox(x, y, 3, 3, 8, 8) || inBox(x, y, 12, 12, 18, 18) {
			return v
		}
		return 0
	}
}

func run(t *testing.T, op ops.Operator, in *ops.Inputs) []*ops.Result {
	c := ops.NewContext(io.Discard, nil)
	results, err := ops.RunSync(context.Background(), op, in, c)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return results
}

func countLabel(data []float32, l float32) int {
	n := 0
	for _, d := range data {
		if d == l {
			n++
		}
	}
	return n
}

func TestMaskUp(t *testing.T) {
	img := newStack(20, 20, 4, 2, twoBlocks(10))
	results := run(t, NewOpMaskDefault(), &ops.Inputs{Images: []*fits.Image{img}})
	if len(results) != 1 {
		t.Fatalf("got %d results; want 1", len(results))
	}
	r := results[0]
	if r.Name != "img_up-labels" || r.Kind != ops.KindLabels {
		t.Errorf("result %s kind %s; want img_up-labels labels", r.Name, r.Kind)
	}
	labels := morph.LabelsFromFloats(r.Image.Data)
	if got := morph.MaxLabel(labels); got != 2 {
		t.Errorf("max label=%d; want 2", got)
	}
	if got := len(morph.UniqueLabels(labels)); got != 2 {
		t.Errorf("unique labels=%d; want 2", got)
	}
	// the 5x5 block erodes to its center, which dilates to a plus
	if got := countLabel(r.Image.Data, 1); got != 5 {
		t.Errorf("label 1 area=%d; want 5", got)
	}
	if got := countLabel(r.Image.Data, 2); got != 12 {
		t.Errorf("label 2 area=%d; want 12", got)
	}
}

func TestMaskDown(t *testing.T) {
	img := newStack(20, 20, 3, 1, twoBlocks(-10))
	op := NewOpMaskDefault()
	op.MaskingMode, op.DetFrameIndex = ModeDown, 1
	results := run(t, op, &ops.Inputs{Images: []*fits.Image{img}})
	if results[0].Name != "img_down-labels" {
		t.Errorf("name=%s; want img_down-labels", results[0].Name)
	}
	if got := morph.MaxLabel(morph.LabelsFromFloats(results[0].Image.Data)); got != 2 {
		t.Errorf("max label=%d; want 2", got)
	}
}

func TestMaskValidate(t *testing.T) {
	op := NewOpMaskDefault()
	if err := op.Validate(&ops.Inputs{Images: []*fits.Image{newStack(8, 8, 2, 0, twoBlocks(1))}}); err == nil {
		t.Errorf("detection frame 2 of 2 accepted")
	}
	op.MaskingMode = "sideways"
	if err := op.Validate(&ops.Inputs{Images: []*fits.Image{newStack(8, 8, 3, 0, twoBlocks(1))}}); err == nil {
		t.Errorf("unknown mode accepted")
	}
}

func gaussSpot(cx, cy, amp, sigma float64) func(x, y int) float64 {
	return func(x, y int) float64 {
		dx, dy := float64(x)-cx, float64(y)-cy
		return amp * math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma))
	}
}

func TestDotMask(t *testing.T) {
	s1, s2 := gaussSpot(10, 10, 100, 1.5), gaussSpot(28, 25, 80, 1.5)
	paint := func(x, y int) float32 { return float32(1 + s1(x, y) + s2(x, y)) }
	img := newStack(40, 40, 3, 1, paint)
	results := run(t, NewOpDotMaskDefault(), &ops.Inputs{Images: []*fits.Image{img}})
	if len(results) != 1 || results[0].Name != "img_dots-labels" {
		t.Fatalf("results %v; want one img_dots-labels", results)
	}
	data := results[0].Image.Data
	l1, l2 := data[10*40+10], data[25*40+28]
	if l1 <= 0 || l2 <= 0 || l1 == l2 {
		t.Errorf("spot labels %v and %v; want distinct positive labels", l1, l2)
	}
	if got := morph.MaxLabel(morph.LabelsFromFloats(data)); got != 2 {
		t.Errorf("max label=%d; want 2", got)
	}
	if data[0] != 0 || data[39*40+39] != 0 {
		t.Errorf("corners labeled %v, %v; want background", data[0], data[39*40+39])
	}
	// dilation with disk(5) bounds each dot
	if got := countLabel(data, l1); got != len(morph.Disk(5)) {
		t.Errorf("dot area=%d; want %d", got, len(morph.Disk(5)))
	}
}

func TestUpMaskInROIs(t *testing.T) {
	paint := func(x, y int) float32 {
		if inBox(x, y, 5, 5, 9, 9) {
			return 100
		}
		return 10
	}
	img := newStack(26, 14, 3, 2, paint)
	rois := fits.NewImageFromNaxisn([]int32{26, 14}, nil)
	rois.Name = "rois"
	for y := 2; y < 12; y++ {
		for x := 2; x < 12; x++ {
			rois.Data[y*26+x] = 1
			rois.Data[y*26+x+12] = 2
		}
	}
	op := NewOpUpMaskDefault()
	op.SaveTotalUpMask = true
	results := run(t, op, &ops.Inputs{Images: []*fits.Image{img}, Labels: []*fits.Image{rois}})
	if len(results) != 2 {
		t.Fatalf("got %d results; want 2", len(results))
	}
	labels := results[0].Image.Data
	// opening a 4x4 block with disk(1) removes its corners
	if got := countLabel(labels, 1); got != 12 {
		t.Errorf("label 1 area=%d; want 12", got)
	}
	if got := countLabel(labels, 2); got != 0 {
		t.Errorf("label 2 area=%d; want 0 for a uniform ROI", got)
	}
	if results[1].Name != "img_up-mask" || results[1].Kind != ops.KindMask || countLabel(results[1].Image.Data, 1) != 12 {
		t.Errorf("mask result %s kind %s", results[1].Name, results[1].Kind)
	}
}

func TestUpMaskWholeFrame(t *testing.T) {
	img := newStack(20, 20, 3, 2, twoBlocks(100))
	op := NewOpUpMaskDefault()
	op.InROIsDet = false
	results := run(t, op, &ops.Inputs{Images: []*fits.Image{img}})
	labels := morph.LabelsFromFloats(results[0].Image.Data)
	if got := morph.MaxLabel(labels); got != 2 {
		t.Errorf("max label=%d; want 2", got)
	}
}

func TestUpMaskValidate(t *testing.T) {
	img := newStack(20, 20, 3, 2, twoBlocks(100))
	op := NewOpUpMaskDefault()
	if err := op.Validate(&ops.Inputs{Images: []*fits.Image{img}}); err == nil {
		t.Errorf("ROI scoped detection without ROI layer accepted")
	}
	rois := fits.NewImageFromNaxisn([]int32{10, 20}, nil)
	if err := op.Validate(&ops.Inputs{Images: []*fits.Image{img}, Labels: []*fits.Image{rois}}); err == nil {
		t.Errorf("ROI layer of wrong shape accepted")
	}
	stacked := fits.NewImageFromNaxisn([]int32{20, 20, 4}, nil)
	stacked.PlaneData(3)[5] = 1
	err := op.Validate(&ops.Inputs{Images: []*fits.Image{img}, Labels: []*fits.Image{stacked}})
	if _, ok := err.(*ops.ValidationError); !ok {
		t.Errorf("ROI layer with 4 planes: err=%v; want validation error", err)
	}
}
