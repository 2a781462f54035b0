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

package redgreen

import (
	"context"
	"io"
	"testing"

	"github.com/mlnoga/fluolight/internal/fits"
	"github.com/mlnoga/fluolight/internal/ops"
)

// Creates a 3D stack where pixel x of frame t holds t*(x+1)
func newRamp(w, h, numT int32) *fits.Image {
	img := fits.NewImageFromNaxisn([]int32{w, h, numT}, nil)
	img.Name = "ramp"
	for t := int32(0); t < numT; t++ {
		plane := img.PlaneData(t)
		for i := range plane {
			plane[i] = float32(t) * float32(int32(i)%w+1)
		}
	}
	return img
}

func TestRedGreenRaw(t *testing.T) {
	img := newRamp(4, 3, 20)
	op := NewOpRedGreenDefault()
	op.NormalizeByInt, op.SaveMIP = false, true
	c := ops.NewContext(io.Discard, nil)
	results, err := ops.RunSync(context.Background(), op, &ops.Inputs{Images: []*fits.Image{img}}, c)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results; want 2", len(results))
	}
	rg := results[0]
	if rg.Name != "ramp_red-green" || rg.Image.Frames() != 17 {
		t.Errorf("result %s with %d frames; want ramp_red-green with 17", rg.Name, rg.Image.Frames())
	}
	// stimulus mean minus baseline mean is 2 frames of slope x+1
	for tt := int32(0); tt < 17; tt++ {
		plane := rg.Image.PlaneData(tt)
		for i, v := range plane {
			if want := float32(2 * (i%4 + 1)); v != want {
				t.Fatalf("frame %d pixel %d=%v; want %v", tt, i, v, want)
			}
		}
	}
	if rg.Colormap != ops.ColormapRedGreen || len(rg.ContrastLimits) != 2 || rg.ContrastLimits[1] != 6 || rg.ContrastLimits[0] != -6 {
		t.Errorf("colormap %s limits %v; want red-green [-6 6]", rg.Colormap, rg.ContrastLimits)
	}
	if results[1].Name != "ramp_red-green-MIP" || results[1].Image.NDim() != 2 {
		t.Errorf("MIP result %s with %d axes", results[1].Name, results[1].Image.NDim())
	}
}

func TestRedGreenNormalized(t *testing.T) {
	img := newRamp(4, 1, 6)
	op := &OpRedGreen{OpBase: ops.OpBase{Type: "redGreen"}, LeftFrames: 0, SpaceFrames: 0, RightFrames: 1, NormalizeByInt: true}
	c := ops.NewContext(io.Discard, nil)
	res, err := op.Apply(img, c)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Frames() != 5 {
		t.Errorf("frames=%d; want 5", res.Frames())
	}
	// the dimmest pixel has normalized weight 0, the brightest keeps its difference
	plane := res.PlaneData(2)
	if plane[0] != 0 || plane[3] != 4 {
		t.Errorf("normalized frame 2=%v; want 0 at x=0 and 4 at x=3", plane)
	}
}

func TestRedGreenValidate(t *testing.T) {
	op := NewOpRedGreenDefault()
	if err := op.Validate(&ops.Inputs{Images: []*fits.Image{newRamp(2, 2, 3)}}); err == nil {
		t.Errorf("3 frames accepted for windows 1/1/1")
	}
	if err := op.Validate(&ops.Inputs{Images: []*fits.Image{newRamp(2, 2, 4)}}); err != nil {
		t.Errorf("4 frames rejected: %v", err)
	}
	if got := op.OutputFrames(20); got != 17 {
		t.Errorf("OutputFrames(20)=%d; want 17", got)
	}
}
