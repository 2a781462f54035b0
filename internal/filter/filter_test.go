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

package filter

import (
	"io"
	"math"
	"testing"

	"github.com/mlnoga/fluolight/internal/fits"
)

func TestGaussianKernel1D(t *testing.T) {
	for _, sigma := range []float32{0.5, 1, 2, 3} {
		kernel := GaussianKernel1D(sigma)
		if want := 2*int(4*sigma+0.5) + 1; len(kernel) != want {
			t.Errorf("sigma=%v len=%d; want %d", sigma, len(kernel), want)
		}
		sum := float32(0)
		for i, k := range kernel {
			sum += k
			if k != kernel[len(kernel)-1-i] {
				t.Errorf("sigma=%v kernel not symmetric at %d", sigma, i)
			}
		}
		if math.Abs(float64(sum-1)) > 1e-5 {
			t.Errorf("sigma=%v sum=%v; want 1", sigma, sum)
		}
	}
	// center tap of a unit gaussian integrated over [-0.5,0.5]
	if k := GaussianKernel1D(1); math.Abs(float64(k[4])-0.38292) > 1e-3 {
		t.Errorf("center tap=%v; want 0.38292", k[4])
	}
}

func TestGaussFilterKeepsConstant(t *testing.T) {
	data := make([]float32, 6*5)
	for i := range data {
		data[i] = 3
	}
	res := GaussFilter2D(data, 6, 2)
	for i, v := range res {
		if math.Abs(float64(v-3)) > 1e-5 {
			t.Errorf("res[%d]=%v; want 3", i, v)
		}
	}
}

func TestSubtractPercentile(t *testing.T) {
	data := []float32{1, 2, 3, 4, 5}
	SubtractPercentile(data, 50)
	want := []float32{0, 0, 0, 1, 2}
	for i := range want {
		if data[i] != want[i] {
			t.Errorf("data=%v; want %v", data, want)
			break
		}
	}
}

// Creates a stack of numT frames with a bright square on a dim background, both decaying with the given rate
func newDecayingStack(w, h, numT int32, rate float64) *fits.Image {
	img := fits.NewImageFromNaxisn([]int32{w, h, numT}, nil)
	img.Name = "decay"
	for t := int32(0); t < numT; t++ {
		f := float32(math.Exp(-rate * float64(t)))
		plane := img.PlaneData(t)
		for y := int32(0); y < h; y++ {
			for x := int32(0); x < w; x++ {
				v := float32(1)
				if x >= w/2-4 && x < w/2+4 && y >= h/2-4 && y < h/2+4 {
					v = 100
				}
				plane[y*w+x] = v * f
			}
		}
	}
	return img
}

func TestProcessMask(t *testing.T) {
	img := newDecayingStack(30, 30, 1, 0)
	mask := ProcessMask(img.Data, 30)
	if !mask[15*30+15] {
		t.Errorf("center not in mask")
	}
	if mask[0] || mask[29*30+29] {
		t.Errorf("corners in mask")
	}
}

func TestFitBleaching(t *testing.T) {
	profile := make([]float64, 40)
	for i := range profile {
		profile[i] = 200 * math.Exp(-0.05*float64(i))
	}
	params, r2, err := FitBleaching(profile, BleachExp)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(params[1]-0.05) > 1e-3 || math.Abs(params[0]-200) > 1 {
		t.Errorf("params=%v; want [200 0.05]", params)
	}
	if r2 < 0.999 {
		t.Errorf("r2=%v; want >0.999", r2)
	}

	for i := range profile {
		ti := float64(i)
		profile[i] = 70*math.Exp(-0.1*ti) + 30*math.Exp(-0.01*ti)
	}
	if _, r2, err = FitBleaching(profile, BleachBiExp); err != nil || r2 < 0.99 {
		t.Errorf("biExp r2=%v err=%v; want >0.99", r2, err)
	}

	if _, _, err = FitBleaching(profile[:2], BleachExp); err == nil {
		t.Errorf("expected error for short profile")
	}
	if _, _, err = FitBleaching(profile, "linear"); err == nil {
		t.Errorf("expected error for unknown method")
	}
}

func TestBleachCorrect(t *testing.T) {
	img := newDecayingStack(30, 30, 12, 0.05)
	res, r2, err := BleachCorrect(img, BleachExp, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if r2 < 0.999 {
		t.Errorf("r2=%v; want >0.999", r2)
	}
	center := int32(15*30 + 15)
	last := res.PlaneData(11)[center]
	if math.Abs(float64(last)-100) > 1 {
		t.Errorf("corrected last frame=%v; want 100", last)
	}
	if img.PlaneData(11)[center] == last {
		t.Errorf("input modified")
	}
}
