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

// Package mask builds ROI label layers from fluorescence stacks: dot detection with
// watershed separation, and threshold masks of intensity increases or decreases
package mask

import (
	"fmt"

	"github.com/mlnoga/fluolight/internal/fits"
	"github.com/mlnoga/fluolight/internal/morph"
	"github.com/mlnoga/fluolight/internal/ops"
	"github.com/mlnoga/fluolight/internal/stats"
)

// Detection methods
const (
	MethodOtsu      = "otsu"
	MethodThreshold = "threshold"
)

// Returns the detection image: frame index of the stack, or its maximum projection for negative index
func DetectionFrame(img *fits.Image, index int32) []float32 {
	if index < 0 {
		return img.MaxProjection().Data
	}
	return append([]float32(nil), img.PlaneData(index)...)
}

func checkFrameIndex(op string, img *fits.Image, index int32) error {
	if index >= img.Frames() {
		return ops.Invalid(op, "detection frame %d out of range for %d frames", index, img.Frames())
	}
	return nil
}

// Removes small objects and noise from a threshold mask: erosion with disk(2), dilation
// with disk(1), then filling of holes
func Cleanup(mask []bool, width int) []bool {
	mask = morph.Erode(mask, width, morph.Disk(2))
	mask = morph.Dilate(mask, width, morph.Disk(1))
	return morph.FillHoles(mask, width)
}

// Detects intensity increases in a 2D image. The threshold method selects pixels above
// max|x|*th*div and cleans them up; otsu selects pixels above the Otsu threshold.
// The result is opened with disk(openingFp) if non-zero, then dilated with disk(dilationFp)
func UpDetection(data []float32, width int, method string, th, div float32, openingFp, dilationFp int) []bool {
	mask := make([]bool, len(data))
	switch method {
	case MethodThreshold:
		level := MaxAbs(data) * th * div
		for i, d := range data {
			mask[i] = d > level
		}
		mask = Cleanup(mask, width)
	default:
		level := stats.Otsu(data)
		for i, d := range data {
			mask[i] = d > level
		}
	}
	if openingFp != 0 {
		mask = morph.Open(mask, width, morph.Disk(openingFp))
	}
	return morph.Dilate(mask, width, morph.Disk(dilationFp))
}

// Returns the maximum absolute value
func MaxAbs(data []float32) (maxAbs float32) {
	for _, d := range data {
		if d < 0 {
			d = -d
		}
		if d > maxAbs {
			maxAbs = d
		}
	}
	return maxAbs
}

// Creates a 2D label layer image from integer labels
func NewLabelsImage(labels []int32, width, height int32, id int, name string) *fits.Image {
	res := fits.NewImageFromNaxisn([]int32{width, height}, morph.LabelsToFloats(labels))
	res.ID, res.Name = id, name
	return res
}

// Creates a 2D mask layer image with values 0 and 1
func NewMaskImage(mask []bool, width, height int32, id int, name string) *fits.Image {
	res := fits.NewImageFromNaxisn([]int32{width, height}, nil)
	res.ID, res.Name = id, name
	for i, m := range mask {
		if m {
			res.Data[i] = 1
		}
	}
	return res
}

func logLabels(c *ops.Context, img *fits.Image, n int32, kind string) {
	fmt.Fprintf(c.Log, "%d: Detected %d %s labels\n", img.ID, n, kind)
}
