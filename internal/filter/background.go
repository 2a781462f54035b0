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
	"github.com/mlnoga/fluolight/internal/morph"
	"github.com/mlnoga/fluolight/internal/stats"
)

// Subtracts the p-th percentile of the data from all values in place, clipping at zero
func SubtractPercentile(data []float32, p float32) {
	bg := stats.Percentile(data, p)
	for i, d := range data {
		d -= bg
		if d < 0 {
			d = 0
		}
		data[i] = d
	}
}

// Parameters of the process mask
const (
	procMaskSigma  = 1
	procMaskDilate = 5
)

// Builds a foreground mask of a 2D image: gaussian smoothing with sigma 1, Otsu threshold,
// then dilation with a disk of radius 5
func ProcessMask(data []float32, width int) []bool {
	smooth := GaussFilter2D(data, width, procMaskSigma)
	th := stats.Otsu(smooth)
	mask := make([]bool, len(smooth))
	for i, v := range smooth {
		mask[i] = v > th
	}
	return morph.Dilate(mask, width, morph.Disk(procMaskDilate))
}

// Returns the mean of data over the set pixels of the mask, or 0 if the mask is empty
func MaskedMean(data []float32, mask []bool) float64 {
	sum, n := 0.0, 0
	for i, m := range mask {
		if m {
			sum += float64(data[i])
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
