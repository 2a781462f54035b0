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

package stats

import (
	"math"
)

// Calculate histogram of data between min and max into given bins. Values outside [min,max] are clamped
// into the first or last bin, NaNs are skipped
func Histogram(data []float32, min, max float32, bins []int32) {
	for i := range bins {
		bins[i] = 0
	}
	if max <= min {
		for _, d := range data {
			if !math.IsNaN(float64(d)) {
				bins[0]++
			}
		}
		return
	}
	last := len(bins) - 1
	scale := float32(len(bins)) / (max - min)
	for _, d := range data {
		if math.IsNaN(float64(d)) {
			continue
		}
		index := int((d - min) * scale)
		if index < 0 {
			index = 0
		} else if index > last {
			index = last
		}
		bins[index]++
	}
}

// Returns the center of the given histogram bin
func BinCenter(i int, min, max float32, numBins int) float32 {
	return min + (float32(i)+0.5)*(max-min)/float32(numBins)
}

const OtsuBins = 256

// Computes Otsu's threshold, i.e. the histogram bin center which maximizes the
// between-class variance of the data below and above it. Returns the common value
// if all values are equal
func Otsu(data []float32) float32 {
	min, max := MinMax(data)
	if max <= min {
		return min
	}
	bins := make([]int32, OtsuBins)
	Histogram(data, min, max, bins)

	// cumulative class weights and means from both ends
	weight1, weight2 := make([]float64, OtsuBins), make([]float64, OtsuBins)
	mean1, mean2 := make([]float64, OtsuBins), make([]float64, OtsuBins)
	sumW, sumWX := 0.0, 0.0
	for i := 0; i < OtsuBins; i++ {
		w := float64(bins[i])
		sumW += w
		sumWX += w * float64(BinCenter(i, min, max, OtsuBins))
		weight1[i] = sumW
		if sumW > 0 {
			mean1[i] = sumWX / sumW
		}
	}
	sumW, sumWX = 0, 0
	for i := OtsuBins - 1; i >= 0; i-- {
		w := float64(bins[i])
		sumW += w
		sumWX += w * float64(BinCenter(i, min, max, OtsuBins))
		weight2[i] = sumW
		if sumW > 0 {
			mean2[i] = sumWX / sumW
		}
	}

	bestIndex, bestVar := 0, -1.0
	for i := 0; i < OtsuBins-1; i++ {
		d := mean1[i] - mean2[i+1]
		v := weight1[i] * weight2[i+1] * d * d
		if v > bestVar {
			bestIndex, bestVar = i, v
		}
	}
	return BinCenter(bestIndex, min, max, OtsuBins)
}

// Returns minimum and maximum of the data, ignoring NaNs. Returns 0,0 for no valid data
func MinMax(data []float32) (min, max float32) {
	min, max = float32(math.MaxFloat32), float32(-math.MaxFloat32)
	for _, d := range data {
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	if min > max {
		return 0, 0
	}
	return min, max
}
