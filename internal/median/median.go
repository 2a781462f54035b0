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

package median

import (
	"github.com/mlnoga/fluolight/internal/qsort"
)

// Applies a kxk median filter to input data, assumed to be a 2D array with given line width,
// and stores results in output. The window for pixel i covers offsets -(k/2) to k-1-k/2 along
// each axis, and pixels beyond the border are mirrored including the edge pixel (d c b a | a b c d).
// For even k the upper of the two central values is returned. Output must not alias data
func MedianFilter(output, data []float32, width int32, k int) {
	if k <= 1 {
		copy(output, data)
		return
	}
	w, h := int(width), len(data)/int(width)
	lo := -(k / 2)
	hi := k - 1 - k/2
	rank := (k * k) / 2

	// precompute mirrored indices for all offsets
	xs := mirroredIndices(w, lo, hi)
	ys := mirroredIndices(h, lo, hi)

	gathered := make([]float32, k*k)
	for y := 0; y < h; y++ {
		rows := ys[y*k : (y+1)*k]
		for x := 0; x < w; x++ {
			cols := xs[x*k : (x+1)*k]
			j := 0
			for _, r := range rows {
				row := data[r*w : (r+1)*w]
				for _, c := range cols {
					gathered[j] = row[c]
					j++
				}
			}
			if k == 3 {
				output[y*w+x] = MedianFloat32Slice9(gathered)
			} else {
				output[y*w+x] = qsort.QSelectRankFloat32(gathered, rank)
			}
		}
	}
}

// Returns for each position i in [0,n) the k=hi-lo+1 source indices i+lo..i+hi, mirrored at the borders
func mirroredIndices(n, lo, hi int) []int {
	k := hi - lo + 1
	res := make([]int, n*k)
	for i := 0; i < n; i++ {
		for o := lo; o <= hi; o++ {
			res[i*k+o-lo] = mirror(i+o, n)
		}
	}
	return res
}

// Mirrors index i into [0,n) with edge repetition, for any distance from the border
func mirror(i, n int) int {
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}

// Calculates the median of a float32 slice of length nine
// Modifies the elements in place
// From https://stackoverflow.com/questions/45453537/optimal-9-element-sorting-network-that-reduces-to-an-optimal-median-of-9-network
// Array must not contain IEEE NaN
func MedianFloat32Slice9(a []float32) float32 {
	if a[0] > a[1] {
		a[0], a[1] = a[1], a[0]
	}
	if a[3] > a[4] {
		a[3], a[4] = a[4], a[3]
	}
	if a[6] > a[7] {
		a[6], a[7] = a[7], a[6]
	}
	if a[1] > a[2] {
		a[1], a[2] = a[2], a[1]
	}
	if a[4] > a[5] {
		a[4], a[5] = a[5], a[4]
	}
	if a[7] > a[8] {
		a[7], a[8] = a[8], a[7]
	}
	if a[0] > a[1] {
		a[0], a[1] = a[1], a[0]
	}
	if a[3] > a[4] {
		a[3], a[4] = a[4], a[3]
	}
	if a[6] > a[7] {
		a[6], a[7] = a[7], a[6]
	}
	if a[0] > a[3] {
		a[3] = a[0]
	}
	if a[3] > a[6] {
		a[6] = a[3]
	}
	if a[1] > a[4] {
		a[1], a[4] = a[4], a[1]
	}
	if a[4] > a[7] {
		a[4] = a[7]
	}
	if a[1] > a[4] {
		a[4] = a[1]
	}
	if a[5] > a[8] {
		a[5] = a[8]
	}
	if a[2] > a[5] {
		a[2] = a[5]
	}
	if a[2] > a[4] {
		a[2], a[4] = a[4], a[2]
	}
	if a[4] > a[6] {
		a[4] = a[6]
	}
	if a[2] > a[4] {
		a[4] = a[2]
	}
	return a[4]
}
