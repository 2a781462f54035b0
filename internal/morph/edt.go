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

package morph

import (
	"math"
)

// Exact euclidean distance transform. Returns for each set pixel of the mask the distance
// to the nearest unset pixel, and 0 for unset pixels. If the mask has no unset pixels,
// all distances are +Inf
func DistanceTransform(mask []bool, width int) []float32 {
	height := len(mask) / width
	inf := math.Inf(1)
	f := make([]float64, len(mask))
	for i, m := range mask {
		if m {
			f[i] = inf
		}
	}

	// squared distances along columns, then along rows
	n := width
	if height > n {
		n = height
	}
	col, out := make([]float64, n), make([]float64, n)
	v, z := make([]int, n), make([]float64, n+1)
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			col[y] = f[y*width+x]
		}
		edt1D(out[:height], col[:height], v, z)
		for y := 0; y < height; y++ {
			f[y*width+x] = out[y]
		}
	}
	for y := 0; y < height; y++ {
		row := f[y*width : (y+1)*width]
		copy(col[:width], row)
		edt1D(out[:width], col[:width], v, z)
		copy(row, out[:width])
	}

	res := make([]float32, len(mask))
	for i, d := range f {
		res[i] = float32(math.Sqrt(d))
	}
	return res
}

// One-dimensional squared distance transform of sampled function f by lower envelope of parabolas,
// after Felzenszwalb and Huttenlocher. v and z are scratch buffers of length n and n+1
func edt1D(d, f []float64, v []int, z []float64) {
	n := len(f)
	// samples at infinity cannot anchor a parabola
	k := -1
	for q := 0; q < n; q++ {
		if math.IsInf(f[q], 1) {
			continue
		}
		if k < 0 {
			k = 0
			v[0] = q
			z[0] = math.Inf(-1)
			z[1] = math.Inf(1)
			continue
		}
		var s float64
		for {
			p := v[k]
			s = ((f[q] + float64(q*q)) - (f[p] + float64(p*p))) / float64(2*q-2*p)
			if s > z[k] {
				break
			}
			k--
		}
		k++
		v[k] = q
		z[k] = s
		z[k+1] = math.Inf(1)
	}
	if k < 0 {
		for q := range d {
			d[q] = math.Inf(1)
		}
		return
	}
	k = 0
	for q := 0; q < n; q++ {
		for z[k+1] < float64(q) {
			k++
		}
		dq := float64(q - v[k])
		d[q] = dq*dq + f[v[k]]
	}
}
