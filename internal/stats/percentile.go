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
	"sort"

	"github.com/mlnoga/fluolight/internal/qsort"
)

// Returns the p-th percentile (0..100) of the data, linearly interpolating between
// the closest ranks at position p/100*(n-1). NaNs are ignored. Does not modify the data
func Percentile(data []float32, p float32) float32 {
	buf := make([]float32, 0, len(data))
	for _, d := range data {
		if !math.IsNaN(float64(d)) {
			buf = append(buf, d)
		}
	}
	return percentileInPlace(buf, p)
}

// Like Percentile, but reorders the given buffer and does not filter NaNs
func percentileInPlace(buf []float32, p float32) float32 {
	n := len(buf)
	if n == 0 {
		return 0
	}
	if p < 0 {
		p = 0
	} else if p > 100 {
		p = 100
	}
	pos := float64(p) / 100 * float64(n-1)
	lower := int(math.Floor(pos))
	frac := float32(pos - float64(lower))

	lo := qsort.QSelectFloat32(buf, lower+1)
	if frac == 0 || lower+1 >= n {
		return lo
	}
	// the next rank is the minimum of the upper partition
	hi := buf[lower+1]
	for _, v := range buf[lower+2:] {
		if v < hi {
			hi = v
		}
	}
	return lo + frac*(hi-lo)
}

// Returns the median of the data, averaging the two central values for even lengths
func Median(data []float32) float32 {
	return Percentile(data, 50)
}

// Returns the p-th percentile (0..100) of float64 data with the interpolation of Percentile.
// NaNs are ignored. Does not modify the data
func Percentile64(data []float64, p float64) float64 {
	sorted := make([]float64, 0, len(data))
	for _, d := range data {
		if !math.IsNaN(d) {
			sorted = append(sorted, d)
		}
	}
	sort.Float64s(sorted)
	return PercentileSorted64(sorted, p)
}

// Like Percentile64, for data already sorted in ascending order and free of NaNs
func PercentileSorted64(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	p = math.Max(0, math.Min(100, p))
	pos := p / 100 * float64(n-1)
	lower := int(math.Floor(pos))
	if lower+1 >= n {
		return sorted[n-1]
	}
	frac := pos - float64(lower)
	return sorted[lower] + frac*(sorted[lower+1]-sorted[lower])
}
