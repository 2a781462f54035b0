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

package qsort

import (
	"github.com/valyala/fastrand"
)

// Sorts the given array in place, ascending
func QSortFloat32(a []float32) {
	for len(a) > 1 {
		index := QPartitionFloat32(a)
		// recurse into the smaller half, loop over the larger one
		if index+1 < len(a)-index-1 {
			QSortFloat32(a[:index+1])
			a = a[index+1:]
		} else {
			QSortFloat32(a[index+1:])
			a = a[:index+1]
		}
	}
}

// Hoare partition around a random pivot. Returns index r such that a[:r+1]<=pivot<=a[r+1:]
func QPartitionFloat32(a []float32) int {
	left, right := 0, len(a)-1
	pivot := a[left+int(fastrand.Uint32n(uint32(right-left+1)))]
	l, r := left-1, right+1
	for {
		for {
			l++
			if a[l] >= pivot {
				break
			}
		}
		for {
			r--
			if a[r] <= pivot {
				break
			}
		}
		if l >= r {
			if r == right {
				r-- // pivot is the unique maximum, guarantee progress
			}
			return r
		}
		a[l], a[r] = a[r], a[l]
	}
}

// Selects the k-th smallest element of the array, counting from 1. Reorders the array
func QSelectFloat32(a []float32, k int) float32 {
	left, right := 0, len(a)-1
	for left < right {
		index := left + QPartitionFloat32(a[left:right+1])
		offset := index - left + 1
		if k <= offset {
			right = index
		} else {
			left = index + 1
			k -= offset
		}
	}
	return a[left]
}

// Returns the median of the array. For even lengths, the mean of the two central elements.
// Reorders the array
func QSelectMedianFloat32(a []float32) float32 {
	n := len(a)
	if n == 0 {
		return 0
	}
	upper := QSelectFloat32(a, (n>>1)+1)
	if n&1 != 0 {
		return upper
	}
	// after selection, all elements left of the upper median are smaller or equal
	lower := a[0]
	for _, v := range a[1 : n>>1] {
		if v > lower {
			lower = v
		}
	}
	return 0.5 * (lower + upper)
}

// Returns the element of the given rank, counting from 0, as used by rank filters. Reorders the array
func QSelectRankFloat32(a []float32, rank int) float32 {
	return QSelectFloat32(a, rank+1)
}
