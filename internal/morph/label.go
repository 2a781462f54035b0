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
	"sort"
)

// Labels the 8-connected components of the mask with 1..n in raster order of their first pixel.
// Background is 0. Returns the labels and n
func Label(mask []bool, width int) (labels []int32, n int32) {
	height := len(mask) / width
	labels = make([]int32, len(mask))
	stack := []int{}
	for start, m := range mask {
		if !m || labels[start] != 0 {
			continue
		}
		n++
		labels[start] = n
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := idx%width, idx/width
			for dy := -1; dy <= 1; dy++ {
				ny := y + dy
				if ny < 0 || ny >= height {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					nx := x + dx
					if nx < 0 || nx >= width {
						continue
					}
					nidx := ny*width + nx
					if mask[nidx] && labels[nidx] == 0 {
						labels[nidx] = n
						stack = append(stack, nidx)
					}
				}
			}
		}
	}
	return labels, n
}

// Returns the maximum label value
func MaxLabel(labels []int32) int32 {
	max := int32(0)
	for _, l := range labels {
		if l > max {
			max = l
		}
	}
	return max
}

// Returns the sorted distinct positive label values
func UniqueLabels(labels []int32) []int32 {
	seen := map[int32]bool{}
	for _, l := range labels {
		if l > 0 {
			seen[l] = true
		}
	}
	res := make([]int32, 0, len(seen))
	for l := range seen {
		res = append(res, l)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

// Properties of one labeled region
type Region struct {
	Label      int32
	Area       int
	MinX, MinY int // bounding box, inclusive
	MaxX, MaxY int // bounding box, exclusive
	CentroidX  float64
	CentroidY  float64
	Indices    []int // pixel indices in raster order
}

// Computes the properties of all regions with positive labels, sorted by label
func RegionProps(labels []int32, width int) []Region {
	byLabel := map[int32]*Region{}
	for idx, l := range labels {
		if l <= 0 {
			continue
		}
		x, y := idx%width, idx/width
		r, ok := byLabel[l]
		if !ok {
			r = &Region{Label: l, MinX: x, MinY: y, MaxX: x + 1, MaxY: y + 1}
			byLabel[l] = r
		}
		r.Area++
		r.CentroidX += float64(x)
		r.CentroidY += float64(y)
		r.Indices = append(r.Indices, idx)
		if x < r.MinX {
			r.MinX = x
		}
		if x+1 > r.MaxX {
			r.MaxX = x + 1
		}
		if y+1 > r.MaxY {
			r.MaxY = y + 1
		}
	}
	res := make([]Region, 0, len(byLabel))
	for _, r := range byLabel {
		r.CentroidX /= float64(r.Area)
		r.CentroidY /= float64(r.Area)
		res = append(res, *r)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Label < res[j].Label })
	return res
}

// Converts float pixel data of a label layer into integer labels. Values are truncated, negatives are background
func LabelsFromFloats(data []float32) []int32 {
	res := make([]int32, len(data))
	for i, d := range data {
		if d > 0 {
			res[i] = int32(d)
		}
	}
	return res
}

// Converts integer labels into float pixel data for storage in an image
func LabelsToFloats(labels []int32) []float32 {
	res := make([]float32, len(labels))
	for i, l := range labels {
		res[i] = float32(l)
	}
	return res
}
