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

// Finds local maxima of a 2D image. A pixel is a peak if it equals the maximum over the
// (2*minDistance+1)^2 window around it, exceeds the threshold max(min(data), thresholdRel*max(data)),
// and lies at least minDistance pixels from the border. Peaks are then visited in order of
// decreasing intensity, and peaks closer than minDistance (chessboard distance) to an already
// accepted peak are dropped. Returns the pixel indices of the accepted peaks in that order
func PeakLocalMax(data []float32, width int, minDistance int, thresholdRel float32) []int {
	height := len(data) / width
	if len(data) == 0 {
		return nil
	}
	if minDistance < 1 {
		minDistance = 1
	}
	min, max := data[0], data[0]
	for _, d := range data {
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	threshold := min
	if t := thresholdRel * max; thresholdRel > 0 && t > threshold {
		threshold = t
	}

	windowMax := maxFilter(data, width, minDistance)
	candidates := []int{}
	for y := minDistance; y < height-minDistance; y++ {
		for x := minDistance; x < width-minDistance; x++ {
			idx := y*width + x
			if d := data[idx]; d == windowMax[idx] && d > threshold {
				candidates = append(candidates, idx)
			}
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return data[candidates[i]] > data[candidates[j]] })

	accepted := []int{}
	for _, c := range candidates {
		cx, cy := c%width, c/width
		keep := true
		for _, a := range accepted {
			dx, dy := abs(cx-a%width), abs(cy-a/width)
			if dx < minDistance && dy < minDistance {
				keep = false
				break
			}
		}
		if keep {
			accepted = append(accepted, c)
		}
	}
	return accepted
}

// Maximum filter over a (2r+1)^2 window, with border pixels repeated beyond the edge.
// Separable in x and y
func maxFilter(data []float32, width, r int) []float32 {
	height := len(data) / width
	tmp := make([]float32, len(data))
	res := make([]float32, len(data))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			m := data[y*width+clamp(x-r, width)]
			for dx := -r + 1; dx <= r; dx++ {
				if v := data[y*width+clamp(x+dx, width)]; v > m {
					m = v
				}
			}
			tmp[y*width+x] = m
		}
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			m := tmp[clamp(y-r, height)*width+x]
			for dy := -r + 1; dy <= r; dy++ {
				if v := tmp[clamp(y+dy, height)*width+x]; v > m {
					m = v
				}
			}
			res[y*width+x] = m
		}
	}
	return res
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

// Sets the given pixel indices in a new mask of the given size
func MaskFromIndices(indices []int, size int) []bool {
	res := make([]bool, size)
	for _, i := range indices {
		res[i] = true
	}
	return res
}
