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

// Package morph implements binary morphology, connected component labeling,
// distance transforms, peak detection and watershed segmentation on 2D masks
// stored row by row with a given width.
package morph

// A pixel offset of a structuring element
type Offset struct {
	DX, DY int
}

// Returns the offsets of a flat disk-shaped structuring element of the given radius,
// i.e. all (dx,dy) with dx*dx+dy*dy<=r*r. Radius 0 is the single center pixel
func Disk(r int) []Offset {
	if r < 0 {
		r = 0
	}
	res := make([]Offset, 0, (2*r+1)*(2*r+1))
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				res = append(res, Offset{dx, dy})
			}
		}
	}
	return res
}

// Mirrors index i into [0,n) with edge repetition (d c b a | a b c d)
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

// Erodes the mask with the given structuring element. Pixels beyond the border mirror the image
func Erode(mask []bool, width int, se []Offset) []bool {
	return morph(mask, width, se, true)
}

// Dilates the mask with the given structuring element. Pixels beyond the border mirror the image
func Dilate(mask []bool, width int, se []Offset) []bool {
	return morph(mask, width, se, false)
}

// Morphological opening, i.e. erosion followed by dilation
func Open(mask []bool, width int, se []Offset) []bool {
	return Dilate(Erode(mask, width, se), width, se)
}

func morph(mask []bool, width int, se []Offset, erode bool) []bool {
	height := len(mask) / width
	res := make([]bool, len(mask))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			// erosion: all pixels under the element set. dilation: any pixel set
			v := erode
			for _, o := range se {
				m := mask[mirror(y+o.DY, height)*width+mirror(x+o.DX, width)]
				if m != erode {
					v = !erode
					break
				}
			}
			res[y*width+x] = v
		}
	}
	return res
}

// Fills holes in the mask, i.e. background regions not 4-connected to the image border
func FillHoles(mask []bool, width int) []bool {
	height := len(mask) / width
	outside := make([]bool, len(mask))
	stack := make([]int, 0, 2*(width+height))
	push := func(idx int) {
		if !mask[idx] && !outside[idx] {
			outside[idx] = true
			stack = append(stack, idx)
		}
	}
	for x := 0; x < width; x++ {
		push(x)
		push((height-1)*width + x)
	}
	for y := 0; y < height; y++ {
		push(y * width)
		push(y*width + width - 1)
	}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := idx%width, idx/width
		if x > 0 {
			push(idx - 1)
		}
		if x < width-1 {
			push(idx + 1)
		}
		if y > 0 {
			push(idx - width)
		}
		if y < height-1 {
			push(idx + width)
		}
	}

	res := make([]bool, len(mask))
	for i := range res {
		res[i] = !outside[i]
	}
	return res
}
