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
	"container/heap"
	"math"
)

// Compact watershed segmentation of a 2D image from labeled markers, restricted to the mask.
// Pixels are flooded 4-connected in order of priority image value + compactness * euclidean
// distance to the marker pixel the flood started from, ties broken by insertion order.
// Returns labels with 0 outside the mask and for unreached pixels
func Watershed(data []float32, width int, markers []int32, mask []bool, compactness float64) []int32 {
	height := len(data) / width
	out := make([]int32, len(data))
	q := &wsQueue{}
	age := 0
	for i, m := range markers {
		if m > 0 && (mask == nil || mask[i]) {
			out[i] = m
			heap.Push(q, wsElem{value: float64(data[i]), age: age, index: i, source: i})
			age++
		}
	}

	offsets := [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}
	for q.Len() > 0 {
		e := heap.Pop(q).(wsElem)
		if compactness > 0 {
			if out[e.index] != 0 && e.index != e.source {
				continue
			}
			out[e.index] = out[e.source]
		}
		x, y := e.index%width, e.index/width
		sx, sy := e.source%width, e.source/width
		for _, o := range offsets {
			nx, ny := x+o[0], y+o[1]
			if nx < 0 || nx >= width || ny < 0 || ny >= height {
				continue
			}
			n := ny*width + nx
			if (mask != nil && !mask[n]) || out[n] != 0 {
				continue
			}
			v := float64(data[n])
			if compactness > 0 {
				dx, dy := float64(nx-sx), float64(ny-sy)
				v += compactness * math.Sqrt(dx*dx+dy*dy)
			} else {
				if v < e.value {
					v = e.value
				}
				out[n] = out[e.index]
			}
			heap.Push(q, wsElem{value: v, age: age, index: n, source: e.source})
			age++
		}
	}
	return out
}

type wsElem struct {
	value  float64
	age    int
	index  int
	source int
}

// Min-heap on value, then age
type wsQueue []wsElem

func (q wsQueue) Len() int { return len(q) }
func (q wsQueue) Less(i, j int) bool {
	if q[i].value != q[j].value {
		return q[i].value < q[j].value
	}
	return q[i].age < q[j].age
}
func (q wsQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *wsQueue) Push(x interface{}) { *q = append(*q, x.(wsElem)) }
func (q *wsQueue) Pop() interface{} {
	old := *q
	e := old[len(old)-1]
	*q = old[:len(old)-1]
	return e
}
