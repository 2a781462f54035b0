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
	"sort"
	"testing"

	"github.com/valyala/fastrand"
)

func TestMedianFilterEvenKernel(t *testing.T) {
	data := []float32{1, 2, 3, 4}
	out := make([]float32, 4)
	MedianFilter(out, data, 2, 2)
	want := []float32{1, 2, 3, 3}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out=%v; want %v", out, want)
			break
		}
	}
}

func TestMedianFilterRemovesSpike(t *testing.T) {
	data := make([]float32, 5*5)
	for i := range data {
		data[i] = 7
	}
	data[12] = 1000
	out := make([]float32, len(data))
	MedianFilter(out, data, 5, 3)
	for i, v := range out {
		if v != 7 {
			t.Errorf("out[%d]=%v; want 7", i, v)
		}
	}
}

// Compares the filter against a direct evaluation with sorting
func TestMedianFilterMatchesBruteForce(t *testing.T) {
	rng := fastrand.RNG{}
	w, h := 7, 6
	data := make([]float32, w*h)
	for i := range data {
		data[i] = float32(rng.Uint32n(50))
	}
	for _, k := range []int{2, 3, 4, 5} {
		out := make([]float32, len(data))
		MedianFilter(out, data, int32(w), k)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				window := []float32{}
				for dy := -(k / 2); dy <= k-1-k/2; dy++ {
					for dx := -(k / 2); dx <= k-1-k/2; dx++ {
						window = append(window, data[mirror(y+dy, h)*w+mirror(x+dx, w)])
					}
				}
				sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })
				if want := window[len(window)/2]; out[y*w+x] != want {
					t.Errorf("k=%d (%d,%d)=%v; want %v", k, x, y, out[y*w+x], want)
				}
			}
		}
	}
}

func TestMirror(t *testing.T) {
	for _, c := range [][3]int{{-1, 4, 0}, {-2, 4, 1}, {4, 4, 3}, {5, 4, 2}, {2, 4, 2}, {-3, 2, 1}} {
		if got := mirror(c[0], c[1]); got != c[2] {
			t.Errorf("mirror(%d,%d)=%d; want %d", c[0], c[1], got, c[2])
		}
	}
}
