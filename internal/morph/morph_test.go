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
	"testing"
)

// Parses a mask from rows of '#' and '.'
func parseMask(rows ...string) ([]bool, int) {
	w := len(rows[0])
	res := make([]bool, 0, w*len(rows))
	for _, r := range rows {
		for _, c := range r {
			res = append(res, c == '#')
		}
	}
	return res, w
}

func count(mask []bool) int {
	n := 0
	for _, m := range mask {
		if m {
			n++
		}
	}
	return n
}

func TestDisk(t *testing.T) {
	for _, c := range []struct{ r, n int }{{0, 1}, {1, 5}, {2, 13}, {5, 81}} {
		if got := len(Disk(c.r)); got != c.n {
			t.Errorf("len(Disk(%d))=%d; want %d", c.r, got, c.n)
		}
	}
}

func TestErodeDilateBlock(t *testing.T) {
	mask, w := parseMask(
		".........",
		".#####...",
		".#####...",
		".#####...",
		".#####...",
		".#####...",
		".........",
		".........",
	)
	eroded := Erode(mask, w, Disk(2))
	if n := count(eroded); n != 1 || !eroded[3*w+3] {
		t.Errorf("eroded count=%d center=%v; want 1, true", n, eroded[3*w+3])
	}
	dilated := Dilate(eroded, w, Disk(1))
	if n := count(dilated); n != 5 {
		t.Errorf("dilated count=%d; want 5", n)
	}
	for _, idx := range []int{2*w + 3, 4*w + 3, 3*w + 2, 3*w + 4} {
		if !dilated[idx] {
			t.Errorf("dilated[%d] not set", idx)
		}
	}
	opened := Open(mask, w, Disk(1))
	if n := count(opened); n != 21 {
		t.Errorf("opened count=%d; want 21", n)
	}
}

func TestFillHoles(t *testing.T) {
	mask, w := parseMask(
		"#####.",
		"#..#..",
		"#####.",
		"......",
	)
	filled := FillHoles(mask, w)
	if !filled[w+1] || !filled[w+2] {
		t.Errorf("hole not filled")
	}
	if filled[w+4] || filled[5] {
		t.Errorf("border-connected background filled")
	}
}

func TestLabel(t *testing.T) {
	mask, w := parseMask(
		"##...#",
		"..#..#",
		"......",
		"#....#",
	)
	labels, n := Label(mask, w)
	if n != 4 {
		t.Fatalf("n=%d; want 4", n)
	}
	// the diagonal pixel joins the first component
	if labels[0] != 1 || labels[w+2] != 1 {
		t.Errorf("8-connected labels %d %d; want 1 1", labels[0], labels[w+2])
	}
	if labels[5] != 2 || labels[w+5] != 2 || labels[3*w] != 3 || labels[3*w+5] != 4 {
		t.Errorf("labels=%v", labels)
	}
	if MaxLabel(labels) != n {
		t.Errorf("max label %d; want %d", MaxLabel(labels), n)
	}
	if u := UniqueLabels(labels); len(u) != 4 || u[0] != 1 || u[3] != 4 {
		t.Errorf("unique=%v", u)
	}

	regions := RegionProps(labels, w)
	if len(regions) != 4 {
		t.Fatalf("regions=%d; want 4", len(regions))
	}
	r := regions[0]
	if r.Area != 3 || r.MinX != 0 || r.MinY != 0 || r.MaxX != 3 || r.MaxY != 2 {
		t.Errorf("region 1=%+v", r)
	}
}

func TestDistanceTransform(t *testing.T) {
	mask, w := parseMask(
		".......",
		".#####.",
		".#####.",
		".#####.",
		".......",
	)
	d := DistanceTransform(mask, w)
	cases := []struct {
		idx  int
		want float64
	}{
		{0, 0}, {w + 1, 1}, {2*w + 2, 2}, {2*w + 3, 2}, {w + 3, 1},
	}
	for _, c := range cases {
		if math.Abs(float64(d[c.idx])-c.want) > 1e-6 {
			t.Errorf("d[%d]=%v; want %v", c.idx, d[c.idx], c.want)
		}
	}

	// a single background pixel in the corner gives euclidean distances
	full := make([]bool, 16)
	for i := 1; i < 16; i++ {
		full[i] = true
	}
	d = DistanceTransform(full, 4)
	if math.Abs(float64(d[15])-math.Sqrt(18)) > 1e-5 {
		t.Errorf("corner distance=%v; want %v", d[15], math.Sqrt(18))
	}
	if got := DistanceTransform([]bool{true, true}, 2); !math.IsInf(float64(got[0]), 1) {
		t.Errorf("no background: %v; want +Inf", got)
	}
}

func TestPeakLocalMax(t *testing.T) {
	w := 12
	data := make([]float32, w*9)
	data[4*w+3] = 10
	data[4*w+5] = 8 // within min distance of the stronger peak
	data[4*w+9] = 6
	data[0] = 20    // on the border
	data[7*w+8] = 1 // below relative threshold
	peaks := PeakLocalMax(data, w, 2, 0.25)
	if len(peaks) != 2 || peaks[0] != 4*w+3 || peaks[1] != 4*w+9 {
		t.Errorf("peaks=%v; want [%d %d]", peaks, 4*w+3, 4*w+9)
	}
}

func TestWatershedSplitsTouchingDisks(t *testing.T) {
	w, h := 15, 7
	mask := make([]bool, w*h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			mask[y*w+x] = true
		}
	}
	markers := make([]int32, w*h)
	markers[3*w+3] = 1
	markers[3*w+11] = 2
	dist := DistanceTransform(mask, w)
	neg := make([]float32, len(dist))
	for i, d := range dist {
		neg[i] = -d
	}
	labels := Watershed(neg, w, markers, mask, 10)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			l := labels[y*w+x]
			if x <= 6 && l != 1 {
				t.Errorf("(%d,%d)=%d; want 1", x, y, l)
			}
			if x >= 8 && l != 2 {
				t.Errorf("(%d,%d)=%d; want 2", x, y, l)
			}
		}
	}
	if labels[0] != 0 {
		t.Errorf("outside mask labeled %d", labels[0])
	}
}
