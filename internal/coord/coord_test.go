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

package coord

import (
	"math"
	"testing"
)

func near(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-4
}

func params(t Transform2D) []float32 {
	return []float32{t.A, t.B, t.C, t.D, t.E, t.F}
}

func TestInvertCompose(t *testing.T) {
	tr := Transform2D{1.1, 0.1, 3, -0.2, 0.9, -4}
	inv, err := tr.Invert()
	if err != nil {
		t.Fatalf("invert: %v", err)
	}
	id := inv.Compose(tr)
	want := IdentityTransform2D()
	got := params(id)
	for i, w := range params(want) {
		if !near(got[i], w) {
			t.Errorf("param %d=%v; want %v", i, got[i], w)
		}
	}

	p := Point2D{7, -2}
	q := tr.Apply(p)
	r := inv.Apply(q)
	if !near(r.X, p.X) || !near(r.Y, p.Y) {
		t.Errorf("roundtrip=%v; want %v", r, p)
	}
}

func TestInvertSingular(t *testing.T) {
	tr := Transform2D{1, 2, 0, 2, 4, 0}
	if _, err := tr.Invert(); err == nil {
		t.Errorf("expected error for singular matrix")
	}
}

func TestUnbin(t *testing.T) {
	// a shift of one binned pixel is n unbinned pixels
	tr := TranslationTransform2D(1, -2)
	u := tr.Unbin(4)
	p := u.Apply(Point2D{10, 10})
	if !near(p.X, 14) || !near(p.Y, 2) {
		t.Errorf("unbinned shift=%v; want (14, 2)", p)
	}
}
