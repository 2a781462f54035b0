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
	"testing"
)

func TestPercentile(t *testing.T) {
	data := []float32{5, 1, 4, 2, 3}
	cases := []struct {
		p, want float32
	}{
		{0, 1}, {100, 5}, {50, 3}, {25, 2}, {10, 1.4}, {0.5, 1.02}, {75, 4},
	}
	for _, c := range cases {
		got := Percentile(data, c.p)
		if math.Abs(float64(got-c.want)) > 1e-5 {
			t.Errorf("Percentile(%v)=%v; want %v", c.p, got, c.want)
		}
	}
	// input must stay untouched
	if data[0] != 5 || data[4] != 3 {
		t.Errorf("data modified: %v", data)
	}
	if got := Median([]float32{4, 1, 3, 2}); got != 2.5 {
		t.Errorf("Median=%v; want 2.5", got)
	}
	if got := Percentile([]float32{float32(math.NaN()), 7}, 50); got != 7 {
		t.Errorf("Percentile with NaN=%v; want 7", got)
	}
}

func TestOtsuBimodal(t *testing.T) {
	data := make([]float32, 0, 200)
	for i := 0; i < 100; i++ {
		data = append(data, 10+float32(i%5))
		data = append(data, 100+float32(i%7))
	}
	th := Otsu(data)
	if th <= 13 || th >= 100 {
		t.Errorf("Otsu=%v; want between the modes", th)
	}
	if got := Otsu([]float32{3, 3, 3}); got != 3 {
		t.Errorf("Otsu(constant)=%v; want 3", got)
	}
}

func TestHistogram(t *testing.T) {
	bins := make([]int32, 4)
	Histogram([]float32{0, 0.9, 1, 2.5, 4, -1, 9}, 0, 4, bins)
	want := []int32{3, 1, 1, 2}
	for i := range want {
		if bins[i] != want[i] {
			t.Errorf("bins=%v; want %v", bins, want)
			break
		}
	}
}

func TestSummarize(t *testing.T) {
	traces := [][]float64{
		{1, 10},
		{2, 10},
		{3, 10},
		{6, 10},
	}
	center, spread, err := Summarize(traces, SummarySE)
	if err != nil {
		t.Fatal(err)
	}
	// mean 3, population std sqrt(3.5)
	if center[0] != 3 || math.Abs(spread[0]-math.Sqrt(3.5)/2) > 1e-9 {
		t.Errorf("se=(%v,%v); want (3,%v)", center[0], spread[0], math.Sqrt(3.5)/2)
	}
	if spread[1] != 0 {
		t.Errorf("se of constant column=%v; want 0", spread[1])
	}

	center, spread, err = Summarize(traces, SummaryIQR)
	if err != nil {
		t.Fatal(err)
	}
	// q25=1.75, q75=3.75
	if math.Abs(center[0]-2.5) > 1e-6 || math.Abs(spread[0]-2) > 1e-6 {
		t.Errorf("iqr=(%v,%v); want (2.5,2)", center[0], spread[0])
	}

	center, spread, err = Summarize(traces, SummaryCI)
	if err != nil {
		t.Fatal(err)
	}
	// t(0.975, 3) = 3.182446, sample std sqrt(14/3)
	want := 3.182446 * math.Sqrt(14.0/3) / 2
	if center[0] != 3 || math.Abs(spread[0]-want) > 1e-4 {
		t.Errorf("ci=(%v,%v); want (3,%v)", center[0], spread[0], want)
	}

	_, spread, err = Summarize(traces[:1], SummaryCI)
	if err != nil || spread[0] != 0 {
		t.Errorf("single trace spread=%v err=%v; want 0, nil", spread, err)
	}
	if _, _, err = Summarize(traces, "sd"); err == nil {
		t.Errorf("expected error for unknown method")
	}
	if _, _, err = Summarize([][]float64{{1}, {1, 2}}, SummarySE); err == nil {
		t.Errorf("expected error for ragged traces")
	}
}

func TestSummarizeIQRPrecision(t *testing.T) {
	// odd values above 2^24 are not representable as float32
	traces := [][]float64{{16777221}, {16777217}, {16777219}}
	center, spread, err := Summarize(traces, SummaryIQR)
	if err != nil {
		t.Fatal(err)
	}
	if center[0] != 16777219 || spread[0] != 2 {
		t.Errorf("iqr=(%v,%v); want (16777219,2)", center[0], spread[0])
	}
}

func TestPercentile64(t *testing.T) {
	data := []float64{4, math.NaN(), 1, 3, 2}
	tests := []struct {
		p, want float64
	}{
		{0, 1}, {25, 1.75}, {50, 2.5}, {100, 4}, {150, 4},
	}
	for _, test := range tests {
		if got := Percentile64(data, test.p); math.Abs(got-test.want) > 1e-12 {
			t.Errorf("p%v=%v; want %v", test.p, got, test.want)
		}
	}
	if data[0] != 4 {
		t.Errorf("data modified: %v", data)
	}
	if got := Percentile64(nil, 50); got != 0 {
		t.Errorf("empty=%v; want 0", got)
	}
}
