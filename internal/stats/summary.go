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
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Method for summarizing a set of traces into a center line and a spread
type SummaryMethod string

const (
	SummarySE  SummaryMethod = "se"  // mean and standard error
	SummaryIQR SummaryMethod = "iqr" // median and interquartile range
	SummaryCI  SummaryMethod = "ci"  // mean and 95% confidence interval half width
)

func (m SummaryMethod) Valid() bool {
	return m == SummarySE || m == SummaryIQR || m == SummaryCI
}

// Confidence level for SummaryCI
const ciAlpha = 0.05

// Summarizes n equally long traces column by column. Returns the center line and the spread
// for error bars. The spread is 0 for fewer than two traces
func Summarize(traces [][]float64, method SummaryMethod) (center, spread []float64, err error) {
	if len(traces) == 0 {
		return nil, nil, fmt.Errorf("no traces to summarize")
	}
	if !method.Valid() {
		return nil, nil, fmt.Errorf("unknown summary method '%s'", method)
	}
	numT := len(traces[0])
	for i, tr := range traces {
		if len(tr) != numT {
			return nil, nil, fmt.Errorf("trace %d has length %d, expected %d", i, len(tr), numT)
		}
	}

	n := len(traces)
	var tQuantile float64
	if method == SummaryCI && n > 1 {
		tQuantile = distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}.Quantile(1 - ciAlpha/2)
	}

	center, spread = make([]float64, numT), make([]float64, numT)
	column := make([]float64, n)
	for t := 0; t < numT; t++ {
		for i, tr := range traces {
			column[i] = tr[t]
		}
		switch method {
		case SummarySE:
			center[t] = stat.Mean(column, nil)
			if n > 1 {
				spread[t] = math.Sqrt(stat.PopVariance(column, nil)) / math.Sqrt(float64(n))
			}
		case SummaryIQR:
			sort.Float64s(column)
			center[t] = PercentileSorted64(column, 50)
			if n > 1 {
				spread[t] = PercentileSorted64(column, 75) - PercentileSorted64(column, 25)
			}
		case SummaryCI:
			center[t] = stat.Mean(column, nil)
			if n > 1 {
				spread[t] = tQuantile * math.Sqrt(stat.Variance(column, nil)) / math.Sqrt(float64(n))
			}
		}
	}
	return center, spread, nil
}
