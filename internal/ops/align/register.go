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

package align

import (
	"fmt"
	"io"
	"math"

	"github.com/mlnoga/fluolight/internal/coord"
	"github.com/mlnoga/fluolight/internal/fits"
	"github.com/mlnoga/fluolight/internal/stats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// Similarity metrics for intensity based registration
const (
	MetricMI  = "mi"  // mutual information
	MetricNCC = "ncc" // normalized cross-correlation
)

const (
	miBins         = 32
	minOverlap     = 0.25 // minimum fraction of fixed pixels sampled inside the moving image
	minLevelSize   = 16   // minimum width and height of a pyramid level
	maxLevels      = 3
	translationDiv = 10 // optimizer units per pixel of translation
)

// Intensity based registration problem on one pyramid level. Evaluates the similarity of the
// fixed image and the moving image sampled at S(x), where S maps fixed to moving coordinates
type level struct {
	fixed, moving []float32
	width, height int32
	metric        string
	fixedNorm     []float32 // fixed intensities scaled to [0,1]
	movMin        float32
	movScale      float32
}

func newLevel(fixed, moving *fits.Image, metric string) *level {
	l := &level{
		fixed: fixed.Data, moving: moving.Data,
		width: fixed.Width(), height: fixed.Height(),
		metric: metric,
	}
	fMin, fMax := stats.MinMax(fixed.Data)
	l.fixedNorm = make([]float32, len(fixed.Data))
	if fMax > fMin {
		for i, v := range fixed.Data {
			l.fixedNorm[i] = (v - fMin) / (fMax - fMin)
		}
	}
	mMin, mMax := stats.MinMax(moving.Data)
	l.movMin = mMin
	if mMax > mMin {
		l.movScale = 1 / (mMax - mMin)
	}
	return l
}

// Returns the negative similarity of the images under the sampling transform s
func (l *level) cost(s coord.Transform2D) float64 {
	n := int(l.width * l.height)
	xs, ys := make([]float64, 0, n), make([]float64, 0, n)
	for row := int32(0); row < l.height; row++ {
		for col := int32(0); col < l.width; col++ {
			p := s.Apply(coord.Point2D{X: float32(col), Y: float32(row)})
			v := fits.Bilinear(l.moving, l.width, l.height, p.X, p.Y)
			if v != v {
				continue
			}
			idx := col + row*l.width
			if l.metric == MetricNCC {
				xs = append(xs, float64(l.fixed[idx]))
				ys = append(ys, float64(v))
			} else {
				xs = append(xs, float64(l.fixedNorm[idx]))
				ys = append(ys, float64((v-l.movMin)*l.movScale))
			}
		}
	}
	if float64(len(xs)) < minOverlap*float64(n) {
		return 1
	}
	if l.metric == MetricNCC {
		r := stat.Correlation(xs, ys, nil)
		if math.IsNaN(r) {
			return 1
		}
		return -r
	}
	return -MutualInformation(xs, ys, miBins)
}

// Returns the mutual information of two equally long samples of values in [0,1], estimated
// from a joint histogram with the given number of bins per axis. Each value is split linearly
// between its two nearest bin centers, which keeps the estimate continuous under subpixel shifts
func MutualInformation(xs, ys []float64, bins int) float64 {
	joint := make([]float64, bins*bins)
	px, py := make([]float64, bins), make([]float64, bins)
	for i := range xs {
		xl, xf := softBin(xs[i], bins)
		yl, yf := softBin(ys[i], bins)
		for _, a := range [2]struct {
			b int
			w float64
		}{{xl, 1 - xf}, {xl + 1, xf}} {
			if a.w == 0 {
				continue
			}
			px[a.b] += a.w
			for _, c := range [2]struct {
				b int
				w float64
			}{{yl, 1 - yf}, {yl + 1, yf}} {
				if c.w == 0 {
					continue
				}
				joint[a.b*bins+c.b] += a.w * c.w
			}
		}
		py[yl] += 1 - yf
		if yf > 0 {
			py[yl+1] += yf
		}
	}
	n := float64(len(xs))
	mi := 0.0
	for bx := 0; bx < bins; bx++ {
		for by := 0; by < bins; by++ {
			j := joint[bx*bins+by]
			if j <= 0 {
				continue
			}
			mi += j / n * math.Log(j*n/(px[bx]*py[by]))
		}
	}
	return mi
}

// Returns the lower bin and the weight of the upper bin for value v in [0,1]. Values
// beyond the outermost bin centers go entirely into the outermost bins
func softBin(v float64, bins int) (lower int, frac float64) {
	pos := v*float64(bins) - 0.5
	lower = int(math.Floor(pos))
	if lower < 0 {
		return 0, 0
	}
	if lower >= bins-1 {
		return bins - 1, 0
	}
	return lower, pos - float64(lower)
}

// Minimizes the cost over the free parameters, starting from s. With translationOnly
// only C and F are optimized
func (l *level) optimize(s coord.Transform2D, translationOnly bool) coord.Transform2D {
	toTransform := func(x []float64) coord.Transform2D {
		if translationOnly {
			t := s
			t.C, t.F = float32(x[0]*translationDiv), float32(x[1]*translationDiv)
			return t
		}
		return coord.Transform2D{
			A: float32(1 + x[0]), B: float32(x[1]), C: float32(x[2] * translationDiv),
			D: float32(x[3]), E: float32(1 + x[4]), F: float32(x[5] * translationDiv),
		}
	}
	x0 := []float64{float64(s.C) / translationDiv, float64(s.F) / translationDiv}
	if !translationOnly {
		x0 = []float64{float64(s.A) - 1, float64(s.B), float64(s.C) / translationDiv,
			float64(s.D), float64(s.E) - 1, float64(s.F) / translationDiv}
	}

	problem := optimize.Problem{Func: func(x []float64) float64 { return l.cost(toTransform(x)) }}
	settings := &optimize.Settings{
		FuncEvaluations: 1500,
		Converger:       &optimize.FunctionConverge{Absolute: 1e-7, Iterations: 60},
	}
	initial := l.cost(s)
	result, _ := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{SimplexSize: 0.1})
	if result == nil || result.F >= initial {
		return s
	}
	return toTransform(result.X)
}

// Registers the moving image to the fixed image with a multi-resolution affine search.
// Returns the transformation mapping moving image coordinates to fixed image coordinates,
// suitable for Image.Project of the moving image
func Register(fixed, moving *fits.Image, metric string, logWriter io.Writer) (coord.Transform2D, error) {
	if fixed.NDim() != 2 || !fits.EqualInt32Slice(fixed.Naxisn, moving.Naxisn) {
		return coord.Transform2D{}, fmt.Errorf("registration needs two 2D images of equal size, got %s and %s",
			fixed.DimensionsToString(), moving.DimensionsToString())
	}
	if metric != MetricMI && metric != MetricNCC {
		return coord.Transform2D{}, fmt.Errorf("unknown registration metric '%s'", metric)
	}

	// binning factors of the pyramid levels, coarsest first
	factors := []int32{1}
	for f := int32(2); len(factors) < maxLevels; f *= 2 {
		if fixed.Width()/f < minLevelSize || fixed.Height()/f < minLevelSize {
			break
		}
		factors = append([]int32{f}, factors...)
	}

	s := coord.IdentityTransform2D()
	for i, f := range factors {
		fixedL, movingL := fits.NewImageBinNxN(fixed, f), fits.NewImageBinNxN(moving, f)
		l := newLevel(fixedL, movingL, metric)
		if i == 0 {
			s = l.optimize(s, true)
		}
		s = l.optimize(s, false)
		fmt.Fprintf(logWriter, "Registration level 1/%d: %s\n", f, s.String())
		if i+1 < len(factors) {
			s = s.Unbin(f / factors[i+1])
		}
	}
	return s.Invert()
}
