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

package filter

import (
	"fmt"
	"io"
	"math"

	"github.com/mlnoga/fluolight/internal/fits"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// Photobleaching decay model
type BleachMethod string

const (
	BleachExp   BleachMethod = "exp"   // a*exp(-b*t)
	BleachBiExp BleachMethod = "biExp" // a*exp(-b*t) + c*exp(-d*t)
)

func (m BleachMethod) Valid() bool { return m == BleachExp || m == BleachBiExp }

// Evaluates the decay model with the given parameters at time t
func (m BleachMethod) Eval(params []float64, t float64) float64 {
	v := params[0] * math.Exp(-params[1]*t)
	if m == BleachBiExp {
		v += params[2] * math.Exp(-params[3]*t)
	}
	return v
}

// Fits the decay model to the given profile with Nelder-Mead least squares.
// Returns the fitted parameters and the coefficient of determination r^2 of fit and profile
func FitBleaching(profile []float64, m BleachMethod) (params []float64, r2 float64, err error) {
	if !m.Valid() {
		return nil, 0, fmt.Errorf("unknown photobleaching correction method '%s'", m)
	}
	minLen := 3
	if m == BleachBiExp {
		minLen = 5
	}
	if len(profile) < minLen {
		return nil, 0, fmt.Errorf("need at least %d frames for %s fit, have %d", minLen, m, len(profile))
	}
	p0 := profile[0]
	if !(p0 > 0) {
		return nil, 0, fmt.Errorf("initial intensity %g is not positive", p0)
	}

	// fit the profile normalized to its first value
	norm := make([]float64, len(profile))
	for i, p := range profile {
		norm[i] = p / p0
	}
	rate := 1e-3
	if last := norm[len(norm)-1]; last > 0 && last < 1 {
		rate = -math.Log(last) / float64(len(norm)-1)
	}
	x0 := []float64{1, rate}
	if m == BleachBiExp {
		x0 = []float64{0.5, 2 * rate, 0.5, 0.5 * rate}
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			sumSq := 0.0
			for t, y := range norm {
				d := y - m.Eval(x, float64(t))
				sumSq += d * d
			}
			return sumSq
		},
	}
	result, err := optimize.Minimize(problem, x0, nil, &optimize.NelderMead{})
	if err != nil {
		return nil, 0, err
	}

	params = append([]float64(nil), result.X...)
	params[0] *= p0
	if m == BleachBiExp {
		params[2] *= p0
	}

	fitted := make([]float64, len(profile))
	for t := range fitted {
		fitted[t] = m.Eval(params, float64(t))
	}
	r := stat.Correlation(profile, fitted, nil)
	if math.IsNaN(r) {
		r = 0
	}
	return params, r * r, nil
}

// Corrects photobleaching of a 3D stack [X,Y,T]. The decay is fitted to the mean intensity
// of each frame within the process mask of the time-averaged image, and frame t is scaled by
// fit(0)/fit(t). Returns the corrected stack and the r^2 of the fit
func BleachCorrect(img *fits.Image, m BleachMethod, logWriter io.Writer) (*fits.Image, float64, error) {
	if len(img.Naxisn) != 3 {
		return nil, 0, fmt.Errorf("%s: photobleaching correction needs 3 axes, got %d", img.Name, len(img.Naxisn))
	}
	width := int(img.Naxisn[0])
	mask := ProcessMask(img.MeanProjection().Data, width)

	numT := img.Frames()
	profile := make([]float64, numT)
	for t := int32(0); t < numT; t++ {
		profile[t] = MaskedMean(img.PlaneData(t), mask)
	}
	params, r2, err := FitBleaching(profile, m)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %s", img.Name, err.Error())
	}
	fmt.Fprintf(logWriter, "%d: %s photobleaching fit params %.4g r^2=%.3f\n", img.ID, m, params, r2)

	res := img.Clone()
	f0 := m.Eval(params, 0)
	for t := int32(0); t < numT; t++ {
		ft := m.Eval(params, float64(t))
		if !(ft > 0) {
			continue
		}
		scale := float32(f0 / ft)
		plane := res.PlaneData(t)
		for i := range plane {
			plane[i] *= scale
		}
	}
	return res, r2, nil
}
