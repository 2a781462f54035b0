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

package fret

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/mlnoga/fluolight/internal/filter"
	"github.com/mlnoga/fluolight/internal/fits"
	"github.com/mlnoga/fluolight/internal/ops"
)

// Output types of the FRET calculation
const (
	OutputEapp  = "Eapp"  // apparent FRET efficiency
	OutputEcorr = "Ecorr" // apparent efficiency corrected for acceptor photobleaching
	OutputFc    = "Fc"    // sensitized emission
)

// Computes apparent FRET efficiency from donor excitation/donor emission (DD), donor
// excitation/acceptor emission (DA) and acceptor excitation/acceptor emission (AA) stacks
type OpEFRET struct {
	ops.OpBase
	A              float32 `json:"a"` // acceptor bleedthrough
	D              float32 `json:"d"` // donor crosstalk
	G              float32 `json:"G"` // gauge factor
	OutputType     string  `json:"outputType"`
	SaveNormalized bool    `json:"saveNormalized"`
}

var _ ops.Operator = (*OpEFRET)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpEFRETDefault() }) } // register the operator for JSON decoding

func NewOpEFRETDefault() *OpEFRET {
	return &OpEFRET{
		OpBase:         ops.OpBase{Type: "eFRET"},
		A:              0.122,
		D:              0.794,
		G:              3.6,
		OutputType:     OutputEapp,
		SaveNormalized: true,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpEFRET) UnmarshalJSON(data []byte) error {
	type defaults OpEFRET
	def := defaults(*NewOpEFRETDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpEFRET(def)
	return nil
}

func (op *OpEFRET) Validate(in *ops.Inputs) error {
	if len(in.Images) < 3 {
		return ops.Invalid(op.Type, "needs DD, DA and AA images, got %d", len(in.Images))
	}
	for i, role := range []string{"DD", "DA", "AA"} {
		if err := ops.CheckNDim(op.Type, role, in.Images[i], 3); err != nil {
			return err
		}
	}
	dd := in.Images[0]
	for _, img := range in.Images[1:3] {
		if !fits.EqualInt32Slice(img.Naxisn, dd.Naxisn) {
			return ops.Invalid(op.Type, "image %s has dimensions %s, %s has %s", img.Name, img.DimensionsToString(), dd.Name, dd.DimensionsToString())
		}
	}
	switch op.OutputType {
	case OutputEapp, OutputEcorr, OutputFc:
	default:
		return ops.Invalid(op.Type, "unknown output type '%s'", op.OutputType)
	}
	return nil
}

func (op *OpEFRET) Run(ctx context.Context, in *ops.Inputs, c *ops.Context, yield ops.Yield) error {
	dd, da, aa := in.Images[0], in.Images[1], in.Images[2]
	aaMean := aa.MeanProjection()
	mask := filter.ProcessMask(aaMean.Data, int(aa.Width()))

	res, err := op.Apply(dd, da, aa, mask, c)
	if err != nil {
		return err
	}
	res.Name = strings.ReplaceAll(aa.Name, "_ch3", "") + "_" + op.OutputType
	if err := yield(ops.NewImageResult(res, ops.ColormapTurbo)); err != nil {
		return err
	}

	if op.SaveNormalized {
		norm := res.Clone()
		norm.Name = res.Name + "_norm"
		ps := norm.PlaneSize()
		for t := int32(0); t < norm.Frames(); t++ {
			ops.MultiplyByNormalized(norm.Data[t*ps:(t+1)*ps], aaMean.Data)
		}
		if err := yield(ops.NewImageResult(norm, ops.ColormapTurbo)); err != nil {
			return err
		}
	}
	return nil
}

// Computes the configured output type per frame. Efficiencies are set to zero outside the mask
// and wherever they are undefined
func (op *OpEFRET) Apply(dd, da, aa *fits.Image, mask []bool, c *ops.Context) (*fits.Image, error) {
	res := fits.NewImageFromImage(dd)
	ps := int(dd.PlaneSize())

	// reference acceptor intensity for the photobleaching correction
	aa0 := make([]float32, ps)
	numRef := aa.Frames()
	if numRef > 2 {
		numRef = 2
	}
	for t := int32(0); t < numRef; t++ {
		for i, v := range aa.PlaneData(t) {
			aa0[i] += v / float32(numRef)
		}
	}

	err := ops.ParallelFrames(int(dd.Frames()), c.MaxThreads, func(i int) error {
		t := int32(i)
		ddP, daP, aaP, out := dd.PlaneData(t), da.PlaneData(t), aa.PlaneData(t), res.PlaneData(t)
		for j := 0; j < ps; j++ {
			fc := SensitizedEmission(ddP[j], daP[j], aaP[j], op.A, op.D)
			if op.OutputType == OutputFc {
				out[j] = fc
				continue
			}
			if !mask[j] {
				out[j] = 0
				continue
			}
			e := ApparentEfficiency(fc, ddP[j], op.G)
			if op.OutputType == OutputEcorr {
				e = finiteOrZero(e * aa0[j] / aaP[j])
			}
			out[j] = e
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(c.Log, "%d: Computed %s with a=%.3f d=%.3f G=%.3f\n", dd.ID, op.OutputType, op.A, op.D, op.G)
	return res, nil
}

// Returns the sensitized acceptor emission corrected for acceptor bleedthrough a and
// donor crosstalk d, clipped at zero
func SensitizedEmission(dd, da, aa, a, d float32) float32 {
	fc := da - a*aa - d*dd
	if fc < 0 || fc != fc {
		return 0
	}
	return fc
}

// Returns the apparent FRET efficiency R/(R+G) with R=Fc/DD, or 0 where undefined
func ApparentEfficiency(fc, dd, g float32) float32 {
	r := fc / dd
	return finiteOrZero(r / (r + g))
}

func finiteOrZero(v float32) float32 {
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		return 0
	}
	return v
}
