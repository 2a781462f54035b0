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

package sep

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mlnoga/fluolight/internal/fits"
	"github.com/mlnoga/fluolight/internal/ops"
)

// pH of the first frame of an interleaved SEP acquisition
const (
	PH73 = "7.3"
	PH60 = "6.0"
)

// Splits an interleaved superecliptic pHluorin stack into total and intracellular fluorescence,
// optionally computing the surface fraction and projections
type OpSplitSEP struct {
	ops.OpBase
	PH1stFrame      string `json:"pH1stFrame"`
	CalcSurfaceImg  bool   `json:"calcSurfaceImg"`
	CalcProjections bool   `json:"calcProjections"`
}

var _ ops.Operator = (*OpSplitSEP)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpSplitSEPDefault() }) } // register the operator for JSON decoding

func NewOpSplitSEPDefault() *OpSplitSEP {
	return &OpSplitSEP{OpBase: ops.OpBase{Type: "splitSEP"}, PH1stFrame: PH73}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpSplitSEP) UnmarshalJSON(data []byte) error {
	type defaults OpSplitSEP
	def := defaults(*NewOpSplitSEPDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpSplitSEP(def)
	return nil
}

func (op *OpSplitSEP) Validate(in *ops.Inputs) error {
	if len(in.Images) < 1 {
		return ops.Invalid(op.Type, "missing input image")
	}
	if op.PH1stFrame != PH73 && op.PH1stFrame != PH60 {
		return ops.Invalid(op.Type, "unknown pH of first frame '%s'", op.PH1stFrame)
	}
	return ops.CheckNDim(op.Type, "input", in.Images[0], 3)
}

// Returns the first frame indices of total and intracellular fluorescence
func (op *OpSplitSEP) startFrames() (total, intra int32) {
	if op.PH1stFrame == PH60 {
		return 1, 0
	}
	return 0, 1
}

func (op *OpSplitSEP) Run(ctx context.Context, in *ops.Inputs, c *ops.Context, yield ops.Yield) error {
	img := in.Images[0]
	t0, t1 := op.startFrames()
	total := img.StrideFrames(t0, 2)
	total.Name = img.Name + "_total"
	intra := img.StrideFrames(t1, 2)
	intra.Name = img.Name + "_intra"
	fmt.Fprintf(c.Log, "%d: Split %d frames into %d total and %d intracellular frames\n", img.ID, img.Frames(), total.Frames(), intra.Frames())

	if err := yield(ops.NewImageResult(total, ops.ColormapTurbo)); err != nil {
		return err
	}
	if err := yield(ops.NewImageResult(intra, ops.ColormapTurbo)); err != nil {
		return err
	}

	if op.CalcProjections {
		if err := yield(projectionResult(total, img.Name+"_total-projection")); err != nil {
			return err
		}
		if err := yield(projectionResult(intra, img.Name+"_intra-projection")); err != nil {
			return err
		}
		mip := intra.MaxProjection()
		mip.Name = img.Name + "_intra-mip"
		if err := yield(ops.NewImageResult(mip, ops.ColormapTurbo)); err != nil {
			return err
		}
	}

	if op.CalcSurfaceImg {
		surface := Surface(total, intra)
		surface.Name = img.Name + "_surface"
		if err := yield(ops.NewImageResult(surface, ops.ColormapTurbo)); err != nil {
			return err
		}
		if op.CalcProjections {
			if err := yield(projectionResult(surface, img.Name+"_surface-projection")); err != nil {
				return err
			}
		}
	}
	return nil
}

// Returns total minus intracellular fluorescence over the frames both stacks have in common
func Surface(total, intra *fits.Image) *fits.Image {
	numT := total.Frames()
	if intra.Frames() < numT {
		numT = intra.Frames()
	}
	res := fits.NewImageFromNaxisn([]int32{total.Width(), total.Height(), numT}, nil)
	res.ID = total.ID
	for i := range res.Data {
		res.Data[i] = total.Data[i] - intra.Data[i]
	}
	return res
}

// Returns the difference of maximum and mean projection, a map of transient intensity increases
func ProjectionDiff(img *fits.Image) *fits.Image {
	res := img.MaxProjection()
	mean := img.MeanProjection()
	for i, m := range mean.Data {
		res.Data[i] -= m
	}
	return res
}

func projectionResult(img *fits.Image, name string) *ops.Result {
	proj := ProjectionDiff(img)
	proj.Name = name
	return ops.NewImageResult(proj, ops.ColormapRedGreen)
}
