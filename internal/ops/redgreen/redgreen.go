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

package redgreen

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mlnoga/fluolight/internal/fits"
	"github.com/mlnoga/fluolight/internal/ops"
)

// Contrast limit factors relative to max |x| for the red-green display
const (
	limitNormalized = 0.3
	limitRaw        = 0.75
)

// Computes the frame difference series between a stimulus window and a preceding baseline window
type OpRedGreen struct {
	ops.OpBase
	LeftFrames     int32 `json:"leftFrames"`
	SpaceFrames    int32 `json:"spaceFrames"`
	RightFrames    int32 `json:"rightFrames"`
	NormalizeByInt bool  `json:"normalizeByInt"`
	SaveMIP        bool  `json:"saveMIP"`
}

var _ ops.Operator = (*OpRedGreen)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpRedGreenDefault() }) } // register the operator for JSON decoding

func NewOpRedGreenDefault() *OpRedGreen {
	return &OpRedGreen{
		OpBase:         ops.OpBase{Type: "redGreen"},
		LeftFrames:     1,
		SpaceFrames:    1,
		RightFrames:    1,
		NormalizeByInt: true,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpRedGreen) UnmarshalJSON(data []byte) error {
	type defaults OpRedGreen
	def := defaults(*NewOpRedGreenDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpRedGreen(def)
	return nil
}

// Number of output frames for an input of numT frames
func (op *OpRedGreen) OutputFrames(numT int32) int32 {
	return numT - (op.LeftFrames + op.SpaceFrames + op.RightFrames)
}

func (op *OpRedGreen) Validate(in *ops.Inputs) error {
	if len(in.Images) < 1 {
		return ops.Invalid(op.Type, "missing input image")
	}
	img := in.Images[0]
	if err := ops.CheckNDim(op.Type, "input", img, 3); err != nil {
		return err
	}
	if op.LeftFrames < 0 || op.SpaceFrames < 0 || op.RightFrames < 0 {
		return ops.Invalid(op.Type, "frame counts must not be negative")
	}
	if n := op.OutputFrames(img.Frames()); n <= 0 {
		return ops.Invalid(op.Type, "%d frames too few for windows %d/%d/%d", img.Frames(), op.LeftFrames, op.SpaceFrames, op.RightFrames)
	}
	return nil
}

func (op *OpRedGreen) Run(ctx context.Context, in *ops.Inputs, c *ops.Context, yield ops.Yield) error {
	img := in.Images[0]
	res, err := op.Apply(img, c)
	if err != nil {
		return err
	}
	if err := yield(op.result(res)); err != nil {
		return err
	}
	if op.SaveMIP {
		mip := res.MaxProjection()
		mip.Name = img.Name + "_red-green-MIP"
		if err := yield(op.result(mip)); err != nil {
			return err
		}
	}
	return nil
}

func (op *OpRedGreen) result(img *fits.Image) *ops.Result {
	limit := img.MaxAbs() * limitRaw
	if op.NormalizeByInt {
		limit = img.MaxAbs() * limitNormalized
	}
	return ops.NewImageResult(img, ops.ColormapRedGreen, -limit, limit)
}

// Computes the difference series. Frame i is the mean of frames [i+l+r, i+l+r+s] minus
// the mean of frames [i, i+l], optionally weighted by the normalized mean intensity
func (op *OpRedGreen) Apply(img *fits.Image, c *ops.Context) (*fits.Image, error) {
	numOut := op.OutputFrames(img.Frames())
	if numOut <= 0 {
		return nil, fmt.Errorf("%s: %d frames too few for red-green series", img.Name, img.Frames())
	}
	res := fits.NewImageFromNaxisn([]int32{img.Width(), img.Height(), numOut}, nil)
	res.ID, res.Name = img.ID, img.Name+"_red-green"
	ps := int(img.PlaneSize())

	err := ops.ParallelFrames(int(numOut), c.MaxThreads, func(i int) error {
		t := int32(i)
		base := meanFrames(img, t, t+op.LeftFrames+1)
		stimStart := t + op.LeftFrames + op.RightFrames
		stim := meanFrames(img, stimStart, stimStart+op.SpaceFrames+1)
		diff := res.PlaneData(t)
		for j := 0; j < ps; j++ {
			diff[j] = stim[j] - base[j]
		}
		if op.NormalizeByInt {
			norm := make([]float32, ps)
			for j := range norm {
				norm[j] = 0.5 * (base[j] + diff[j])
			}
			ops.MultiplyByNormalized(diff, norm)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(c.Log, "%d: Red-green series with %d frames from windows %d/%d/%d\n", img.ID, numOut, op.LeftFrames, op.SpaceFrames, op.RightFrames)
	return res, nil
}

// Returns the per-pixel mean of frames [start,end), clipped to the stack
func meanFrames(img *fits.Image, start, end int32) []float32 {
	if end > img.Frames() {
		end = img.Frames()
	}
	ps := img.PlaneSize()
	sums := make([]float32, ps)
	for t := start; t < end; t++ {
		for j, v := range img.PlaneData(t) {
			sums[j] += v
		}
	}
	if n := end - start; n > 0 {
		for j := range sums {
			sums[j] /= float32(n)
		}
	}
	return sums
}
