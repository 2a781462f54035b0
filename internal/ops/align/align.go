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
	"context"
	"encoding/json"
	"fmt"

	"github.com/mlnoga/fluolight/internal/fits"
	"github.com/mlnoga/fluolight/internal/ops"
)

// Number of channels of a dual-view FRET stack: channels 0 and 2 are imaged through the
// offset light path, channels 1 and 3 through the reference path
const stackChannels = 4

// Registers the offset channels of a 4D stack to the reference channels, and applies the
// transformation to all frames of channels 0 and 2
type OpAlignStack struct {
	ops.OpBase
	UseReferenceImage bool   `json:"useReferenceImage"`
	InputCrop         int32  `json:"inputCrop"`
	OutputCrop        int32  `json:"outputCrop"`
	Metric            string `json:"metric"`
}

var _ ops.Operator = (*OpAlignStack)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpAlignStackDefault() }) } // register the operator for JSON decoding

func NewOpAlignStackDefault() *OpAlignStack {
	return &OpAlignStack{
		OpBase:     ops.OpBase{Type: "alignStack"},
		InputCrop:  25,
		OutputCrop: 20,
		Metric:     MetricMI,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpAlignStack) UnmarshalJSON(data []byte) error {
	type defaults OpAlignStack
	def := defaults(*NewOpAlignStackDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpAlignStack(def)
	return nil
}

func (op *OpAlignStack) Validate(in *ops.Inputs) error {
	if len(in.Images) < 1 {
		return ops.Invalid(op.Type, "missing offset image")
	}
	offset := in.Images[0]
	if err := ops.CheckNDim(op.Type, "offset", offset, 4); err != nil {
		return err
	}
	if offset.Channels() < stackChannels {
		return ops.Invalid(op.Type, "offset image %s has %d channels, needs %d", offset.Name, offset.Channels(), stackChannels)
	}
	if op.Metric != MetricMI && op.Metric != MetricNCC {
		return ops.Invalid(op.Type, "unknown registration metric '%s'", op.Metric)
	}
	if op.InputCrop < 0 || op.OutputCrop < 0 {
		return ops.Invalid(op.Type, "crops must not be negative")
	}
	w, h := offset.Width()-2*op.InputCrop, offset.Height()-2*op.InputCrop
	if w < minLevelSize || h < minLevelSize {
		return ops.Invalid(op.Type, "input crop %d too large for %dx%d pixels", op.InputCrop, offset.Width(), offset.Height())
	}
	if w-2*op.OutputCrop <= 0 || h-2*op.OutputCrop <= 0 {
		return ops.Invalid(op.Type, "output crop %d too large for %dx%d pixels", op.OutputCrop, w, h)
	}
	if op.UseReferenceImage {
		if len(in.Images) < 2 {
			return ops.Invalid(op.Type, "missing reference image")
		}
		ref := in.Images[1]
		if err := ops.CheckNDim(op.Type, "reference", ref, 3, 4); err != nil {
			return err
		}
		if ref.Width() != offset.Width() || ref.Height() != offset.Height() {
			return ops.Invalid(op.Type, "reference image %s is %dx%d, offset image is %dx%d", ref.Name, ref.Width(), ref.Height(), offset.Width(), offset.Height())
		}
		if ref.NDim() == 3 && ref.Frames() < 2 {
			return ops.Invalid(op.Type, "reference image %s needs 2 frames", ref.Name)
		}
		if ref.NDim() == 4 && ref.Channels() < stackChannels {
			return ops.Invalid(op.Type, "reference image %s has %d channels, needs %d", ref.Name, ref.Channels(), stackChannels)
		}
	}
	return nil
}

// Returns the fixed and moving images for registration: frames 1 and 0 of a 3D reference,
// else the time averages of channels 3 and 0 of a 4D stack
func registrationPair(img *fits.Image) (fixed, moving *fits.Image, err error) {
	if img.NDim() == 3 {
		return img.Plane(1), img.Plane(0), nil
	}
	ch3, err := img.Channel(3, false)
	if err != nil {
		return nil, nil, err
	}
	ch0, err := img.Channel(0, false)
	if err != nil {
		return nil, nil, err
	}
	return ch3.MeanProjection(), ch0.MeanProjection(), nil
}

func (op *OpAlignStack) Run(ctx context.Context, in *ops.Inputs, c *ops.Context, yield ops.Yield) error {
	offset, err := in.Images[0].CropBorder(op.InputCrop)
	if err != nil {
		return err
	}
	source := offset
	if op.UseReferenceImage {
		if source, err = in.Images[1].CropBorder(op.InputCrop); err != nil {
			return err
		}
	}
	fixed, moving, err := registrationPair(source)
	if err != nil {
		return err
	}
	trans, err := Register(fixed, moving, op.Metric, c.Log)
	if err != nil {
		return fmt.Errorf("%s: %s", offset.Name, err.Error())
	}
	fmt.Fprintf(c.Log, "%d: Registered with %s metric: %s\n", offset.ID, op.Metric, trans.String())
	if err := ctx.Err(); err != nil {
		return err
	}

	chans := make([]*fits.Image, stackChannels)
	err = ops.ParallelFrames(stackChannels, c.MaxThreads, func(ch int) error {
		img, err := offset.Channel(int32(ch), false)
		if err != nil {
			return err
		}
		if ch == 0 || ch == 2 {
			if img, err = img.Project(trans, 0); err != nil {
				return err
			}
		}
		chans[ch] = img
		return nil
	})
	if err != nil {
		return err
	}
	res, err := fits.NewImageFromChannels(chans)
	if err != nil {
		return err
	}
	if res, err = res.CropBorder(op.OutputCrop); err != nil {
		return err
	}
	res.ID, res.Name = offset.ID, in.Images[0].Name+"_xform"
	return yield(ops.NewImageResult(res, ops.ColormapTurbo))
}
