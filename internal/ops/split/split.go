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

package split

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mlnoga/fluolight/internal/filter"
	"github.com/mlnoga/fluolight/internal/fits"
	"github.com/mlnoga/fluolight/internal/median"
	"github.com/mlnoga/fluolight/internal/ops"
)

// Order of the two leading axes of a 4D stack, slowest first
const (
	StackOrderTCXY = "TCXY" // frame-major, Naxisn [X,Y,C,T]
	StackOrderCTXY = "CTXY" // channel-major, Naxisn [X,Y,T,C]
)

// Percentile subtracted from each frame as background
const backgroundPercentile = 0.5

// Splits a 3D or 4D stack into per-channel 3D stacks and preprocesses them:
// frame cropping, median filter, background subtraction and photobleaching correction
type OpSplitChannels struct {
	ops.OpBase
	StackOrder               string              `json:"stackOrder"`
	MedianFilter             bool                `json:"medianFilter"`
	MedianKernel             int                 `json:"medianKernel"`
	BackgroundSubtraction    bool                `json:"backgroundSubtraction"`
	PhotobleachingCorrection bool                `json:"photobleachingCorrection"`
	CorrectionMethod         filter.BleachMethod `json:"correctionMethod"`
	DropFrames               bool                `json:"dropFrames"`
	FramesRange              []int32             `json:"framesRange"`
}

var _ ops.Operator = (*OpSplitChannels)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpSplitChannelsDefault() }) } // register the operator for JSON decoding

func NewOpSplitChannelsDefault() *OpSplitChannels {
	return &OpSplitChannels{
		OpBase:                ops.OpBase{Type: "splitChannels"},
		StackOrder:            StackOrderTCXY,
		MedianFilter:          true,
		MedianKernel:          2,
		BackgroundSubtraction: true,
		CorrectionMethod:      filter.BleachExp,
		FramesRange:           []int32{0, 10},
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpSplitChannels) UnmarshalJSON(data []byte) error {
	type defaults OpSplitChannels
	def := defaults(*NewOpSplitChannelsDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpSplitChannels(def)
	return nil
}

func (op *OpSplitChannels) channelFirst() bool { return op.StackOrder == StackOrderCTXY }

// Number of channels and frames of the input in the configured stack order
func (op *OpSplitChannels) shape(img *fits.Image) (numC, numT int32) {
	if img.NDim() == 3 {
		return 1, img.Naxisn[2]
	}
	if op.channelFirst() {
		return img.Naxisn[3], img.Naxisn[2]
	}
	return img.Naxisn[2], img.Naxisn[3]
}

func (op *OpSplitChannels) Validate(in *ops.Inputs) error {
	if len(in.Images) < 1 {
		return ops.Invalid(op.Type, "missing input image")
	}
	img := in.Images[0]
	if err := ops.CheckNDim(op.Type, "input", img, 3, 4); err != nil {
		return err
	}
	if op.StackOrder != StackOrderTCXY && op.StackOrder != StackOrderCTXY {
		return ops.Invalid(op.Type, "unknown stack order '%s'", op.StackOrder)
	}
	if op.MedianFilter && op.MedianKernel < 1 {
		return ops.Invalid(op.Type, "median kernel %d must be positive", op.MedianKernel)
	}
	if op.PhotobleachingCorrection && !op.CorrectionMethod.Valid() {
		return ops.Invalid(op.Type, "unknown photobleaching correction method '%s'", op.CorrectionMethod)
	}
	if op.DropFrames {
		if len(op.FramesRange) != 2 {
			return ops.Invalid(op.Type, "frames range needs 2 elements, has %d", len(op.FramesRange))
		}
		_, numT := op.shape(img)
		start, end := op.FramesRange[0], op.FramesRange[1]
		if start < 0 || end > numT || start >= end {
			return ops.Invalid(op.Type, "invalid frames range [%d,%d) for %d frames", start, end, numT)
		}
	}
	return nil
}

func (op *OpSplitChannels) Run(ctx context.Context, in *ops.Inputs, c *ops.Context, yield ops.Yield) error {
	img := in.Images[0]
	numC, _ := op.shape(img)
	if img.NDim() == 4 {
		c.Notify.Infof("%s: Ch. split and preprocessing mode, shape %s", img.Name, img.DimensionsToString())
	} else {
		c.Notify.Infof("%s: Image already has 3 dimensions, preprocessing only mode", img.Name)
	}

	for ch := int32(0); ch < numC; ch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		chImg := img
		if img.NDim() == 4 {
			var err error
			if chImg, err = img.Channel(ch, op.channelFirst()); err != nil {
				return err
			}
		} else {
			chImg = img.Clone()
		}
		fmt.Fprintf(c.Log, "%d: Ch. %d preprocessing\n", img.ID, ch)
		res, err := op.Preprocess(chImg, c)
		if err != nil {
			return err
		}
		res.Name = op.OutputName(img.Name, ch)
		if err := yield(ops.NewImageResult(res, ops.ColormapTurbo)); err != nil {
			return err
		}
	}
	return nil
}

// Returns the output name for the given channel, including the frame range if frames are dropped
func (op *OpSplitChannels) OutputName(name string, ch int32) string {
	if op.DropFrames {
		name = fmt.Sprintf("%s_%d-%d", name, op.FramesRange[0], op.FramesRange[1])
	}
	return fmt.Sprintf("%s_ch%d", name, ch)
}

// Applies the configured preprocessing steps to a single-channel 3D stack
func (op *OpSplitChannels) Preprocess(img *fits.Image, c *ops.Context) (res *fits.Image, err error) {
	res = img
	if op.DropFrames {
		if res, err = res.CropFrames(op.FramesRange[0], op.FramesRange[1]); err != nil {
			return nil, err
		}
		fmt.Fprintf(c.Log, "%d: Kept frames [%d,%d)\n", img.ID, op.FramesRange[0], op.FramesRange[1])
	}
	width := res.Width()
	numT := int(res.Frames())

	if op.MedianFilter {
		filtered := fits.NewImageFromImage(res)
		err = ops.ParallelFrames(numT, c.MaxThreads, func(t int) error {
			median.MedianFilter(filtered.PlaneData(int32(t)), res.PlaneData(int32(t)), width, op.MedianKernel)
			return nil
		})
		if err != nil {
			return nil, err
		}
		res = filtered
		fmt.Fprintf(c.Log, "%d: Median filter with kernel %d\n", img.ID, op.MedianKernel)
	}

	if op.BackgroundSubtraction {
		err = ops.ParallelFrames(numT, c.MaxThreads, func(t int) error {
			filter.SubtractPercentile(res.PlaneData(int32(t)), backgroundPercentile)
			return nil
		})
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(c.Log, "%d: Subtracted %g%% percentile background\n", img.ID, backgroundPercentile)
	}

	if op.PhotobleachingCorrection {
		var r2 float64
		res, r2, err = filter.BleachCorrect(res, op.CorrectionMethod, c.Log)
		if err != nil {
			return nil, err
		}
		c.Notify.Infof("%s photobleaching correction, r^2=%.4f", op.CorrectionMethod, r2)
	}
	return res, nil
}
