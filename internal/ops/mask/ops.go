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

package mask

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mlnoga/fluolight/internal/filter"
	"github.com/mlnoga/fluolight/internal/morph"
	"github.com/mlnoga/fluolight/internal/ops"
)

// Fixed parameters of the dot detection
const (
	dotPeakMinDistance = 2
	dotCompactness     = 10
)

// Detects bright dots in the maximum projection of a stack and separates touching dots
// with a compact watershed of the distance transform
type OpDotMask struct {
	ops.OpBase
	BackgroundLevel float32 `json:"backgroundLevel"` // percentile, 50..99
	DetectionLevel  float32 `json:"detectionLevel"`  // percent of maximum, 1..100
	MinimalDistance int     `json:"minimalDistance"`
	MaskDiameter    int     `json:"maskDiameter"`
}

var _ ops.Operator = (*OpDotMask)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpDotMaskDefault() }) } // register the operator for JSON decoding

func NewOpDotMaskDefault() *OpDotMask {
	return &OpDotMask{
		OpBase:          ops.OpBase{Type: "dotMask"},
		BackgroundLevel: 75,
		DetectionLevel:  25,
		MinimalDistance: 2,
		MaskDiameter:    5,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpDotMask) UnmarshalJSON(data []byte) error {
	type defaults OpDotMask
	def := defaults(*NewOpDotMaskDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpDotMask(def)
	return nil
}

func (op *OpDotMask) Validate(in *ops.Inputs) error {
	if len(in.Images) < 1 {
		return ops.Invalid(op.Type, "missing input image")
	}
	if op.BackgroundLevel < 50 || op.BackgroundLevel > 99 {
		return ops.Invalid(op.Type, "background level %g outside [50,99]", op.BackgroundLevel)
	}
	if op.DetectionLevel < 1 || op.DetectionLevel > 100 {
		return ops.Invalid(op.Type, "detection level %g outside [1,100]", op.DetectionLevel)
	}
	if op.MinimalDistance < 1 || op.MaskDiameter < 0 {
		return ops.Invalid(op.Type, "minimal distance %d or mask diameter %d out of range", op.MinimalDistance, op.MaskDiameter)
	}
	return ops.CheckNDim(op.Type, "input", in.Images[0], 3)
}

func (op *OpDotMask) Run(ctx context.Context, in *ops.Inputs, c *ops.Context, yield ops.Yield) error {
	img := in.Images[0]
	labels := op.Apply(img.MaxProjection().Data, int(img.Width()))
	n := morph.MaxLabel(labels)
	logLabels(c, img, n, "dots")
	c.Notify.Infof("%s: detected %d dots labels", img.Name, n)
	res := NewLabelsImage(labels, img.Width(), img.Height(), img.ID, img.Name+"_dots-labels")
	return yield(ops.NewLabelsResult(res))
}

// Computes dot labels from a 2D maximum projection
func (op *OpDotMask) Apply(mip []float32, width int) []int32 {
	detection := append([]float32(nil), mip...)
	filter.SubtractPercentile(detection, op.BackgroundLevel)

	peaks := morph.PeakLocalMax(detection, width, dotPeakMinDistance, op.DetectionLevel/100)
	peaksMask := morph.MaskFromIndices(peaks, len(detection))
	peaksMask = morph.Dilate(peaksMask, width, morph.Disk(op.MaskDiameter))

	dist := morph.DistanceTransform(peaksMask, width)
	centers := morph.PeakLocalMax(dist, width, op.MinimalDistance, 0)
	markers, _ := morph.Label(morph.MaskFromIndices(centers, len(dist)), width)

	negDist := make([]float32, len(dist))
	for i, d := range dist {
		negDist[i] = -d
	}
	return morph.Watershed(negDist, width, markers, peaksMask, dotCompactness)
}

// Detects intensity increases in a detection frame, either within each ROI of an existing
// label layer or over the whole frame
type OpUpMask struct {
	ops.OpBase
	DetFrameIndex   int32   `json:"detFrameIndex"` // negative for maximum projection
	DetTh           float32 `json:"detTh"`
	InROIsDet       bool    `json:"inROIsDet"`
	InROIsDetMethod string  `json:"inROIsDetMethod"`
	InROIsDetThCorr float32 `json:"inROIsDetThCorr"`
	FinalOpeningFp  int     `json:"finalOpeningFp"`
	FinalDilationFp int     `json:"finalDilationFp"`
	SaveTotalUpMask bool    `json:"saveTotalUpMask"`
}

var _ ops.Operator = (*OpUpMask)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpUpMaskDefault() }) } // register the operator for JSON decoding

func NewOpUpMaskDefault() *OpUpMask {
	return &OpUpMask{
		OpBase:          ops.OpBase{Type: "upMask"},
		DetFrameIndex:   2,
		DetTh:           0.25,
		InROIsDet:       true,
		InROIsDetMethod: MethodOtsu,
		InROIsDetThCorr: 0.1,
		FinalOpeningFp:  1,
		FinalDilationFp: 0,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpUpMask) UnmarshalJSON(data []byte) error {
	type defaults OpUpMask
	def := defaults(*NewOpUpMaskDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpUpMask(def)
	return nil
}

// Threshold correction applied when detecting over the whole frame
const wholeFrameThCorr = 0.1

func (op *OpUpMask) Validate(in *ops.Inputs) error {
	if len(in.Images) < 1 {
		return ops.Invalid(op.Type, "missing input image")
	}
	img := in.Images[0]
	if err := ops.CheckNDim(op.Type, "input", img, 3); err != nil {
		return err
	}
	if err := checkFrameIndex(op.Type, img, op.DetFrameIndex); err != nil {
		return err
	}
	if op.InROIsDetMethod != MethodOtsu && op.InROIsDetMethod != MethodThreshold {
		return ops.Invalid(op.Type, "unknown detection method '%s'", op.InROIsDetMethod)
	}
	if op.FinalOpeningFp < 0 || op.FinalDilationFp < 0 {
		return ops.Invalid(op.Type, "footprints must not be negative")
	}
	if op.InROIsDet {
		if len(in.Labels) < 1 {
			return ops.Invalid(op.Type, "ROI scoped detection needs a ROI label layer")
		}
		return ops.CheckSpatial(op.Type, img, in.Labels[0])
	}
	return nil
}

func (op *OpUpMask) Run(ctx context.Context, in *ops.Inputs, c *ops.Context, yield ops.Yield) error {
	img := in.Images[0]
	width := int(img.Width())
	detection := DetectionFrame(img, op.DetFrameIndex)

	var labels []int32
	var upMask []bool
	if op.InROIsDet {
		labels = op.DetectInROIs(detection, width, morph.LabelsFromFloats(in.Labels[0].Data))
		upMask = make([]bool, len(labels))
		for i, l := range labels {
			upMask[i] = l > 0
		}
	} else {
		upMask = UpDetection(detection, width, MethodThreshold, op.DetTh, wholeFrameThCorr, op.FinalOpeningFp, op.FinalDilationFp)
		labels, _ = morph.Label(upMask, width)
	}

	_, n := morph.Label(upMask, width)
	logLabels(c, img, n, "up")
	c.Notify.Infof("%s: detected %d labels", img.Name, n)

	res := NewLabelsImage(labels, img.Width(), img.Height(), img.ID, img.Name+"_up-labels")
	if err := yield(ops.NewLabelsResult(res)); err != nil {
		return err
	}
	if op.SaveTotalUpMask {
		m := NewMaskImage(upMask, img.Width(), img.Height(), img.ID, img.Name+"_up-mask")
		return yield(&ops.Result{Name: m.Name, Kind: ops.KindMask, Image: m})
	}
	return nil
}

// Runs the detection within the bounding box of each ROI. Detected pixels inside the ROI
// receive the ROI's label, all others stay background
func (op *OpUpMask) DetectInROIs(detection []float32, width int, rois []int32) []int32 {
	res := make([]int32, len(rois))
	for _, r := range morph.RegionProps(rois, width) {
		boxW, boxH := r.MaxX-r.MinX, r.MaxY-r.MinY
		box := make([]float32, boxW*boxH)
		for y := 0; y < boxH; y++ {
			copy(box[y*boxW:(y+1)*boxW], detection[(r.MinY+y)*width+r.MinX:(r.MinY+y)*width+r.MaxX])
		}
		boxMask := UpDetection(box, boxW, op.InROIsDetMethod, op.DetTh, op.InROIsDetThCorr, op.FinalOpeningFp, op.FinalDilationFp)
		for y := 0; y < boxH; y++ {
			for x := 0; x < boxW; x++ {
				idx := (r.MinY+y)*width + r.MinX + x
				if boxMask[y*boxW+x] && rois[idx] == r.Label {
					res[idx] = r.Label
				}
			}
		}
	}
	return res
}

// Masking modes
const (
	ModeUp   = "up"
	ModeDown = "down"
)

// Builds labels of intensity increases or decreases in a detection frame, e.g. of a
// red-green series, by thresholding relative to the maximum absolute value
type OpMask struct {
	ops.OpBase
	DetFrameIndex    int32   `json:"detFrameIndex"` // negative for maximum projection
	MaskingMode      string  `json:"maskingMode"`
	UpThreshold      float32 `json:"upThreshold"`
	DownThreshold    float32 `json:"downThreshold"`
	OpeningFootprint int     `json:"openingFootprint"`
}

var _ ops.Operator = (*OpMask)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpMaskDefault() }) } // register the operator for JSON decoding

func NewOpMaskDefault() *OpMask {
	return &OpMask{
		OpBase:        ops.OpBase{Type: "mask"},
		DetFrameIndex: 2,
		MaskingMode:   ModeUp,
		UpThreshold:   0.2,
		DownThreshold: -0.9,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpMask) UnmarshalJSON(data []byte) error {
	type defaults OpMask
	def := defaults(*NewOpMaskDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpMask(def)
	return nil
}

func (op *OpMask) Validate(in *ops.Inputs) error {
	if len(in.Images) < 1 {
		return ops.Invalid(op.Type, "missing input image")
	}
	img := in.Images[0]
	if err := ops.CheckNDim(op.Type, "input", img, 3); err != nil {
		return err
	}
	if op.MaskingMode != ModeUp && op.MaskingMode != ModeDown {
		return ops.Invalid(op.Type, "unknown masking mode '%s'", op.MaskingMode)
	}
	if op.OpeningFootprint < 0 {
		return ops.Invalid(op.Type, "opening footprint %d must not be negative", op.OpeningFootprint)
	}
	return checkFrameIndex(op.Type, img, op.DetFrameIndex)
}

func (op *OpMask) Run(ctx context.Context, in *ops.Inputs, c *ops.Context, yield ops.Yield) error {
	img := in.Images[0]
	labels, n := op.Apply(DetectionFrame(img, op.DetFrameIndex), int(img.Width()))
	logLabels(c, img, n, op.MaskingMode)
	c.Notify.Infof("%s: detected %d \"%s\" labels", img.Name, n, op.MaskingMode)
	name := fmt.Sprintf("%s_%s-labels", img.Name, op.MaskingMode)
	return yield(ops.NewLabelsResult(NewLabelsImage(labels, img.Width(), img.Height(), img.ID, name)))
}

// Thresholds, cleans up and labels the detection frame
func (op *OpMask) Apply(detection []float32, width int) (labels []int32, n int32) {
	maxAbs := MaxAbs(detection)
	mask := make([]bool, len(detection))
	if op.MaskingMode == ModeDown {
		level := maxAbs * op.DownThreshold
		for i, d := range detection {
			mask[i] = d <= level
		}
	} else {
		level := maxAbs * op.UpThreshold
		for i, d := range detection {
			mask[i] = d >= level
		}
	}
	mask = Cleanup(mask, width)
	if op.OpeningFootprint != 0 {
		mask = morph.Open(mask, width, morph.Disk(op.OpeningFootprint))
		mask = morph.Dilate(mask, width, morph.Disk(1))
	}
	return morph.Label(mask, width)
}
