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

package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"image/color"

	"github.com/mlnoga/fluolight/internal/fits"
	"github.com/mlnoga/fluolight/internal/morph"
	"github.com/mlnoga/fluolight/internal/ops"
	"github.com/mlnoga/fluolight/internal/plot"
	"github.com/mlnoga/fluolight/internal/render"
	"github.com/mlnoga/fluolight/internal/stats"
)

// Dock panel names
const (
	PanelROIs       = "ROIs Prof."
	PanelMultiImage = "Multiple Img Stat Prof."
	PanelMultiLabel = "Multiple Lab Stat Prof."
)

const timeLabel = "Time, s"

// Series colors of the summary plots
var summaryColors = []color.Color{
	color.NRGBA{0, 0, 0, 255},
	color.NRGBA{255, 0, 0, 255},
	color.NRGBA{0, 0, 255, 255},
}

// Common parameters of the profile extractors
type Params struct {
	TimeScale         float64 `json:"timeScale"`
	AbsoluteIntensity bool    `json:"absoluteIntensity"`
	DeltaFWin         int     `json:"deltaFWin"`
}

func defaultParams() Params {
	return Params{TimeScale: 5, DeltaFWin: 5}
}

func (p *Params) validate(op string) error {
	if p.DeltaFWin < 1 {
		return ops.Invalid(op, "ΔF window %d must be positive", p.DeltaFWin)
	}
	if p.TimeScale <= 0 {
		return ops.Invalid(op, "time scale %g must be positive", p.TimeScale)
	}
	return nil
}

func (p *Params) yLabel() string {
	if p.AbsoluteIntensity {
		return "Intensity, a.u."
	}
	return "ΔF/F0"
}

// Checks a 3D image against a label layer with at least one region
func checkImageLabels(op string, img, labels *fits.Image) error {
	if err := ops.CheckNDim(op, "input", img, 3); err != nil {
		return err
	}
	if err := ops.CheckSpatial(op, img, labels); err != nil {
		return err
	}
	if morph.MaxLabel(morph.LabelsFromFloats(labels.Data)) <= 0 {
		return ops.Invalid(op, "label layer %s has no regions", labels.Name)
	}
	return nil
}

// Plots per-ROI traces of one image for one label layer, optionally exporting them as CSV
type OpProfileLine struct {
	ops.OpBase
	Params
	DeltaFAmplitudeLim []float64 `json:"deltaFAmplitudeLim"` // [lo, hi], ΔF traces are plotted if min > -lo or max < hi
	ProfilesCrop       bool      `json:"profilesCrop"`
	ProfilesRange      []int     `json:"profilesRange"`
	SaveDataFrame      bool      `json:"saveDataFrame"`
	SaveROIsDistances  bool      `json:"saveROIsDistances"`
	SavingPath         string    `json:"savingPath"`
}

var _ ops.Operator = (*OpProfileLine)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpProfileLineDefault() }) } // register the operator for JSON decoding

func NewOpProfileLineDefault() *OpProfileLine {
	return &OpProfileLine{
		OpBase:             ops.OpBase{Type: "profileLine"},
		Params:             defaultParams(),
		DeltaFAmplitudeLim: []float64{10, 10},
		ProfilesRange:      []int{0, 10},
		SavingPath:         ".",
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpProfileLine) UnmarshalJSON(data []byte) error {
	type defaults OpProfileLine
	def := defaults(*NewOpProfileLineDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpProfileLine(def)
	return nil
}

func (op *OpProfileLine) Validate(in *ops.Inputs) error {
	if len(in.Images) < 1 || len(in.Labels) < 1 {
		return ops.Invalid(op.Type, "needs one image and one label layer")
	}
	img := in.Images[0]
	if err := checkImageLabels(op.Type, img, in.Labels[0]); err != nil {
		return err
	}
	if err := op.Params.validate(op.Type); err != nil {
		return err
	}
	if len(op.DeltaFAmplitudeLim) != 2 {
		return ops.Invalid(op.Type, "amplitude limits need 2 elements, have %d", len(op.DeltaFAmplitudeLim))
	}
	if op.ProfilesCrop {
		if len(op.ProfilesRange) != 2 {
			return ops.Invalid(op.Type, "profiles range needs 2 elements, has %d", len(op.ProfilesRange))
		}
		if s, e := op.ProfilesRange[0], op.ProfilesRange[1]; s < 0 || e > int(img.Frames()) || s >= e {
			return ops.Invalid(op.Type, "invalid profiles range [%d,%d) for %d frames", s, e, img.Frames())
		}
	}
	return nil
}

func (op *OpProfileLine) Run(ctx context.Context, in *ops.Inputs, c *ops.Context, yield ops.Yield) error {
	img, labelsImg := in.Images[0], in.Labels[0]
	labels := morph.LabelsFromFloats(labelsImg.Data)
	p, err := Extract(img, labels, op.DeltaFWin)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Log, "%d: Extracted %d profiles of %d frames from %s\n", img.ID, len(p.Labels), img.Frames(), labelsImg.Name)
	profiles := p.Selected(op.AbsoluteIntensity)
	timeLine := TimeLine(int(img.Frames()), op.TimeScale)

	if op.SaveDataFrame {
		var dist []float64
		if op.SaveROIsDistances {
			dist = Distances(labels, int(img.Width()), int(img.Height()), p.Labels)
			c.Notify.Infof("%s: center position (%d, %d)", img.Name, img.Height()/2, img.Width()/2)
		}
		name := ExportName(img.Name, labelsImg.Name, op.AbsoluteIntensity)
		fileName, err := WriteCSVFile(op.SavingPath, name, img.Name, profiles, dist, timeLine)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.Log, "%d: Wrote profiles to %s\n", img.ID, fileName)
	}

	fig := op.Figure(img.Name, labelsImg.Name, p.Labels, profiles, timeLine)
	return yield(&ops.Result{Name: PanelROIs, Kind: ops.KindPlot, Plot: fig})
}

// Builds the per-ROI line plot, applying the optional crop and the ΔF amplitude filter
func (op *OpProfileLine) Figure(imgName, labelsName string, ids []int32, profiles [][]float64, timeLine []float64) *plot.Figure {
	start, end := 0, len(timeLine)
	if op.ProfilesCrop {
		start, end = op.ProfilesRange[0], op.ProfilesRange[1]
	}
	lo, hi := op.DeltaFAmplitudeLim[0], op.DeltaFAmplitudeLim[1]
	fig := &plot.Figure{XLabel: timeLabel, YLabel: op.yLabel()}
	if op.AbsoluteIntensity {
		fig.Title = fmt.Sprintf("%s absolute intensity profiles, labels %s", imgName, labelsName)
	} else {
		fig.Title = fmt.Sprintf("%s ΔF/F0 profiles (lim -%g, %g), labels %s", imgName, lo, hi, labelsName)
	}
	for i, trace := range profiles {
		trace = trace[start:end]
		if !op.AbsoluteIntensity && !(minOf(trace) > -lo || maxOf(trace) < hi) {
			continue
		}
		fig.Series = append(fig.Series, plot.Series{
			X:      timeLine[start:end],
			Y:      trace,
			Color:  render.LabelColor(ids[i]),
			Alpha:  0.45,
			Marker: true,
		})
	}
	return fig
}

func minOf(a []float64) float64 {
	m := a[0]
	for _, v := range a[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(a []float64) float64 {
	m := a[0]
	for _, v := range a[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// Summary statistics of up to three images for one label layer
type OpProfileMultiImage struct {
	ops.OpBase
	Params
	ProfilesNum int                 `json:"profilesNum"`
	StatMethod  stats.SummaryMethod `json:"statMethod"`
}

var _ ops.Operator = (*OpProfileMultiImage)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpProfileMultiImageDefault() }) } // register the operator for JSON decoding

func NewOpProfileMultiImageDefault() *OpProfileMultiImage {
	return &OpProfileMultiImage{
		OpBase:      ops.OpBase{Type: "profileMultiImage"},
		Params:      defaultParams(),
		ProfilesNum: 1,
		StatMethod:  stats.SummarySE,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpProfileMultiImage) UnmarshalJSON(data []byte) error {
	type defaults OpProfileMultiImage
	def := defaults(*NewOpProfileMultiImageDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpProfileMultiImage(def)
	return nil
}

func (op *OpProfileMultiImage) Validate(in *ops.Inputs) error {
	if op.ProfilesNum < 1 || op.ProfilesNum > 3 {
		return ops.Invalid(op.Type, "profiles number %d outside [1,3]", op.ProfilesNum)
	}
	if len(in.Images) < op.ProfilesNum {
		return ops.Invalid(op.Type, "%d images requested, %d given", op.ProfilesNum, len(in.Images))
	}
	if len(in.Labels) < 1 {
		return ops.Invalid(op.Type, "missing label layer")
	}
	if !op.StatMethod.Valid() {
		return ops.Invalid(op.Type, "unknown statistics method '%s'", op.StatMethod)
	}
	first := in.Images[0]
	for _, img := range in.Images[:op.ProfilesNum] {
		if err := checkImageLabels(op.Type, img, in.Labels[0]); err != nil {
			return err
		}
		if img.Frames() != first.Frames() {
			return ops.Invalid(op.Type, "image %s has %d frames, %s has %d", img.Name, img.Frames(), first.Name, first.Frames())
		}
	}
	return op.Params.validate(op.Type)
}

func (op *OpProfileMultiImage) Run(ctx context.Context, in *ops.Inputs, c *ops.Context, yield ops.Yield) error {
	labelsImg := in.Labels[0]
	labels := morph.LabelsFromFloats(labelsImg.Data)
	fig := &plot.Figure{
		Title:  fmt.Sprintf("%s, method %s", labelsImg.Name, op.StatMethod),
		XLabel: timeLabel,
		YLabel: op.yLabel(),
	}
	for i, img := range in.Images[:op.ProfilesNum] {
		s, err := summarySeries(img, labels, &op.Params, op.StatMethod, img.Name, i)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.Log, "%d: Summarized profiles of %s with method %s\n", img.ID, labelsImg.Name, op.StatMethod)
		fig.Series = append(fig.Series, *s)
	}
	return yield(&ops.Result{Name: PanelMultiImage, Kind: ops.KindPlot, Plot: fig})
}

// Summary statistics of one image for up to three label layers
type OpProfileMultiLabel struct {
	ops.OpBase
	Params
	LabelsNum  int                 `json:"labelsNum"`
	StatMethod stats.SummaryMethod `json:"statMethod"`
}

var _ ops.Operator = (*OpProfileMultiLabel)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpProfileMultiLabelDefault() }) } // register the operator for JSON decoding

func NewOpProfileMultiLabelDefault() *OpProfileMultiLabel {
	return &OpProfileMultiLabel{
		OpBase:     ops.OpBase{Type: "profileMultiLabel"},
		Params:     defaultParams(),
		LabelsNum:  1,
		StatMethod: stats.SummarySE,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpProfileMultiLabel) UnmarshalJSON(data []byte) error {
	type defaults OpProfileMultiLabel
	def := defaults(*NewOpProfileMultiLabelDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpProfileMultiLabel(def)
	return nil
}

func (op *OpProfileMultiLabel) Validate(in *ops.Inputs) error {
	if op.LabelsNum < 1 || op.LabelsNum > 3 {
		return ops.Invalid(op.Type, "labels number %d outside [1,3]", op.LabelsNum)
	}
	if len(in.Images) < 1 {
		return ops.Invalid(op.Type, "missing input image")
	}
	if len(in.Labels) < op.LabelsNum {
		return ops.Invalid(op.Type, "%d label layers requested, %d given", op.LabelsNum, len(in.Labels))
	}
	if !op.StatMethod.Valid() {
		return ops.Invalid(op.Type, "unknown statistics method '%s'", op.StatMethod)
	}
	for _, labels := range in.Labels[:op.LabelsNum] {
		if err := checkImageLabels(op.Type, in.Images[0], labels); err != nil {
			return err
		}
	}
	return op.Params.validate(op.Type)
}

func (op *OpProfileMultiLabel) Run(ctx context.Context, in *ops.Inputs, c *ops.Context, yield ops.Yield) error {
	img := in.Images[0]
	fig := &plot.Figure{
		Title:  fmt.Sprintf("%s, method %s", img.Name, op.StatMethod),
		XLabel: timeLabel,
		YLabel: op.yLabel(),
	}
	for i, labelsImg := range in.Labels[:op.LabelsNum] {
		labels := morph.LabelsFromFloats(labelsImg.Data)
		s, err := summarySeries(img, labels, &op.Params, op.StatMethod, labelsImg.Name, i)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.Log, "%d: Summarized profiles of %s with method %s\n", img.ID, labelsImg.Name, op.StatMethod)
		fig.Series = append(fig.Series, *s)
	}
	return yield(&ops.Result{Name: PanelMultiLabel, Kind: ops.KindPlot, Plot: fig})
}

// Extracts the profiles of the image and summarizes them into one error bar series
func summarySeries(img *fits.Image, labels []int32, p *Params, method stats.SummaryMethod, name string, i int) (*plot.Series, error) {
	prof, err := Extract(img, labels, p.DeltaFWin)
	if err != nil {
		return nil, err
	}
	traces := prof.DeltaF
	if p.AbsoluteIntensity {
		traces = prof.Raw
	}
	center, spread, err := stats.Summarize(traces, method)
	if err != nil {
		return nil, fmt.Errorf("%s: %s", img.Name, err.Error())
	}
	return &plot.Series{
		Label:  name,
		X:      TimeLine(int(img.Frames()), p.TimeScale),
		Y:      center,
		YErr:   spread,
		Color:  summaryColors[i%len(summaryColors)],
		Alpha:  0.75,
		Marker: true,
	}, nil
}
