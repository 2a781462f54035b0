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
package gui

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mlnoga/fluolight/internal/filter"
	"github.com/mlnoga/fluolight/internal/layers"
	"github.com/mlnoga/fluolight/internal/ops"
	"github.com/mlnoga/fluolight/internal/ops/align"
	"github.com/mlnoga/fluolight/internal/ops/fret"
	"github.com/mlnoga/fluolight/internal/ops/mask"
	"github.com/mlnoga/fluolight/internal/ops/sep"
	"github.com/mlnoga/fluolight/internal/ops/split"
	"github.com/mlnoga/fluolight/internal/stats"
)

// Widget type of a form field
type FieldKind int

const (
	FieldBool   FieldKind = iota // check box
	FieldInt                     // entry accepting integers
	FieldFloat                   // entry accepting decimals
	FieldSlider                  // slider between Min and Max
	FieldChoice                  // drop down of Choices
	FieldRange                   // two numeric entries [start, end]
	FieldPath                    // entry for a directory
)

// One operator parameter, identified by its JSON key
type Field struct {
	Key     string
	Label   string
	Kind    FieldKind
	Min     float64
	Max     float64
	Step    float64
	Choices []string
}

// An input layer selector
type Slot struct {
	Label    string
	Optional bool
}

// Parameter form of one operator
type Form struct {
	Type   string // operator type for the factory registry
	Title  string
	Images []Slot
	Labels []Slot
	Fields []Field
}

var timeFields = []Field{
	{Key: "timeScale", Label: "Time scale, s/frame", Kind: FieldFloat},
	{Key: "absoluteIntensity", Label: "Absolute intensity", Kind: FieldBool},
	{Key: "deltaFWin", Label: "ΔF baseline frames", Kind: FieldInt},
}

var summaryChoices = []string{string(stats.SummarySE), string(stats.SummaryIQR), string(stats.SummaryCI)}

// Forms for all operators, in menu order
var Forms = []*Form{
	{
		Type: "splitChannels", Title: "Split Channels",
		Images: []Slot{{Label: "Image"}},
		Fields: []Field{
			{Key: "stackOrder", Label: "Stack order", Kind: FieldChoice, Choices: []string{split.StackOrderTCXY, split.StackOrderCTXY}},
			{Key: "medianFilter", Label: "Median filter", Kind: FieldBool},
			{Key: "medianKernel", Label: "Median kernel", Kind: FieldInt},
			{Key: "backgroundSubtraction", Label: "Background subtraction", Kind: FieldBool},
			{Key: "photobleachingCorrection", Label: "Photobleaching correction", Kind: FieldBool},
			{Key: "correctionMethod", Label: "Correction method", Kind: FieldChoice, Choices: []string{string(filter.BleachExp), string(filter.BleachBiExp)}},
			{Key: "dropFrames", Label: "Drop frames", Kind: FieldBool},
			{Key: "framesRange", Label: "Frames range", Kind: FieldRange},
		},
	},
	{
		Type: "alignStack", Title: "Align Stack",
		Images: []Slot{{Label: "Offset image"}, {Label: "Reference image", Optional: true}},
		Fields: []Field{
			{Key: "useReferenceImage", Label: "Use reference image", Kind: FieldBool},
			{Key: "inputCrop", Label: "Input crop", Kind: FieldInt},
			{Key: "outputCrop", Label: "Output crop", Kind: FieldInt},
			{Key: "metric", Label: "Metric", Kind: FieldChoice, Choices: []string{align.MetricMI, align.MetricNCC}},
		},
	},
	{
		Type: "splitSEP", Title: "Split SEP",
		Images: []Slot{{Label: "Image"}},
		Fields: []Field{
			{Key: "pH1stFrame", Label: "pH of first frame", Kind: FieldChoice, Choices: []string{sep.PH73, sep.PH60}},
			{Key: "calcSurfaceImg", Label: "Surface image", Kind: FieldBool},
			{Key: "calcProjections", Label: "Projections", Kind: FieldBool},
		},
	},
	{
		Type: "eFRET", Title: "E-FRET",
		Images: []Slot{{Label: "DD"}, {Label: "DA"}, {Label: "AA"}},
		Fields: []Field{
			{Key: "a", Label: "a", Kind: FieldSlider, Min: 0, Max: 1, Step: 0.001},
			{Key: "d", Label: "d", Kind: FieldSlider, Min: 0, Max: 1, Step: 0.001},
			{Key: "G", Label: "G", Kind: FieldSlider, Min: 0, Max: 10, Step: 0.01},
			{Key: "outputType", Label: "Output", Kind: FieldChoice, Choices: []string{fret.OutputEapp, fret.OutputEcorr, fret.OutputFc}},
			{Key: "saveNormalized", Label: "Save normalized", Kind: FieldBool},
		},
	},
	{
		Type: "redGreen", Title: "Red-Green",
		Images: []Slot{{Label: "Image"}},
		Fields: []Field{
			{Key: "leftFrames", Label: "Left frames", Kind: FieldInt},
			{Key: "spaceFrames", Label: "Space frames", Kind: FieldInt},
			{Key: "rightFrames", Label: "Right frames", Kind: FieldInt},
			{Key: "normalizeByInt", Label: "Normalize by intensity", Kind: FieldBool},
			{Key: "saveMIP", Label: "Save MIP", Kind: FieldBool},
		},
	},
	{
		Type: "dotMask", Title: "Dots Mask",
		Images: []Slot{{Label: "Image"}},
		Fields: []Field{
			{Key: "backgroundLevel", Label: "Background level", Kind: FieldSlider, Min: 50, Max: 99, Step: 1},
			{Key: "detectionLevel", Label: "Detection level", Kind: FieldSlider, Min: 1, Max: 100, Step: 1},
			{Key: "minimalDistance", Label: "Minimal distance", Kind: FieldInt},
			{Key: "maskDiameter", Label: "Mask diameter", Kind: FieldInt},
		},
	},
	{
		Type: "upMask", Title: "Up Mask",
		Images: []Slot{{Label: "Red-green image"}},
		Labels: []Slot{{Label: "ROIs", Optional: true}},
		Fields: []Field{
			{Key: "detFrameIndex", Label: "Detection frame", Kind: FieldInt},
			{Key: "detTh", Label: "Detection threshold", Kind: FieldSlider, Min: 0, Max: 1, Step: 0.01},
			{Key: "inROIsDet", Label: "Detect in ROIs", Kind: FieldBool},
			{Key: "inROIsDetMethod", Label: "ROI detection method", Kind: FieldChoice, Choices: []string{mask.MethodOtsu, mask.MethodThreshold}},
			{Key: "inROIsDetThCorr", Label: "ROI threshold correction", Kind: FieldSlider, Min: 0, Max: 1, Step: 0.01},
			{Key: "finalOpeningFp", Label: "Final opening footprint", Kind: FieldInt},
			{Key: "finalDilationFp", Label: "Final dilation footprint", Kind: FieldInt},
			{Key: "saveTotalUpMask", Label: "Save total up mask", Kind: FieldBool},
		},
	},
	{
		Type: "mask", Title: "Up/Down Mask",
		Images: []Slot{{Label: "Red-green image"}},
		Fields: []Field{
			{Key: "detFrameIndex", Label: "Detection frame", Kind: FieldInt},
			{Key: "maskingMode", Label: "Masking mode", Kind: FieldChoice, Choices: []string{mask.ModeUp, mask.ModeDown}},
			{Key: "upThreshold", Label: "Up threshold", Kind: FieldSlider, Min: 0, Max: 1, Step: 0.01},
			{Key: "downThreshold", Label: "Down threshold", Kind: FieldSlider, Min: -1, Max: 0, Step: 0.01},
			{Key: "openingFootprint", Label: "Opening footprint", Kind: FieldInt},
		},
	},
	{
		Type: "profileLine", Title: "Profiles",
		Images: []Slot{{Label: "Image"}},
		Labels: []Slot{{Label: "Labels"}},
		Fields: append(append([]Field(nil), timeFields...),
			Field{Key: "deltaFAmplitudeLim", Label: "ΔF amplitude limits", Kind: FieldRange},
			Field{Key: "profilesCrop", Label: "Crop profiles", Kind: FieldBool},
			Field{Key: "profilesRange", Label: "Profiles range", Kind: FieldRange},
			Field{Key: "saveDataFrame", Label: "Save data frame", Kind: FieldBool},
			Field{Key: "saveROIsDistances", Label: "Save ROI distances", Kind: FieldBool},
			Field{Key: "savingPath", Label: "Saving path", Kind: FieldPath},
		),
	},
	{
		Type: "profileMultiImage", Title: "Multiple Image Profiles",
		Images: []Slot{{Label: "Image 1"}, {Label: "Image 2", Optional: true}, {Label: "Image 3", Optional: true},
			{Label: "Image 4", Optional: true}, {Label: "Image 5", Optional: true}},
		Labels: []Slot{{Label: "Labels"}},
		Fields: append(append([]Field(nil), timeFields...),
			Field{Key: "profilesNum", Label: "Number of images", Kind: FieldInt},
			Field{Key: "statMethod", Label: "Statistic", Kind: FieldChoice, Choices: summaryChoices},
		),
	},
	{
		Type: "profileMultiLabel", Title: "Multiple Label Profiles",
		Images: []Slot{{Label: "Image"}},
		Labels: []Slot{{Label: "Labels 1"}, {Label: "Labels 2", Optional: true}, {Label: "Labels 3", Optional: true},
			{Label: "Labels 4", Optional: true}, {Label: "Labels 5", Optional: true}},
		Fields: append(append([]Field(nil), timeFields...),
			Field{Key: "labelsNum", Label: "Number of label layers", Kind: FieldInt},
			Field{Key: "statMethod", Label: "Statistic", Kind: FieldChoice, Choices: summaryChoices},
		),
	},
}

// Returns the form for the given operator type, or nil
func FormFor(opType string) *Form {
	for _, f := range Forms {
		if f.Type == opType {
			return f
		}
	}
	return nil
}

// Returns the default parameter values of the form's operator, keyed by JSON name
func (f *Form) Defaults() (map[string]interface{}, error) {
	factory := ops.GetOperatorFactory(f.Type)
	if factory == nil {
		return nil, fmt.Errorf("unknown operator type '%s'", f.Type)
	}
	raw, err := json.Marshal(factory())
	if err != nil {
		return nil, err
	}
	values := map[string]interface{}{}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, err
	}
	return values, nil
}

// Builds a step from parameter values and selected layer names. Empty selections
// of optional slots are skipped, empty required ones are an error
func (f *Form) Step(values map[string]interface{}, images, labels []string) (*layers.Step, error) {
	params := map[string]interface{}{}
	for k, v := range values {
		params[k] = v
	}
	params["type"] = f.Type
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	op, err := ops.UnmarshalOperator(raw)
	if err != nil {
		return nil, err
	}
	imgs, err := selected(f.Type, f.Images, images)
	if err != nil {
		return nil, err
	}
	labs, err := selected(f.Type, f.Labels, labels)
	if err != nil {
		return nil, err
	}
	return &layers.Step{Operator: op, Images: imgs, Labels: labs}, nil
}

func selected(opType string, slots []Slot, names []string) ([]string, error) {
	var res []string
	for i, slot := range slots {
		name := ""
		if i < len(names) {
			name = names[i]
		}
		if name == "" {
			if !slot.Optional {
				return nil, ops.Invalid(opType, "no layer selected for %s", slot.Label)
			}
			continue
		}
		res = append(res, name)
	}
	return res, nil
}

// Parses the text of an entry field into a parameter value
func ParseValue(kind FieldKind, text string) (interface{}, error) {
	switch kind {
	case FieldInt:
		return strconv.Atoi(text)
	case FieldFloat, FieldSlider, FieldRange:
		return strconv.ParseFloat(text, 64)
	default:
		return text, nil
	}
}

// Formats a parameter value for display in an entry field
func FormatValue(v interface{}) string {
	switch v := v.(type) {
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case int:
		return strconv.Itoa(v)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
