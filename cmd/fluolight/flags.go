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
package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
)

// Flag holding a numeric range such as "0,10"
type rangeFlag []float64

func (r *rangeFlag) String() string {
	parts := make([]string, len(*r))
	for i, v := range *r {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

func (r *rangeFlag) Set(s string) error {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return fmt.Errorf("range '%s' needs two comma-separated values", s)
	}
	res := make(rangeFlag, 2)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return err
		}
		res[i] = v
	}
	*r = res
	return nil
}

func (r *rangeFlag) Get() interface{} { return []float64(*r) }

func newRangeFlag(name string, value []float64, usage string) *rangeFlag {
	r := rangeFlag(value)
	flag.Var(&r, name, usage)
	return &r
}

// Operator parameters settable from the command line, as flag name -> JSON key.
// Only flags given explicitly override the defaults and the -params file
var paramFlags = map[string]string{}

func paramBool(name, key string, value bool, usage string) {
	flag.Bool(name, value, usage)
	paramFlags[name] = key
}

func paramInt(name, key string, value int, usage string) {
	flag.Int(name, value, usage)
	paramFlags[name] = key
}

func paramFloat(name, key string, value float64, usage string) {
	flag.Float64(name, value, usage)
	paramFlags[name] = key
}

func paramString(name, key string, value string, usage string) {
	flag.String(name, value, usage)
	paramFlags[name] = key
}

func paramRange(name, key string, value []float64, usage string) {
	newRangeFlag(name, value, usage)
	paramFlags[name] = key
}

func init() {
	// channel splitting
	paramString("stackOrder", "stackOrder", "TCXY", "stack order of 4D inputs, TCXY or CTXY")
	paramBool("median", "medianFilter", true, "apply a per-frame median filter")
	paramInt("medianKernel", "medianKernel", 2, "median filter kernel size")
	paramBool("background", "backgroundSubtraction", true, "subtract the 0.5th percentile per frame")
	paramBool("bleach", "photobleachingCorrection", false, "correct photobleaching")
	paramString("bleachMethod", "correctionMethod", "exp", "photobleaching model, exp or biExp")
	paramBool("dropFrames", "dropFrames", false, "keep only the frames in -frames")
	paramRange("frames", "framesRange", []float64{0, 10}, "frame range `start,end` for -dropFrames")

	// alignment
	paramBool("useRef", "useReferenceImage", false, "register on the reference image given as second input")
	paramInt("inputCrop", "inputCrop", 25, "border in pixels cropped before registration")
	paramInt("outputCrop", "outputCrop", 20, "border in pixels cropped from the aligned stack")
	paramString("metric", "metric", "mi", "registration metric, mi or ncc")

	// SEP
	paramString("ph", "pH1stFrame", "7.3", "pH of the first frame, 7.3 or 6.0")
	paramBool("surface", "calcSurfaceImg", false, "compute the surface fraction image")
	paramBool("projections", "calcProjections", false, "compute difference projections")

	// FRET
	paramFloat("fretA", "a", 0.122, "acceptor bleedthrough coefficient a")
	paramFloat("fretD", "d", 0.794, "donor crosstalk coefficient d")
	paramFloat("fretG", "G", 3.6, "gauge factor G")
	paramString("fretOut", "outputType", "Eapp", "FRET output, Eapp, Ecorr or Fc")
	paramBool("fretNorm", "saveNormalized", true, "also save the output normalized by the acceptor intensity")

	// red-green
	paramInt("left", "leftFrames", 1, "frames in the baseline window")
	paramInt("space", "spaceFrames", 1, "frames between baseline and stimulus windows")
	paramInt("right", "rightFrames", 1, "frames in the stimulus window")
	paramBool("normInt", "normalizeByInt", true, "weight differences by the normalized mean intensity")
	paramBool("mip", "saveMIP", false, "also save the maximum intensity projection")

	// masks
	paramFloat("bgLevel", "backgroundLevel", 75, "dots: background percentile, 50..99")
	paramFloat("detLevel", "detectionLevel", 25, "dots: detection level in percent of the maximum, 1..100")
	paramInt("minDist", "minimalDistance", 2, "dots: minimal distance between peaks")
	paramInt("maskDiam", "maskDiameter", 5, "dots: dot mask diameter")
	paramInt("detFrame", "detFrameIndex", 2, "detection frame of the red-green series, negative for the maximum projection")
	paramFloat("detTh", "detTh", 0.25, "up mask: detection threshold relative to the frame maximum")
	paramBool("inROIs", "inROIsDet", true, "up mask: detect within the ROIs given as second input")
	paramString("inROIsMethod", "inROIsDetMethod", "otsu", "up mask: detection method in ROIs, otsu or threshold")
	paramFloat("inROIsThCorr", "inROIsDetThCorr", 0.1, "up mask: threshold correction in ROIs")
	paramInt("openFp", "finalOpeningFp", 1, "up mask: final opening footprint")
	paramInt("dilFp", "finalDilationFp", 0, "up mask: final dilation footprint")
	paramBool("totalMask", "saveTotalUpMask", false, "up mask: also save the binary mask")
	paramString("maskMode", "maskingMode", "up", "mask: up or down")
	paramFloat("upTh", "upThreshold", 0.2, "mask: up threshold")
	paramFloat("downTh", "downThreshold", -0.9, "mask: down threshold")
	paramInt("openingFp", "openingFootprint", 0, "mask: opening footprint")

	// profiles
	paramFloat("timeScale", "timeScale", 5, "seconds per frame")
	paramBool("abs", "absoluteIntensity", false, "report absolute intensities instead of ΔF/F0")
	paramInt("dfWin", "deltaFWin", 5, "frames averaged for the ΔF/F0 baseline")
	paramRange("ampLim", "deltaFAmplitudeLim", []float64{10, 10}, "ΔF amplitude limits `lo,hi` for plotting")
	paramBool("crop", "profilesCrop", false, "crop profiles to -profRange")
	paramRange("profRange", "profilesRange", []float64{0, 10}, "profile frame range `start,end`")
	paramBool("csv", "saveDataFrame", false, "export profiles as CSV")
	paramBool("dist", "saveROIsDistances", false, "add ROI distances from the image center to the CSV")
	paramString("savingPath", "savingPath", ".", "directory for the CSV export")
	paramInt("profilesNum", "profilesNum", 0, "multiprofile: number of images, 0 for all inputs")
	paramInt("labelsNum", "labelsNum", 0, "multilabel: number of label layers, 0 for all inputs")
	paramString("stat", "statMethod", "se", "multiprofile/multilabel: summary, se, iqr or ci")
}

// Returns the parameters of all explicitly set operator flags, keyed by JSON name
func paramOverrides() map[string]interface{} {
	res := map[string]interface{}{}
	flag.Visit(func(f *flag.Flag) {
		key, ok := paramFlags[f.Name]
		if !ok {
			return
		}
		if g, ok := f.Value.(flag.Getter); ok {
			res[key] = g.Get()
		}
	})
	return res
}
