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

// Package profile extracts per-ROI intensity traces from image stacks, summarizes them
// across ROIs, plots them and exports them as CSV
package profile

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mlnoga/fluolight/internal/fits"
	"github.com/mlnoga/fluolight/internal/morph"
	"github.com/pkg/errors"
)

// Intensity traces of all ROIs of a label layer
type Profiles struct {
	Labels []int32     // positive label values, ascending
	Raw    [][]float64 // mean intensity per label and frame
	DeltaF [][]float64 // (raw-F0)/F0 per label and frame
}

// Extracts the mean intensity of each labeled region in each frame of a 3D stack, and
// the relative change against the mean of the first win frames
func Extract(img *fits.Image, labels []int32, win int) (*Profiles, error) {
	if int(img.PlaneSize()) != len(labels) {
		return nil, fmt.Errorf("%s: %d label pixels for %dx%d image", img.Name, len(labels), img.Width(), img.Height())
	}
	ids := morph.UniqueLabels(labels)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%s: label layer has no regions", img.Name)
	}
	slot := make(map[int32]int, len(ids))
	for i, l := range ids {
		slot[l] = i
	}
	counts := make([]int, len(ids))
	for _, l := range labels {
		if l > 0 {
			counts[slot[l]]++
		}
	}

	numT := int(img.Frames())
	p := &Profiles{Labels: ids, Raw: make([][]float64, len(ids)), DeltaF: make([][]float64, len(ids))}
	for i := range ids {
		p.Raw[i] = make([]float64, numT)
	}
	sums := make([]float64, len(ids))
	for t := 0; t < numT; t++ {
		for i := range sums {
			sums[i] = 0
		}
		for j, v := range img.PlaneData(int32(t)) {
			if l := labels[j]; l > 0 {
				sums[slot[l]] += float64(v)
			}
		}
		for i, s := range sums {
			p.Raw[i][t] = s / float64(counts[i])
		}
	}
	for i, raw := range p.Raw {
		p.DeltaF[i] = DeltaF(raw, win)
	}
	return p, nil
}

// Returns (raw-F0)/F0 with F0 the mean of the first win values. If F0 is zero,
// the unnormalized difference raw-F0 is returned
func DeltaF(raw []float64, win int) []float64 {
	if win > len(raw) {
		win = len(raw)
	}
	if win < 1 {
		win = 1
	}
	f0 := 0.0
	for _, v := range raw[:win] {
		f0 += v
	}
	f0 /= float64(win)
	res := make([]float64, len(raw))
	for i, v := range raw {
		res[i] = v - f0
		if f0 != 0 {
			res[i] /= f0
		}
	}
	return res
}

// Returns the profiles for plotting and export: raw intensities rounded to integers,
// or relative changes rounded to four decimals
func (p *Profiles) Selected(absolute bool) [][]float64 {
	src, scale := p.DeltaF, 1e4
	if absolute {
		src, scale = p.Raw, 1
	}
	res := make([][]float64, len(src))
	for i, trace := range src {
		res[i] = make([]float64, len(trace))
		for t, v := range trace {
			res[i][t] = math.Round(v*scale) / scale
		}
	}
	return res
}

// Returns the mean euclidean distance of each label's pixels to the image center,
// rounded to integers. The center is pixel (width/2, height/2)
func Distances(labels []int32, width, height int, ids []int32) []float64 {
	cx, cy := float64(width/2), float64(height/2)
	sums := make(map[int32]float64, len(ids))
	counts := make(map[int32]int, len(ids))
	for j, l := range labels {
		if l <= 0 {
			continue
		}
		dx, dy := float64(j%width)-cx, float64(j/width)-cy
		sums[l] += math.Sqrt(dx*dx + dy*dy)
		counts[l]++
	}
	res := make([]float64, len(ids))
	for i, l := range ids {
		if counts[l] > 0 {
			res[i] = math.Round(sums[l] / float64(counts[l]))
		}
	}
	return res
}

// Time axis with the given interval between frames
func TimeLine(numT int, timeScale float64) []float64 {
	res := make([]float64, numT)
	for i := range res {
		res[i] = float64(i) * timeScale
	}
	return res
}

// Returns the CSV base name for an image and label layer: both names joined with an
// underscore, without "_xform", with suffix "_abs" or "_ΔF"
func ExportName(imgName, labelsName string, absolute bool) string {
	name := strings.ReplaceAll(imgName+"_"+labelsName, "_xform", "")
	if absolute {
		return name + "_abs"
	}
	return name + "_ΔF"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Writes one row per ROI and frame with columns ,id,roi,int,[dist,]index,time. The first
// column is a running row number. ROIs are numbered from 1 in label order
func WriteCSV(w io.Writer, id string, profiles [][]float64, distances []float64, timeLine []float64) error {
	cw := csv.NewWriter(w)
	header := []string{"", "id", "roi", "int", "index", "time"}
	if distances != nil {
		header = []string{"", "id", "roi", "int", "dist", "index", "time"}
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	row := 0
	for r, trace := range profiles {
		for t, v := range trace {
			rec := []string{strconv.Itoa(row), id, strconv.Itoa(r + 1), formatFloat(v)}
			if distances != nil {
				rec = append(rec, formatFloat(distances[r]))
			}
			rec = append(rec, strconv.Itoa(t), formatFloat(timeLine[t]))
			if err := cw.Write(rec); err != nil {
				return err
			}
			row++
		}
	}
	cw.Flush()
	return cw.Error()
}

// Writes the CSV export into the given directory, returning the file name
func WriteCSVFile(dir, baseName, id string, profiles [][]float64, distances []float64, timeLine []float64) (string, error) {
	fileName := filepath.Join(dir, baseName+".csv")
	f, err := os.Create(fileName)
	if err != nil {
		return "", errors.Wrapf(err, "creating profile export %s", fileName)
	}
	defer f.Close()
	if err := WriteCSV(f, id, profiles, distances, timeLine); err != nil {
		return "", errors.Wrapf(err, "writing profile export %s", fileName)
	}
	return fileName, nil
}
