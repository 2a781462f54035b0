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

package ops

import (
	"github.com/mlnoga/fluolight/internal/fits"
)

// Creates an image result with the given colormap and optional contrast limits
func NewImageResult(img *fits.Image, colormap string, limits ...float32) *Result {
	r := &Result{Name: img.Name, Kind: KindImage, Image: img, Colormap: colormap}
	if len(limits) == 2 {
		r.ContrastLimits = []float32{limits[0], limits[1]}
	}
	return r
}

// Creates a label layer result
func NewLabelsResult(img *fits.Image) *Result {
	return &Result{Name: img.Name, Kind: KindLabels, Image: img}
}

// Returns a validation error unless the image has one of the given numbers of axes
func CheckNDim(op, role string, img *fits.Image, ndims ...int) error {
	if img == nil {
		return Invalid(op, "missing %s image", role)
	}
	for _, n := range ndims {
		if img.NDim() == n {
			return nil
		}
	}
	if len(ndims) == 1 {
		return Invalid(op, "%s image %s has %d dimensions, needs %d", role, img.Name, img.NDim(), ndims[0])
	}
	return Invalid(op, "%s image %s has %d dimensions, needs one of %v", role, img.Name, img.NDim(), ndims)
}

// Returns a validation error unless the label image has the spatial dimensions of the image
func CheckSpatial(op string, img, labels *fits.Image) error {
	if labels == nil {
		return Invalid(op, "missing label layer")
	}
	if int32(len(labels.Data)) != labels.PlaneSize() {
		return Invalid(op, "label layer %s has dimensions %s, needs a single plane", labels.Name, labels.DimensionsToString())
	}
	if labels.Width() != img.Width() || labels.Height() != img.Height() {
		return Invalid(op, "label layer %s is %dx%d, image %s is %dx%d", labels.Name,
			labels.Width(), labels.Height(), img.Name, img.Width(), img.Height())
	}
	return nil
}

// Multiplies each value by the min-max normalized weight
func MultiplyByNormalized(data, weight []float32) {
	min, max := weight[0], weight[0]
	for _, w := range weight {
		if w < min {
			min = w
		}
		if w > max {
			max = w
		}
	}
	if max <= min {
		for i := range data {
			data[i] = 0
		}
		return
	}
	for i, w := range weight {
		data[i] *= (w - min) / (max - min)
	}
}
