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

package render

import (
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/mlnoga/fluolight/internal/fits"
	"github.com/mlnoga/fluolight/internal/stats"
	"golang.org/x/image/draw"
)

// Preview rendering options
type Options struct {
	Frame    int32     // frame along the slowest axis
	Channel  int32     // channel of frame-major 4D stacks
	Colormap string    // ignored for labels
	Limits   []float32 // optional contrast limits [lo, hi], else the plane's range
	Labels   bool      // render label values with distinct colors
	MaxSize  int       // optional maximum width and height, downscales larger planes
}

// Returns the data of one 2D plane selected by frame and channel
func Plane(img *fits.Image, frame, channel int32) ([]float32, error) {
	numC := int32(1)
	if img.NDim() == 4 {
		numC = img.Channels()
	}
	if frame < 0 || frame >= img.Frames() {
		return nil, fmt.Errorf("%s: frame %d out of range [0,%d)", img.Name, frame, img.Frames())
	}
	if channel < 0 || channel >= numC {
		return nil, fmt.Errorf("%s: channel %d out of range [0,%d)", img.Name, channel, numC)
	}
	return img.PlaneData(frame*numC + channel), nil
}

// Renders one plane of the image with the given options
func Preview(img *fits.Image, opt Options) (image.Image, error) {
	data, err := Plane(img, opt.Frame, opt.Channel)
	if err != nil {
		return nil, err
	}
	width, height := int(img.Width()), int(img.Height())
	res := image.NewNRGBA(image.Rect(0, 0, width, height))

	if opt.Labels {
		for i, d := range data {
			res.SetNRGBA(i%width, i/width, LabelColor(int32(d)))
		}
	} else {
		cm, err := LookupColormap(opt.Colormap)
		if err != nil {
			return nil, err
		}
		var lo, hi float32
		if len(opt.Limits) == 2 {
			lo, hi = opt.Limits[0], opt.Limits[1]
		} else {
			lo, hi = stats.MinMax(data)
		}
		scale := float32(0)
		if hi > lo {
			scale = 1 / (hi - lo)
		}
		for i, d := range data {
			res.SetNRGBA(i%width, i/width, cm.At((d-lo)*scale))
		}
	}

	if opt.MaxSize <= 0 || (width <= opt.MaxSize && height <= opt.MaxSize) {
		return res, nil
	}
	factor := float64(opt.MaxSize) / float64(width)
	if f := float64(opt.MaxSize) / float64(height); f < factor {
		factor = f
	}
	dw, dh := int(float64(width)*factor+0.5), int(float64(height)*factor+0.5)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}
	scaled := image.NewNRGBA(image.Rect(0, 0, dw, dh))
	var scaler draw.Scaler = draw.ApproxBiLinear
	if opt.Labels {
		scaler = draw.NearestNeighbor
	}
	scaler.Scale(scaled, scaled.Bounds(), res, res.Bounds(), draw.Src, nil)
	return scaled, nil
}

// Renders one plane of the image as PNG
func WritePNG(w io.Writer, img *fits.Image, opt Options) error {
	preview, err := Preview(img, opt)
	if err != nil {
		return err
	}
	return png.Encode(w, preview)
}
