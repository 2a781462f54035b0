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

package fits

import (
	"math"

	"github.com/mlnoga/fluolight/internal/coord"
)

// Resamples all 2D planes of the image into the target coordinate system given by trans,
// using bilinear interpolation. Pixels sampled from outside the source are set to outOfBounds
func (img *Image) Project(trans coord.Transform2D, outOfBounds float32) (res *Image, err error) {
	// Invert transformation so we can sample from the target coordinate system PoV
	invTrans, err := trans.Invert()
	if err != nil {
		return nil, err
	}

	res = NewImageFromImage(img)
	width, height := img.Naxisn[0], img.Naxisn[1]
	for p := int32(0); p < img.Planes(); p++ {
		src, dest := img.PlaneData(p), res.PlaneData(p)
		for row := int32(0); row < height; row++ {
			for col := int32(0); col < width; col++ {
				proj := invTrans.Apply(coord.Point2D{X: float32(col), Y: float32(row)})
				v := Bilinear(src, width, height, proj.X, proj.Y)
				if math.IsNaN(float64(v)) {
					v = outOfBounds
				}
				dest[col+row*width] = v
			}
		}
	}
	return res, nil
}

// Bilinear interpolation of a 2D plane at (x,y). Returns NaN outside the plane
func Bilinear(d []float32, width, height int32, x, y float32) float32 {
	xl, yl := int32(math.Floor(float64(x))), int32(math.Floor(float64(y)))
	xr, yr := x-float32(xl), y-float32(yl)
	xh, yh := xl+1, yl+1
	// sampling exactly on the last row or column needs no right hand neighbor
	if xh == width && xr == 0 {
		xh = xl
	}
	if yh == height && yr == 0 {
		yh = yl
	}
	if xl < 0 || xh >= width || yl < 0 || yh >= height {
		return float32(math.NaN())
	}

	xlyl := xl + yl*width
	xhyl := xh + yl*width
	xlyh := xl + yh*width
	xhyh := xh + yh*width

	vyl := d[xlyl]*(1-xr) + d[xhyl]*xr
	vyh := d[xlyh]*(1-xr) + d[xhyh]*xr
	return vyl*(1-yr) + vyh*yr
}
