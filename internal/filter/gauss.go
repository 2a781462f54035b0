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

package filter

import (
	"math"
)

const sqrt2 = 1.4142135623730950488016887242097

// Truncate gaussian kernels at this many standard deviations
const gaussTruncate = 4.0

// Check if coordinate is within [0, size-1], and if not, reflect out of bounds coordinates back into the value range
func reflect(size, x int) int {
	for x < 0 || x >= size {
		if x < 0 {
			x = -x - 1
		}
		if x >= size {
			x = 2*size - x - 1
		}
	}
	return x
}

// Returns the definite integral of the gaussian function with midpoint mu and standard deviation sigma for input x
func GaussianDefiniteIntegral(mu, sigma, x float32) float32 {
	return 0.5 * (1 + float32(math.Erf(float64((x-mu)/(sqrt2*sigma)))))
}

// Generates a 1D gaussian kernel for the given sigma, truncated at four standard deviations.
// Each tap integrates the gaussian over its pixel via the error function
func GaussianKernel1D(sigma float32) (kernel []float32) {
	if sigma <= 0 {
		return []float32{1}
	}
	radius := int(gaussTruncate*sigma + 0.5)
	kernel = make([]float32, 2*radius+1)

	// Calculate left half of the kernel via symbolic integration
	sum := float32(0)
	lower := GaussianDefiniteIntegral(0, sigma, -0.5-float32(radius))
	for i := 0; i <= radius; i++ {
		upper := GaussianDefiniteIntegral(0, sigma, -0.5-float32(radius)+float32(i+1))
		kernel[i] = upper - lower
		sum += kernel[i]
		lower = upper
	}

	// Mirror right half of the kernel to avoid numeric instability
	for i := 1; i <= radius; i++ {
		kernel[radius+i] = kernel[radius-i]
		sum += kernel[radius+i]
	}

	// Normalize the sum of the kernel to 1, for dealing with the truncated part of the distribution.
	factor := 1 / sum
	for i := range kernel {
		kernel[i] *= factor
	}
	return kernel
}

// Convolve the given 2D image provided by data and width with the given kernel along the x axis, and store the result in res
func Convolve1DX(res, data []float32, width int, kernel []float32) {
	height := len(data) / width
	k := len(kernel) / 2
	for y := 0; y < height; y++ {
		row := data[y*width : (y+1)*width]
		for x := 0; x < width; x++ {
			sum := float32(0)
			for i := -k; i <= k; i++ {
				sum += row[reflect(width, x+i)] * kernel[i+k]
			}
			res[y*width+x] = sum
		}
	}
}

// Convolve the given 2D image provided by data and width with the given kernel along the y axis, and store the result in res
func Convolve1DY(res, data []float32, width int, kernel []float32) {
	height := len(data) / width
	k := len(kernel) / 2
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			sum := float32(0)
			for i := -k; i <= k; i++ {
				sum += data[reflect(height, y+i)*width+x] * kernel[i+k]
			}
			res[y*width+x] = sum
		}
	}
}

// Applies a 2D gauss filter of given standard deviation to the 2D image given by data and width.
// Returns the result in a newly allocated array
func GaussFilter2D(data []float32, width int, sigma float32) []float32 {
	kernel := GaussianKernel1D(sigma)
	tmp := make([]float32, len(data))
	res := make([]float32, len(data))
	Convolve1DX(tmp, data, width, kernel)
	Convolve1DY(res, tmp, width, kernel)
	return res
}
