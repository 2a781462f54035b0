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
	"fmt"
	"math"
	"strings"
)

// An N-dimensional image, stored FITS style with the most quickly varying axis first.
// A time series of 2D frames has Naxisn [X,Y,T], a multi-channel series [X,Y,C,T].
// Spec here:   https://fits.gsfc.nasa.gov/standard40/fits_standard40aa-le.pdf
type Image struct {
	ID       int    // Sequential ID number, for log output
	Name     string // Display name, used as layer name
	FileName string // Original file name, if any, for log output

	Header Header  // The header with all keys, values, comments, history entries etc.
	Bitpix int32   // Bits per pixel value from the header. Positive values are integral, negative floating.
	Bzero  float32 // Zero offset. True pixel value is Bzero + Bscale * Data[i].
	Bscale float32 // Value scaler. True pixel value is Bzero + Bscale * Data[i].
	Naxisn []int32 // Axis dimensions. Most quickly varying dimension first (i.e. X,Y)
	Pixels int32   // Number of pixels in the image. Product of Naxisn[]

	Data []float32 // The image data
}

// Creates a FITS image initialized with empty header
func NewImage() *Image {
	return &Image{
		Header: NewHeader(),
		Bscale: 1,
	}
}

// Creates a FITS image from given naxisn. Data is not copied, allocated if nil. naxisn is deep copied
func NewImageFromNaxisn(naxisn []int32, data []float32) *Image {
	numPixels := int32(1)
	for _, naxis := range naxisn {
		numPixels *= naxis
	}
	if data == nil {
		data = make([]float32, numPixels)
	}
	return &Image{
		Header: NewHeader(),
		Bitpix: -32,
		Bscale: 1,
		Naxisn: append([]int32(nil), naxisn...), // clone slice
		Pixels: numPixels,
		Data:   data,
	}
}

// Creates a FITS image with the same dimensions and metadata as the given image. New data array will be allocated
func NewImageFromImage(img *Image) *Image {
	res := NewImageFromNaxisn(img.Naxisn, nil)
	res.ID, res.Name, res.FileName = img.ID, img.Name, img.FileName
	return res
}

// Returns a deep copy of the image
func (f *Image) Clone() *Image {
	res := NewImageFromImage(f)
	copy(res.Data, f.Data)
	return res
}

// FITS header data
type Header struct {
	Bools    map[string]bool
	Ints     map[string]int32
	Floats   map[string]float32
	Strings  map[string]string
	Dates    map[string]string
	Comments []string
	History  []string
	End      bool
	Length   int32
}

// Creates a FITS header initialized with empty maps and arrays
func NewHeader() Header {
	return Header{
		Bools:    make(map[string]bool),
		Ints:     make(map[string]int32),
		Floats:   make(map[string]float32),
		Strings:  make(map[string]string),
		Dates:    make(map[string]string),
		Comments: make([]string, 0),
		History:  make([]string, 0),
		End:      false,
	}
}

const fitsBlockSize int = 2880 // Block size of FITS header and data units
const HeaderLineSize int = 80  // Line size of a FITS header

func (f *Image) DimensionsToString() string {
	b := strings.Builder{}
	for i, naxis := range f.Naxisn {
		if i > 0 {
			fmt.Fprintf(&b, "x%d", naxis)
		} else {
			fmt.Fprintf(&b, "%d", naxis)
		}
	}
	return b.String()
}

// Number of axes
func (f *Image) NDim() int { return len(f.Naxisn) }

func (f *Image) Width() int32  { return f.Naxisn[0] }
func (f *Image) Height() int32 { return f.Naxisn[1] }

// Number of pixels in one 2D plane
func (f *Image) PlaneSize() int32 { return f.Naxisn[0] * f.Naxisn[1] }

// Number of 2D planes, i.e. the product of all axes beyond the second
func (f *Image) Planes() int32 {
	if len(f.Naxisn) < 2 {
		return 0
	}
	return f.Pixels / f.PlaneSize()
}

// Number of frames along the slowest axis, 1 for 2D images
func (f *Image) Frames() int32 {
	if len(f.Naxisn) <= 2 {
		return 1
	}
	return f.Naxisn[len(f.Naxisn)-1]
}

// Returns the data of the i-th 2D plane in memory order. Shares data with the image
func (f *Image) PlaneData(i int32) []float32 {
	ps := f.PlaneSize()
	return f.Data[i*ps : (i+1)*ps]
}

// Returns the i-th 2D plane in memory order as 2D image. Shares data with the image
func (f *Image) Plane(i int32) *Image {
	res := NewImageFromNaxisn(f.Naxisn[:2], f.PlaneData(i))
	res.ID, res.Name, res.FileName = f.ID, f.Name, f.FileName
	return res
}

// Creates a stack of equally sized 2D planes with the given trailing axes. Data is copied
func NewImageFromPlanes(planes []*Image, trailing ...int32) *Image {
	naxisn := append([]int32{planes[0].Naxisn[0], planes[0].Naxisn[1]}, trailing...)
	if len(trailing) == 0 {
		naxisn = append(naxisn, int32(len(planes)))
	}
	res := NewImageFromNaxisn(naxisn, nil)
	ps := res.PlaneSize()
	for i, p := range planes {
		copy(res.Data[int32(i)*ps:], p.Data[:ps])
	}
	res.ID, res.Name = planes[0].ID, planes[0].Name
	return res
}

// Extracts one channel of a 4D stack as a new 3D stack [X,Y,T].
// With channelFirst the stack is ordered channel-major, i.e. Naxisn [X,Y,T,C],
// otherwise frame-major, i.e. Naxisn [X,Y,C,T]
func (f *Image) Channel(c int32, channelFirst bool) (*Image, error) {
	if len(f.Naxisn) != 4 {
		return nil, fmt.Errorf("%s: expected 4 axes, got %d", f.Name, len(f.Naxisn))
	}
	var numC, numT int32
	if channelFirst {
		numT, numC = f.Naxisn[2], f.Naxisn[3]
	} else {
		numC, numT = f.Naxisn[2], f.Naxisn[3]
	}
	if c < 0 || c >= numC {
		return nil, fmt.Errorf("%s: channel %d out of range [0,%d)", f.Name, c, numC)
	}
	res := NewImageFromNaxisn([]int32{f.Naxisn[0], f.Naxisn[1], numT}, nil)
	res.ID, res.Name, res.FileName = f.ID, f.Name, f.FileName
	ps := f.PlaneSize()
	for t := int32(0); t < numT; t++ {
		src := t*numC + c
		if channelFirst {
			src = c*numT + t
		}
		copy(res.Data[t*ps:(t+1)*ps], f.PlaneData(src))
	}
	return res, nil
}

// Number of channels of a frame-major 4D stack [X,Y,C,T]
func (f *Image) Channels() int32 {
	if len(f.Naxisn) != 4 {
		return 1
	}
	return f.Naxisn[2]
}

// Reassembles a frame-major 4D stack [X,Y,C,T] from 3D channel stacks of equal dimensions
func NewImageFromChannels(chans []*Image) (*Image, error) {
	first := chans[0]
	if len(first.Naxisn) != 3 {
		return nil, fmt.Errorf("%s: expected 3 axes, got %d", first.Name, len(first.Naxisn))
	}
	numC, numT := int32(len(chans)), first.Naxisn[2]
	for _, ch := range chans[1:] {
		if !EqualInt32Slice(ch.Naxisn, first.Naxisn) {
			return nil, fmt.Errorf("%s: dimensions %s differ from %s", ch.Name, ch.DimensionsToString(), first.DimensionsToString())
		}
	}
	res := NewImageFromNaxisn([]int32{first.Naxisn[0], first.Naxisn[1], numC, numT}, nil)
	res.ID, res.Name = first.ID, first.Name
	ps := res.PlaneSize()
	for t := int32(0); t < numT; t++ {
		for c, ch := range chans {
			copy(res.PlaneData(t*numC+int32(c)), ch.Data[t*ps:(t+1)*ps])
		}
	}
	return res, nil
}

// Returns a copy of the frames [start,end) of a stack along its slowest axis
func (f *Image) CropFrames(start, end int32) (*Image, error) {
	numT := f.Frames()
	if len(f.Naxisn) < 3 || start < 0 || end > numT || start >= end {
		return nil, fmt.Errorf("%s: invalid frame range [%d,%d) for %d frames", f.Name, start, end, numT)
	}
	naxisn := append([]int32(nil), f.Naxisn...)
	naxisn[len(naxisn)-1] = end - start
	frameSize := f.Pixels / numT
	data := append([]float32(nil), f.Data[start*frameSize:end*frameSize]...)
	res := NewImageFromNaxisn(naxisn, data)
	res.ID, res.Name, res.FileName = f.ID, f.Name, f.FileName
	return res, nil
}

// Returns frames start, start+step, ... of a 3D stack as a new stack
func (f *Image) StrideFrames(start, step int32) *Image {
	ps := f.PlaneSize()
	numT := f.Frames()
	planes := make([]*Image, 0, numT/step+1)
	for t := start; t < numT; t += step {
		planes = append(planes, f.Plane(t))
	}
	res := NewImageFromNaxisn([]int32{f.Naxisn[0], f.Naxisn[1], int32(len(planes))}, nil)
	for i, p := range planes {
		copy(res.Data[int32(i)*ps:], p.Data)
	}
	res.ID, res.Name, res.FileName = f.ID, f.Name, f.FileName
	return res
}

// Crops n pixels from each spatial border of all planes. Returns error if nothing remains
func (f *Image) CropBorder(n int32) (*Image, error) {
	if n == 0 {
		return f.Clone(), nil
	}
	w, h := f.Naxisn[0], f.Naxisn[1]
	newW, newH := w-2*n, h-2*n
	if n < 0 || newW <= 0 || newH <= 0 {
		return nil, fmt.Errorf("%s: crop %d too large for %dx%d pixels", f.Name, n, w, h)
	}
	naxisn := append([]int32(nil), f.Naxisn...)
	naxisn[0], naxisn[1] = newW, newH
	res := NewImageFromNaxisn(naxisn, nil)
	res.ID, res.Name, res.FileName = f.ID, f.Name, f.FileName
	for p := int32(0); p < f.Planes(); p++ {
		src, dest := f.PlaneData(p), res.PlaneData(p)
		for y := int32(0); y < newH; y++ {
			copy(dest[y*newW:(y+1)*newW], src[(y+n)*w+n:(y+n)*w+n+newW])
		}
	}
	return res, nil
}

// Returns the mean over all planes as a 2D image
func (f *Image) MeanProjection() *Image {
	res := NewImageFromNaxisn(f.Naxisn[:2], nil)
	res.ID, res.Name = f.ID, f.Name
	numP := f.Planes()
	sums := make([]float64, f.PlaneSize())
	for p := int32(0); p < numP; p++ {
		for i, v := range f.PlaneData(p) {
			sums[i] += float64(v)
		}
	}
	for i, s := range sums {
		res.Data[i] = float32(s / float64(numP))
	}
	return res
}

// Returns the maximum over all planes as a 2D image
func (f *Image) MaxProjection() *Image {
	res := NewImageFromNaxisn(f.Naxisn[:2], append([]float32(nil), f.PlaneData(0)...))
	res.ID, res.Name = f.ID, f.Name
	for p := int32(1); p < f.Planes(); p++ {
		for i, v := range f.PlaneData(p) {
			if v > res.Data[i] {
				res.Data[i] = v
			}
		}
	}
	return res
}

// Returns minimum and maximum of the data, ignoring NaNs
func (f *Image) MinMax() (min, max float32) {
	min, max = float32(math.MaxFloat32), float32(-math.MaxFloat32)
	for _, v := range f.Data {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if min > max {
		return 0, 0
	}
	return min, max
}

// Returns the maximum absolute value of the data
func (f *Image) MaxAbs() float32 {
	min, max := f.MinMax()
	if -min > max {
		return -min
	}
	return max
}

// Apply NxN binning to source 2D image and return new resulting image
func NewImageBinNxN(src *Image, n int32) *Image {
	if n <= 1 {
		return src.Clone()
	}
	binnedNaxisn := []int32{src.Naxisn[0] / n, src.Naxisn[1] / n}
	binned := NewImageFromNaxisn(binnedNaxisn, nil)
	binned.ID, binned.Name, binned.FileName = src.ID, src.Name, src.FileName

	normalizer := 1.0 / float32(n*n)
	for y := int32(0); y < binnedNaxisn[1]; y++ {
		for x := int32(0); x < binnedNaxisn[0]; x++ {
			sum := float32(0)
			for yoff := int32(0); yoff < n; yoff++ {
				row := (y*n + yoff) * src.Naxisn[0]
				for xoff := int32(0); xoff < n; xoff++ {
					sum += src.Data[row+x*n+xoff]
				}
			}
			binned.Data[y*binnedNaxisn[0]+x] = sum * normalizer
		}
	}
	return binned
}

// Equal tells whether a and b contain the same elements.
// A nil argument is equivalent to an empty slice.
func EqualInt32Slice(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i, v := range a {
		if v != b[i] {
			return false
		}
	}
	return true
}
