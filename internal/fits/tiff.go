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
	"bufio"
	"image"
	"image/color"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/image/tiff"
)

// Reads a single TIFF page into a 2D image, or a 3D image [X,Y,3] for color images
func (f *Image) ReadTIFF(fileName string) error {
	// open file and create buffered reader
	file, err := os.Open(fileName)
	if err != nil {
		return errors.Wrapf(err, "%d: opening %s", f.ID, fileName)
	}
	defer file.Close()

	// decode TIFF file into golang image
	t, err := tiff.Decode(bufio.NewReader(file))
	if err != nil {
		return errors.Wrapf(err, "%d: decoding %s", f.ID, fileName)
	}
	f.FileName = fileName
	f.fromGoImage(t)
	return nil
}

func (f *Image) fromGoImage(t image.Image) {
	// determine width, height, color depth and number of color channels
	b := t.Bounds()
	width, height := b.Dx(), b.Dy()
	bitpix, channels := colorModelToBitpixAndChannels(t.ColorModel())
	if channels == 0 {
		bitpix, channels = 16, 3
	}

	// set FITS metadata
	f.Bitpix = bitpix
	f.Naxisn = []int32{int32(width), int32(height)}
	if channels > 1 {
		f.Naxisn = append(f.Naxisn, channels)
	}
	f.Pixels = int32(width) * int32(height) * channels
	f.Bzero, f.Bscale = 0, 1
	f.Data = make([]float32, f.Pixels)
	size := width * height

	// read and convert pixels, keeping the native value range
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := t.At(b.Min.X+x, b.Min.Y+y)
			if channels == 1 {
				g := color.Gray16Model.Convert(c).(color.Gray16)
				v := float32(g.Y)
				if bitpix == 8 {
					v = float32(g.Y >> 8)
				}
				f.Data[y*width+x] = v
				continue
			}
			r, g, bl, _ := c.RGBA()
			if bitpix == 8 {
				r, g, bl = r>>8, g>>8, bl>>8
			}
			f.Data[y*width+x] = float32(r)
			f.Data[y*width+x+size] = float32(g)
			f.Data[y*width+x+2*size] = float32(bl)
		}
	}
}

// Reads a sequence of single-page greyscale TIFF files into a 3D stack [X,Y,T].
// All files must have the same dimensions
func NewImageFromTIFFSequence(fileNames []string, id int) (*Image, error) {
	if len(fileNames) == 0 {
		return nil, errors.New("empty TIFF sequence")
	}
	planes := make([]*Image, len(fileNames))
	for i, fileName := range fileNames {
		p := NewImage()
		p.ID = id
		if err := p.ReadTIFF(fileName); err != nil {
			return nil, err
		}
		if len(p.Naxisn) != 2 {
			return nil, errors.Errorf("%d: %s is not a greyscale image", id, fileName)
		}
		if i > 0 && !EqualInt32Slice(p.Naxisn, planes[0].Naxisn) {
			return nil, errors.Errorf("%d: %s has dimensions %s, expected %s", id, fileName, p.DimensionsToString(), planes[0].DimensionsToString())
		}
		planes[i] = p
	}
	res := NewImageFromPlanes(planes)
	res.ID, res.Name, res.FileName = id, NameFromFileName(fileNames[0]), fileNames[0]
	res.Bitpix = planes[0].Bitpix
	return res, nil
}

func colorModelToBitpixAndChannels(m color.Model) (bitpix, channels int32) {
	switch m {
	case color.RGBAModel, color.NRGBAModel:
		return 8, 3
	case color.RGBA64Model, color.NRGBA64Model:
		return 16, 3
	case color.AlphaModel, color.GrayModel:
		return 8, 1
	case color.Alpha16Model, color.Gray16Model:
		return 16, 1
	default:
		return 0, 0
	}
}

func (f *Image) WriteMonoTIFF16ToFile(fileName string, min, max, gamma float32) error {
	file, err := os.Create(fileName)
	if err != nil {
		return errors.Wrapf(err, "%d: creating %s", f.ID, fileName)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err = f.WriteMonoTIFF16(writer, min, max, gamma); err != nil {
		return errors.Wrapf(err, "%d: writing %s", f.ID, fileName)
	}
	return writer.Flush()
}

// Writes the first plane as 16-bit greyscale TIFF, scaling [min,max] to the full range
func (f *Image) WriteMonoTIFF16(writer io.Writer, min, max, gamma float32) error {
	// convert pixels into Golang Image
	width, height := int(f.Naxisn[0]), int(f.Naxisn[1])
	img := image.NewGray16(image.Rect(0, 0, width, height))
	scale := float32(1)
	if max > min {
		scale = 1 / (max - min)
	}
	gammaInv := float64(1.0 / gamma)
	for y := 0; y < height; y++ {
		yoffset := y * width
		for x := 0; x < width; x++ {
			gray := (f.Data[yoffset+x] - min) * scale
			// replace NaNs with zeros for export, else TIFF output breaks
			if math.IsNaN(float64(gray)) || gray < 0 {
				gray = 0
			}
			if gray > 1 {
				gray = 1
			}
			if gammaInv != 1.0 {
				gray = float32(math.Pow(float64(gray), gammaInv))
			}
			img.SetGray16(x, y, color.Gray16{uint16(gray * 65535)})
		}
	}

	return tiff.Encode(writer, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}

// Writes the first plane of a label mask as 16-bit TIFF without scaling, so label values survive
func (f *Image) WriteLabelsTIFF16(writer io.Writer) error {
	width, height := int(f.Naxisn[0]), int(f.Naxisn[1])
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := f.Data[y*width+x]
			if math.IsNaN(float64(v)) || v < 0 {
				v = 0
			} else if v > 65535 {
				v = 65535
			}
			img.SetGray16(x, y, color.Gray16{uint16(v)})
		}
	}
	return tiff.Encode(writer, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}
