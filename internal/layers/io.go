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
package layers

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mlnoga/fluolight/internal/fits"
	"github.com/mlnoga/fluolight/internal/ops"
	"github.com/mlnoga/fluolight/internal/render"
	"github.com/pkg/errors"
)

// Loads a layer from a FITS, TIFF or OIB file, or from a sequence of 2D TIFF files forming
// the frames of a 3D stack. The name defaults to the file name without extension
func Load(fileNames []string, name string, kind ops.Kind, id int, c *ops.Context) (*Layer, error) {
	if len(fileNames) == 0 {
		return nil, fmt.Errorf("%d: no files to load", id)
	}
	var img *fits.Image
	var err error
	if len(fileNames) == 1 {
		img, err = ops.LoadImage(fileNames[0], id, c)
	} else {
		if img, err = fits.NewImageFromTIFFSequence(fileNames, id); err == nil {
			err = ops.CheckMemory(img, c)
		}
		if err == nil {
			fmt.Fprintf(c.Log, "%d: Loaded %s stack %s from %d files\n", id, img.DimensionsToString(), img.Name, len(fileNames))
		}
	}
	if err != nil {
		return nil, err
	}
	if name != "" {
		img.Name = name
	}
	if kind == "" {
		kind = ops.KindImage
	}
	l := &Layer{Name: img.Name, Kind: kind, Image: img, Opacity: 1}
	switch kind {
	case ops.KindImage:
		l.Colormap = ops.ColormapGray
		if len(fileNames) == 1 && strings.EqualFold(filepath.Ext(fileNames[0]), ".oib") {
			l.Colormap = ops.ColormapTurbo
		}
	case ops.KindLabels:
		l.Contour = 1
	case ops.KindMask:
		l.Colormap, l.Opacity = ops.ColormapGray, maskOpacity
	default:
		return nil, fmt.Errorf("%d: cannot load layer of kind '%s'", id, kind)
	}
	return l, nil
}

// Saves a layer. The format follows the file extension: FITS for .fits/.fit/.fts,
// 16-bit TIFF of the first plane for .tif/.tiff, and a colormapped PNG preview for .png
func Save(l *Layer, fileName string) error {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".fits", ".fit", ".fts":
		return l.Image.WriteFile(fileName)
	case ".tif", ".tiff":
		if l.Kind != ops.KindImage {
			return writeFile(fileName, func(w *bufio.Writer) error { return l.Image.WriteLabelsTIFF16(w) })
		}
		lo, hi := l.Image.MinMax()
		if len(l.ContrastLimits) == 2 {
			lo, hi = l.ContrastLimits[0], l.ContrastLimits[1]
		}
		return l.Image.WriteMonoTIFF16ToFile(fileName, lo, hi, 1)
	case ".png":
		opt := render.Options{Colormap: l.Colormap, Limits: l.ContrastLimits, Labels: l.Kind == ops.KindLabels}
		return writeFile(fileName, func(w *bufio.Writer) error { return render.WritePNG(w, l.Image, opt) })
	default:
		return fmt.Errorf("unknown file extension for %s", fileName)
	}
}

func writeFile(fileName string, fn func(w *bufio.Writer) error) error {
	f, err := os.Create(fileName)
	if err != nil {
		return errors.Wrapf(err, "creating %s", fileName)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err = fn(w); err != nil {
		return errors.Wrapf(err, "writing %s", fileName)
	}
	return w.Flush()
}
