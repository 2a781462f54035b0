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
	"bytes"
	"io"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/richardlehane/mscfb"
	"golang.org/x/image/tiff"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Name of the stream mapping compound file streams to original file names
const oibInfoName = "OibInfo.txt"

// Reads an Olympus OIB file, a compound document holding one TIFF stream per plane.
// Planes are assembled into [X,Y,T] for one channel or [X,Y,C,T] for several, with
// z slices of each time point stored as consecutive frames
func (f *Image) ReadOIB(fileName string) error {
	file, err := os.Open(fileName)
	if err != nil {
		return errors.Wrapf(err, "%d: opening %s", f.ID, fileName)
	}
	defer file.Close()

	doc, err := mscfb.New(file)
	if err != nil {
		return errors.Wrapf(err, "%d: reading compound document %s", f.ID, fileName)
	}
	streams := map[string][]byte{}
	for entry, err := doc.Next(); err != io.EOF; entry, err = doc.Next() {
		if err != nil {
			return errors.Wrapf(err, "%d: reading %s", f.ID, fileName)
		}
		if entry.Size <= 0 {
			continue // storage
		}
		data, err := io.ReadAll(entry)
		if err != nil {
			return errors.Wrapf(err, "%d: reading stream %s of %s", f.ID, entry.Name, fileName)
		}
		streams[path.Join(append(append([]string{}, entry.Path...), entry.Name)...)] = data
	}

	img, err := NewImageFromOIBStreams(streams, f.ID)
	if err != nil {
		return errors.Wrapf(err, "%d: %s", f.ID, fileName)
	}
	*f = *img
	f.FileName, f.Name = fileName, NameFromFileName(fileName)
	return nil
}

// Parses the stream table of OibInfo.txt. Returns a mapping from stream paths, qualified
// with their storage, to the base names of the files they hold
func ParseOIBInfo(raw []byte) (map[string]string, error) {
	text, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), raw)
	if err != nil {
		return nil, err
	}
	res := map[string]string{}
	section := ""
	scanner := bufio.NewScanner(bytes.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = line[1 : len(line)-1]
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok || !strings.HasPrefix(path.Base(key), "Stream") {
			continue
		}
		if !strings.Contains(key, "/") && strings.HasPrefix(section, "Storage") {
			key = section + "/" + key
		}
		res[key] = path.Base(strings.ReplaceAll(value, "\\", "/"))
	}
	return res, scanner.Err()
}

var oibPlaneIndex = regexp.MustCompile(`([CZT])(\d{3,})`)

// Returns the 1-based channel, z and time indices encoded in a plane file name such as
// s_C001Z002T003.tif. Missing indices are 1
func oibPlaneIndices(name string) (c, z, t int) {
	c, z, t = 1, 1, 1
	for _, m := range oibPlaneIndex.FindAllStringSubmatch(name, -1) {
		v, _ := strconv.Atoi(m[2])
		switch m[1] {
		case "C":
			c = v
		case "Z":
			z = v
		case "T":
			t = v
		}
	}
	return c, z, t
}

// Assembles an image from the streams of an OIB compound document, keyed by path
func NewImageFromOIBStreams(streams map[string][]byte, id int) (*Image, error) {
	names := map[string]string{}
	if raw, ok := streams[oibInfoName]; ok {
		var err error
		if names, err = ParseOIBInfo(raw); err != nil {
			return nil, errors.Wrap(err, "decoding "+oibInfoName)
		}
	}

	type plane struct {
		c, z, t int
		img     *Image
	}
	var planes []plane
	numC, numZ, numT := 0, 0, 0
	for streamPath, data := range streams {
		name, ok := names[streamPath]
		if !ok {
			name, ok = names[path.Base(streamPath)]
		}
		if !ok {
			name = path.Base(streamPath)
		}
		lName := strings.ToLower(name)
		if !strings.HasSuffix(lName, ".tif") || strings.Contains(lName, "thumb") {
			continue
		}
		t, err := tiff.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrapf(err, "decoding plane %s", name)
		}
		p := NewImage()
		p.ID = id
		p.fromGoImage(t)
		if len(p.Naxisn) != 2 {
			return nil, errors.Errorf("plane %s is not a greyscale image", name)
		}
		c, z, tt := oibPlaneIndices(name)
		planes = append(planes, plane{c, z, tt, p})
		numC, numZ, numT = max(numC, c), max(numZ, z), max(numT, tt)
	}
	if len(planes) == 0 {
		return nil, errors.New("no image planes found")
	}

	ordered := make([]*Image, numC*numZ*numT)
	first := planes[0].img
	for _, p := range planes {
		if !EqualInt32Slice(p.img.Naxisn, first.Naxisn) {
			return nil, errors.Errorf("plane dimensions %s differ from %s", p.img.DimensionsToString(), first.DimensionsToString())
		}
		frame := (p.t-1)*numZ + (p.z - 1)
		ordered[(p.c-1)+numC*frame] = p.img
	}
	for i, p := range ordered {
		if p == nil {
			frame := i / numC
			return nil, errors.Errorf("missing plane C%03dZ%03dT%03d", i%numC+1, frame%numZ+1, frame/numZ+1)
		}
	}

	numFrames := int32(numZ * numT)
	var res *Image
	switch {
	case numC > 1:
		res = NewImageFromPlanes(ordered, int32(numC), numFrames)
	case numFrames > 1:
		res = NewImageFromPlanes(ordered)
	default:
		res = NewImageFromNaxisn(first.Naxisn, append([]float32(nil), first.Data...))
	}
	res.ID, res.Bitpix = id, first.Bitpix
	return res, nil
}
