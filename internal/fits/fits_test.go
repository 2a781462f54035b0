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
	"bytes"
	"io"
	"math"
	"testing"

	"github.com/mlnoga/fluolight/internal/coord"
	"golang.org/x/image/tiff"
)

// Creates a stack whose pixel values encode their coordinates as t*1000+c*100+y*10+x
func newCodedStack(naxisn []int32) *Image {
	img := NewImageFromNaxisn(naxisn, nil)
	w, h := naxisn[0], naxisn[1]
	for p := int32(0); p < img.Planes(); p++ {
		for y := int32(0); y < h; y++ {
			for x := int32(0); x < w; x++ {
				img.Data[p*w*h+y*w+x] = float32(p*100 + y*10 + x)
			}
		}
	}
	return img
}

func TestWriteReadRoundtrip(t *testing.T) {
	img := newCodedStack([]int32{5, 4, 3})
	img.Name = "cell_ch0"
	img.Data[7] = float32(math.NaN())

	var buf bytes.Buffer
	if err := img.Write(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	if buf.Len()%fitsBlockSize != 0 {
		t.Errorf("file length %d not a multiple of %d", buf.Len(), fitsBlockSize)
	}

	res := NewImage()
	if err := res.Read(&buf, true, io.Discard); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !EqualInt32Slice(res.Naxisn, img.Naxisn) {
		t.Errorf("naxisn=%v; want %v", res.Naxisn, img.Naxisn)
	}
	if res.Name != img.Name {
		t.Errorf("name=%q; want %q", res.Name, img.Name)
	}
	for i, v := range img.Data {
		want := v
		if i == 7 {
			want = 0
		}
		if res.Data[i] != want {
			t.Errorf("data[%d]=%v; want %v", i, res.Data[i], want)
		}
	}
}

func TestChannelRoundtrip(t *testing.T) {
	// frame-major [X,Y,C,T] with 2 channels and 3 frames
	img := newCodedStack([]int32{3, 2, 2, 3})
	chans := make([]*Image, 2)
	for c := int32(0); c < 2; c++ {
		ch, err := img.Channel(c, false)
		if err != nil {
			t.Fatalf("channel %d: %v", c, err)
		}
		if !EqualInt32Slice(ch.Naxisn, []int32{3, 2, 3}) {
			t.Errorf("channel naxisn=%v; want [3 2 3]", ch.Naxisn)
		}
		// plane t of channel c is plane t*2+c of the stack
		if got, want := ch.Data[2*6], float32((2*2+c)*100); got != want {
			t.Errorf("ch%d frame 2=%v; want %v", c, got, want)
		}
		chans[c] = ch
	}
	back, err := NewImageFromChannels(chans)
	if err != nil {
		t.Fatalf("reassemble: %v", err)
	}
	for i, v := range img.Data {
		if back.Data[i] != v {
			t.Fatalf("data[%d]=%v; want %v", i, back.Data[i], v)
		}
	}

	if _, err := img.Channel(2, false); err == nil {
		t.Errorf("expected error for channel out of range")
	}
}

func TestChannelFirst(t *testing.T) {
	// channel-major [X,Y,T,C] with 3 frames and 2 channels
	img := newCodedStack([]int32{3, 2, 3, 2})
	ch, err := img.Channel(1, true)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := ch.Data[0], float32(3*100); got != want {
		t.Errorf("ch1 frame 0=%v; want %v", got, want)
	}
}

func TestCrops(t *testing.T) {
	img := newCodedStack([]int32{6, 5, 4})
	c, err := img.CropBorder(1)
	if err != nil {
		t.Fatal(err)
	}
	if !EqualInt32Slice(c.Naxisn, []int32{4, 3, 4}) {
		t.Errorf("naxisn=%v; want [4 3 4]", c.Naxisn)
	}
	if c.Data[0] != 11 || c.Data[12] != 111 {
		t.Errorf("corner values %v, %v; want 11, 111", c.Data[0], c.Data[12])
	}
	if _, err := img.CropBorder(3); err == nil {
		t.Errorf("expected error for oversize crop")
	}

	f, err := img.CropFrames(1, 3)
	if err != nil {
		t.Fatal(err)
	}
	if f.Frames() != 2 || f.Data[0] != 100 {
		t.Errorf("frames=%d first=%v; want 2, 100", f.Frames(), f.Data[0])
	}
	for _, r := range [][2]int32{{2, 2}, {-1, 2}, {0, 5}} {
		if _, err := img.CropFrames(r[0], r[1]); err == nil {
			t.Errorf("expected error for range %v", r)
		}
	}

	s := img.StrideFrames(1, 2)
	if s.Frames() != 2 || s.Data[0] != 100 || s.PlaneData(1)[0] != 300 {
		t.Errorf("stride frames=%d values %v, %v", s.Frames(), s.Data[0], s.PlaneData(1)[0])
	}
}

func TestProjections(t *testing.T) {
	img := newCodedStack([]int32{2, 2, 3})
	mean, max := img.MeanProjection(), img.MaxProjection()
	if mean.Data[0] != 100 || max.Data[0] != 200 {
		t.Errorf("mean=%v max=%v; want 100, 200", mean.Data[0], max.Data[0])
	}
	if len(mean.Naxisn) != 2 {
		t.Errorf("mean naxisn=%v; want 2 axes", mean.Naxisn)
	}
}

func TestProjectTranslation(t *testing.T) {
	img := newCodedStack([]int32{5, 5})
	res, err := img.Project(coord.TranslationTransform2D(1, 0), -1)
	if err != nil {
		t.Fatal(err)
	}
	// content moves one pixel to the right, leftmost column falls out of bounds
	if res.Data[0] != -1 {
		t.Errorf("out of bounds=%v; want -1", res.Data[0])
	}
	if res.Data[2*5+3] != img.Data[2*5+2] {
		t.Errorf("shifted=%v; want %v", res.Data[2*5+3], img.Data[2*5+2])
	}
}

func TestBinNxN(t *testing.T) {
	img := newCodedStack([]int32{4, 4})
	b := NewImageBinNxN(img, 2)
	if !EqualInt32Slice(b.Naxisn, []int32{2, 2}) {
		t.Fatalf("naxisn=%v", b.Naxisn)
	}
	if b.Data[0] != 5.5 {
		t.Errorf("binned=%v; want 5.5", b.Data[0])
	}
}

func TestLabelsTIFF(t *testing.T) {
	img := NewImageFromNaxisn([]int32{3, 2}, []float32{0, 1, 2, 300, 0, 7})
	var buf bytes.Buffer
	if err := img.WriteLabelsTIFF16(&buf); err != nil {
		t.Fatal(err)
	}
	dec, err := tiff.Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	res := NewImage()
	res.fromGoImage(dec)
	for i, v := range img.Data {
		if res.Data[i] != v {
			t.Errorf("label[%d]=%v; want %v", i, res.Data[i], v)
		}
	}
}

func TestNameFromFileName(t *testing.T) {
	for _, c := range [][2]string{
		{"/data/cell.fits", "cell"},
		{"cell.fits.gz", "cell"},
		{"exp/cell_01.oib", "cell_01"},
		{"dir/exp1_ch0.tif", "exp1_ch0"},
		{"a.b.csv", "a.b.csv"},
	} {
		if got := NameFromFileName(c[0]); got != c[1] {
			t.Errorf("NameFromFileName(%q)=%q; want %q", c[0], got, c[1])
		}
	}
}
