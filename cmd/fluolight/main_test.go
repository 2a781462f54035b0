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
package main

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/mlnoga/fluolight/internal/config"
	"github.com/mlnoga/fluolight/internal/fits"
	"github.com/mlnoga/fluolight/internal/ops"
	"github.com/mlnoga/fluolight/internal/ops/profile"
	"github.com/mlnoga/fluolight/internal/ops/redgreen"
)

func TestRangeFlag(t *testing.T) {
	var r rangeFlag
	if err := r.Set("2, 8"); err != nil {
		t.Fatal(err)
	}
	if got := r.Get(); !reflect.DeepEqual(got, []float64{2, 8}) {
		t.Errorf("range=%v; want [2 8]", got)
	}
	if r.String() != "2,8" {
		t.Errorf("string=%s; want 2,8", r.String())
	}
	if err := r.Set("1"); err == nil {
		t.Errorf("Set(1) succeeded; want error")
	}
	if err := r.Set("a,b"); err == nil {
		t.Errorf("Set(a,b) succeeded; want error")
	}
}

func setFlag(t *testing.T, name, value string) {
	old := flag.Lookup(name).Value.String()
	if err := flag.Set(name, value); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { flag.Set(name, old) })
}

func TestBuildOperator(t *testing.T) {
	setFlag(t, "left", "4")
	op, err := buildOperator("redGreen", nil)
	if err != nil {
		t.Fatal(err)
	}
	rg := op.(*redgreen.OpRedGreen)
	if rg.LeftFrames != 4 || rg.RightFrames != 1 {
		t.Errorf("left=%d right=%d; want 4 1", rg.LeftFrames, rg.RightFrames)
	}

	// parameter file below explicit flags
	paramsFile := filepath.Join(t.TempDir(), "rg.yaml")
	if err := os.WriteFile(paramsFile, []byte("type: redGreen\nleftFrames: 2\nrightFrames: 3\n"), 0644); err != nil {
		t.Fatal(err)
	}
	*params = paramsFile
	defer func() { *params = "" }()
	if op, err = buildOperator("redGreen", nil); err != nil {
		t.Fatal(err)
	}
	rg = op.(*redgreen.OpRedGreen)
	if rg.LeftFrames != 4 || rg.RightFrames != 3 {
		t.Errorf("left=%d right=%d; want 4 3", rg.LeftFrames, rg.RightFrames)
	}
	if _, err := buildOperator("eFRET", nil); err == nil {
		t.Errorf("err=nil; want error for parameters of another operator")
	}
}

func TestBuildOperatorCounts(t *testing.T) {
	op, err := buildOperator("profileMultiImage", map[string]interface{}{"profilesNum": 3, "labelsNum": 1})
	if err != nil {
		t.Fatal(err)
	}
	if n := op.(*profile.OpProfileMultiImage).ProfilesNum; n != 3 {
		t.Errorf("profilesNum=%d; want 3", n)
	}
	setFlag(t, "profilesNum", "2")
	if op, err = buildOperator("profileMultiImage", map[string]interface{}{"profilesNum": 3}); err != nil {
		t.Fatal(err)
	}
	if n := op.(*profile.OpProfileMultiImage).ProfilesNum; n != 2 {
		t.Errorf("profilesNum=%d; want 2 from flag", n)
	}
}

func TestCmdOperator(t *testing.T) {
	dir := t.TempDir()
	img := fits.NewImageFromNaxisn([]int32{3, 3, 6}, nil)
	for i := range img.Data {
		img.Data[i] = float32(i)
	}
	fileName := filepath.Join(dir, "stack.fits")
	if err := img.WriteFile(fileName); err != nil {
		t.Fatal(err)
	}

	*outDir = filepath.Join(dir, "out")
	defer func() { *outDir = "." }()
	c := ops.NewContext(io.Discard, nil)
	if err := cmdOperator(commands["redgreen"], []string{fileName}, c, config.DefaultConfig()); err != nil {
		t.Fatal(err)
	}
	res, err := fits.NewImageFromFile(filepath.Join(*outDir, "stack_red-green.fits"), 1, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(res.Naxisn, []int32{3, 3, 3}) {
		t.Errorf("dims=%v; want [3 3 3]", res.Naxisn)
	}

	if err := cmdOperator(commands["fret"], []string{fileName}, c, config.DefaultConfig()); err == nil {
		t.Errorf("err=nil; want validation error for missing FRET inputs")
	}
}

func TestLoadArgs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.fits", "b.fits"} {
		img := fits.NewImageFromNaxisn([]int32{2, 2, 2}, nil)
		if err := img.WriteFile(filepath.Join(dir, name)); err != nil {
			t.Fatal(err)
		}
	}
	c := ops.NewContext(io.Discard, nil)
	args := []string{filepath.Join(dir, "a.fits"), filepath.Join(dir, "b.fits")}
	store, images, labels, err := loadArgs(args, 1, 1, c)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(images, []string{"a"}) || !reflect.DeepEqual(labels, []string{"b"}) {
		t.Errorf("images=%v labels=%v; want [a] [b]", images, labels)
	}
	if l, _ := store.Get("b"); l.Kind != ops.KindLabels {
		t.Errorf("kind of b=%s; want labels", l.Kind)
	}
	if _, _, _, err := loadArgs(args, 1, 0, c); err == nil {
		t.Errorf("err=nil; want error for too many inputs")
	}
	if _, _, _, err := loadArgs([]string{filepath.Join(dir, "*.none")}, 1, 0, c); err == nil {
		t.Errorf("err=nil; want error for empty glob")
	}
}
