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
package gui

import (
	"reflect"
	"testing"

	"fyne.io/fyne/v2/test"
	"github.com/mlnoga/fluolight/internal/fits"
	"github.com/mlnoga/fluolight/internal/layers"
	"github.com/mlnoga/fluolight/internal/ops"
	_ "github.com/mlnoga/fluolight/internal/ops/all"
	"github.com/mlnoga/fluolight/internal/ops/redgreen"
	"github.com/pkg/errors"
)

func TestFormsCoverOperators(t *testing.T) {
	for _, opType := range ops.OperatorTypes() {
		if FormFor(opType) == nil {
			t.Errorf("no form for operator %s", opType)
		}
	}
}

func TestFormFieldsMatchDefaults(t *testing.T) {
	for _, form := range Forms {
		values, err := form.Defaults()
		if err != nil {
			t.Errorf("%s: %v", form.Type, err)
			continue
		}
		for _, field := range form.Fields {
			v, ok := values[field.Key]
			if !ok {
				t.Errorf("%s: field %s not in operator parameters %v", form.Type, field.Key, values)
				continue
			}
			switch field.Kind {
			case FieldChoice:
				found := false
				for _, c := range field.Choices {
					found = found || c == v
				}
				if !found {
					t.Errorf("%s: default %v of %s not among %v", form.Type, v, field.Key, field.Choices)
				}
			case FieldSlider:
				f, ok := v.(float64)
				if !ok || f < field.Min || f > field.Max {
					t.Errorf("%s: default %v of %s outside [%g,%g]", form.Type, v, field.Key, field.Min, field.Max)
				}
			case FieldRange:
				if r, ok := v.([]interface{}); !ok || len(r) != 2 {
					t.Errorf("%s: default %v of %s is not a range", form.Type, v, field.Key)
				}
			}
		}
	}
}

func TestFormStep(t *testing.T) {
	form := FormFor("redGreen")
	values, err := form.Defaults()
	if err != nil {
		t.Fatal(err)
	}
	values["leftFrames"] = 3
	values["saveMIP"] = true
	step, err := form.Step(values, []string{"stack"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	op, ok := step.Operator.(*redgreen.OpRedGreen)
	if !ok {
		t.Fatalf("operator=%T; want *redgreen.OpRedGreen", step.Operator)
	}
	if op.LeftFrames != 3 || !op.SaveMIP || op.RightFrames != 1 {
		t.Errorf("op=%+v; want leftFrames 3, saveMIP and default rightFrames", *op)
	}
	if !reflect.DeepEqual(step.Images, []string{"stack"}) {
		t.Errorf("images=%v; want [stack]", step.Images)
	}

	_, err = form.Step(values, []string{""}, nil)
	var verr *ops.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("err=%v; want validation error for missing image", err)
	}
}

func TestFormStepOptionalSlots(t *testing.T) {
	form := FormFor("alignStack")
	values, err := form.Defaults()
	if err != nil {
		t.Fatal(err)
	}
	step, err := form.Step(values, []string{"offset", ""}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(step.Images, []string{"offset"}) {
		t.Errorf("images=%v; want [offset]", step.Images)
	}
}

func TestParseFormatValue(t *testing.T) {
	tests := []struct {
		kind FieldKind
		text string
		want interface{}
	}{
		{FieldInt, "12", 12},
		{FieldFloat, "0.25", 0.25},
		{FieldSlider, "-1", -1.0},
		{FieldRange, "10", 10.0},
		{FieldPath, "out/dir", "out/dir"},
	}
	for _, tt := range tests {
		got, err := ParseValue(tt.kind, tt.text)
		if err != nil || got != tt.want {
			t.Errorf("ParseValue(%d, %q)=%v,%v; want %v", tt.kind, tt.text, got, err, tt.want)
		}
	}
	if _, err := ParseValue(FieldInt, "1.5"); err == nil {
		t.Errorf("ParseValue(int, 1.5) succeeded")
	}
	if got := FormatValue(0.5); got != "0.5" {
		t.Errorf("FormatValue(0.5)=%s; want 0.5", got)
	}
	if got := FormatValue(5.0); got != "5" {
		t.Errorf("FormatValue(5.0)=%s; want 5", got)
	}
}

func TestFormView(t *testing.T) {
	test.NewApp()
	store := layers.NewMemStore()
	store.Put(&layers.Layer{Name: "b", Kind: ops.KindImage, Image: fits.NewImageFromNaxisn([]int32{2, 2, 2}, nil)})
	store.Put(&layers.Layer{Name: "a", Kind: ops.KindImage, Image: fits.NewImageFromNaxisn([]int32{2, 2, 2}, nil)})
	store.Put(&layers.Layer{Name: "lab", Kind: ops.KindLabels, Image: fits.NewImageFromNaxisn([]int32{2, 2}, nil)})

	fv, err := newFormView(FormFor("upMask"), store)
	if err != nil {
		t.Fatal(err)
	}
	if got := fv.imageSelects[0].Options; !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("image options=%v; want [a b]", got)
	}
	if got := fv.labelSelects[0].Options; !reflect.DeepEqual(got, []string{"lab"}) {
		t.Errorf("label options=%v; want [lab]", got)
	}

	fv.imageSelects[0].SetSelected("b")
	step, err := fv.step()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(step.Images, []string{"b"}) || len(step.Labels) != 0 {
		t.Errorf("images=%v labels=%v; want [b] []", step.Images, step.Labels)
	}

	store.Remove("b")
	fv.refreshLayers(store)
	if fv.imageSelects[0].Selected != "" {
		t.Errorf("selected=%q after removal; want empty", fv.imageSelects[0].Selected)
	}
}
