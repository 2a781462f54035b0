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
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"github.com/mlnoga/fluolight/internal/layers"
	"github.com/mlnoga/fluolight/internal/ops"
)

// Widgets of one operator form, bound to a parameter map
type formView struct {
	form         *Form
	values       map[string]interface{}
	imageSelects []*widget.Select
	labelSelects []*widget.Select
	content      *fyne.Container
}

func newFormView(form *Form, store layers.Store) (*formView, error) {
	values, err := form.Defaults()
	if err != nil {
		return nil, err
	}
	v := &formView{form: form, values: values}

	var items []*widget.FormItem
	for _, slot := range form.Images {
		sel := widget.NewSelect(nil, nil)
		sel.PlaceHolder = "(select image)"
		v.imageSelects = append(v.imageSelects, sel)
		items = append(items, widget.NewFormItem(slot.Label, sel))
	}
	for _, slot := range form.Labels {
		sel := widget.NewSelect(nil, nil)
		sel.PlaceHolder = "(select labels)"
		v.labelSelects = append(v.labelSelects, sel)
		items = append(items, widget.NewFormItem(slot.Label, sel))
	}
	for _, field := range form.Fields {
		items = append(items, widget.NewFormItem(field.Label, v.widgetFor(field)))
	}
	v.content = container.NewVBox(widget.NewForm(items...))
	v.refreshLayers(store)
	return v, nil
}

// Creates the input widget for a field, initialized from and writing to the value map
func (v *formView) widgetFor(field Field) fyne.CanvasObject {
	key := field.Key
	switch field.Kind {
	case FieldBool:
		check := widget.NewCheck("", func(b bool) { v.values[key] = b })
		check.SetChecked(v.values[key] == true)
		return check

	case FieldSlider:
		value := widget.NewLabel(FormatValue(v.values[key]))
		slider := widget.NewSlider(field.Min, field.Max)
		slider.Step = field.Step
		if f, ok := v.values[key].(float64); ok {
			slider.SetValue(f)
		}
		slider.OnChanged = func(f float64) {
			v.values[key] = f
			value.SetText(FormatValue(f))
		}
		return container.NewBorder(nil, nil, nil, value, slider)

	case FieldChoice:
		sel := widget.NewSelect(field.Choices, func(s string) { v.values[key] = s })
		if s, ok := v.values[key].(string); ok {
			sel.SetSelected(s)
		}
		return sel

	case FieldRange:
		bounds, _ := v.values[key].([]interface{})
		entries := make([]fyne.CanvasObject, 2)
		for i := range entries {
			i := i
			entry := widget.NewEntry()
			if i < len(bounds) {
				entry.SetText(FormatValue(bounds[i]))
			}
			entry.Validator = func(s string) error {
				_, err := ParseValue(FieldRange, s)
				return err
			}
			entry.OnChanged = func(s string) {
				if p, err := ParseValue(FieldRange, s); err == nil {
					bounds := v.rangeValue(key)
					bounds[i] = p
					v.values[key] = bounds
				}
			}
			entries[i] = entry
		}
		return container.NewGridWithColumns(2, entries...)

	default:
		entry := widget.NewEntry()
		entry.SetText(FormatValue(v.values[key]))
		entry.Validator = func(s string) error {
			_, err := ParseValue(field.Kind, s)
			return err
		}
		entry.OnChanged = func(s string) {
			if p, err := ParseValue(field.Kind, s); err == nil {
				v.values[key] = p
			}
		}
		return entry
	}
}

// Returns a copy of the two-element range value for key
func (v *formView) rangeValue(key string) []interface{} {
	res := []interface{}{0.0, 0.0}
	if old, ok := v.values[key].([]interface{}); ok {
		copy(res, old)
	}
	return res
}

// Updates the layer selectors with the current store contents, keeping valid selections
func (v *formView) refreshLayers(store layers.Store) {
	images := layers.NamesOfKind(store, ops.KindImage)
	labels := layers.NamesOfKind(store, ops.KindLabels, ops.KindMask)
	update := func(sel *widget.Select, names []string) {
		sel.Options = names
		keep := false
		for _, n := range names {
			if n == sel.Selected {
				keep = true
			}
		}
		if !keep {
			sel.ClearSelected()
		}
		sel.Refresh()
	}
	for _, sel := range v.imageSelects {
		update(sel, images)
	}
	for _, sel := range v.labelSelects {
		update(sel, labels)
	}
}

// Builds the step for the current form state
func (v *formView) step() (*layers.Step, error) {
	names := func(sels []*widget.Select) []string {
		res := make([]string, len(sels))
		for i, sel := range sels {
			res[i] = sel.Selected
		}
		return res
	}
	step, err := v.form.Step(v.values, names(v.imageSelects), names(v.labelSelects))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", v.form.Title, err)
	}
	return step, nil
}
